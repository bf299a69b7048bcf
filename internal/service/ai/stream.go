package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"carechat/internal/models"
)

// Upstream wire shapes for the Responses endpoint. Only the fields the relay
// dispatches on are declared; everything else in an event is ignored.

type upstreamEvent struct {
	Type     string          `json:"type"`
	Delta    string          `json:"delta,omitempty"`
	Response *responseObject `json:"response,omitempty"`
	Message  string          `json:"message,omitempty"`
	Code     string          `json:"code,omitempty"`
}

type responseObject struct {
	Conversation *conversationRef `json:"conversation,omitempty"`
	Output       []outputItem     `json:"output,omitempty"`
}

type outputItem struct {
	Content []outputContent `json:"content,omitempty"`
}

type outputContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

const (
	eventOutputTextDelta = "response.output_text.delta"
	eventRefusalDelta    = "response.refusal.delta"
	eventCompleted       = "response.completed"
	eventError           = "error"
)

// postResponses issues the request to the response-generation endpoint with
// the assistants beta header the hosted assistant requires.
func (s *Service) postResponses(ctx context.Context, payload responsePayload) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode responses payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build responses request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	return s.httpClient.Do(req)
}

// StreamTurn runs one full streaming turn: upload the turn's files, compose
// the payload, open the upstream event stream and relay it through emit.
//
// States: before the upstream responds we are awaiting-connection — a non-2xx
// there returns an *UpstreamError with zero events emitted, so the caller can
// answer with a plain JSON error. Once connected every recognized event is
// translated into the relay vocabulary; after the loop ends (terminator, EOF
// or upstream error event) a trailing meta event is emitted unless the turn
// already errored. The caller owns the closed state (stream terminator).
func (s *Service) StreamTurn(ctx context.Context, req TurnRequest, emit func(models.RelayEvent) error) error {
	uploaded := s.UploadFiles(ctx, req.Files)
	fileIDs := mergeFileIDs(req.CarriedFileIDs, uploaded)

	asst, err := s.assistants.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolve assistant config: %w", err)
	}

	resp, err := s.postResponses(ctx, compose(asst, req, fileIDs, true))
	if err != nil {
		return fmt.Errorf("open response stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UpstreamError{Endpoint: "responses stream", Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	conversationID := req.ThreadID
	errored := false

	relay := func(raw []byte) (stop bool, err error) {
		var ev upstreamEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Printf("skipping unparseable stream event: %v", err)
			return false, nil
		}
		switch ev.Type {
		case eventOutputTextDelta, eventRefusalDelta:
			return false, emit(models.DeltaEvent(ev.Delta))
		case eventCompleted:
			if ev.Response != nil && ev.Response.Conversation != nil && ev.Response.Conversation.ID != "" {
				conversationID = ev.Response.Conversation.ID
			}
			return false, nil
		case eventError:
			errored = true
			msg := ev.Message
			if msg == "" {
				msg = "upstream error"
			}
			return true, emit(models.ErrorEvent(msg))
		default:
			// creation acks, token metadata, keep-alive pings
			return false, nil
		}
	}

	if err := decodeEventStream(resp.Body, relay); err != nil {
		return err
	}

	if !errored {
		if err := emit(models.MetaEvent(conversationID, fileIDs, len(uploaded))); err != nil {
			return err
		}
	}
	return nil
}

// decodeEventStream reads raw bytes incrementally, splits on the blank-line
// boundary used by server-sent events and hands each data payload to handle.
// A trailing partial event is held in the buffer for the next read. The
// literal terminator payload ends the loop.
func decodeEventStream(r io.Reader, handle func(raw []byte) (bool, error)) error {
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, readErr := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				idx := bytes.Index(buf, []byte("\n\n"))
				if idx < 0 {
					break
				}
				block := buf[:idx]
				buf = buf[idx+2:]

				data, ok := eventData(block)
				if !ok {
					continue
				}
				if data == models.StreamTerminator {
					return nil
				}
				stop, err := handle([]byte(data))
				if err != nil {
					return err
				}
				if stop {
					return nil
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return fmt.Errorf("read response stream: %w", readErr)
		}
	}
}

// eventData extracts the data payload of one event block, joining multi-line
// data fields the way the SSE format specifies. Blocks without a data field
// (comments, bare event names) report ok=false.
func eventData(block []byte) (string, bool) {
	var parts []string
	for _, line := range strings.Split(string(block), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		parts = append(parts, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}
