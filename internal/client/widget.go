package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"carechat/internal/models"

	"github.com/google/uuid"
)

// Widget is the Go counterpart of the embedded chat widget: it keeps the
// transcript, round-trips the thread handle and provider file ids between
// turns, and consumes the server's relayed event stream.
type Widget struct {
	endpoint   string
	httpClient *http.Client

	mu       sync.Mutex
	inFlight bool
	messages []*models.Message
	threadID string
	fileIDs  []string
}

// ErrSendInFlight rejects a send while a previous one is still streaming.
var ErrSendInFlight = errors.New("a message is already being sent")

const noResponseFallback = "No response received. Please try again."

func NewWidget(endpoint string, httpClient *http.Client) *Widget {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Widget{endpoint: endpoint, httpClient: httpClient}
}

// Messages returns a snapshot of the transcript.
func (w *Widget) Messages() []models.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.Message, 0, len(w.messages))
	for _, m := range w.messages {
		out = append(out, *m)
	}
	return out
}

func (w *Widget) ThreadID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.threadID
}

func (w *Widget) FileIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.fileIDs...)
}

// Send posts one user message and blocks until the assistant reply is
// finalized.
func (w *Widget) Send(ctx context.Context, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("message must not be empty")
	}
	return w.send(ctx, text, nil)
}

// AttachFiles encodes a file selection and, when anything qualified,
// automatically sends a synthesized analysis request for it. The returned
// notices name every skipped file.
func (w *Widget) AttachFiles(ctx context.Context, selection []FileInput) (*models.Message, []string, error) {
	files, notices, err := EncodeSelection(selection)
	if err != nil {
		return nil, notices, err
	}
	reply, err := w.send(ctx, analysisRequest(files), files)
	return reply, notices, err
}

type sendPayload struct {
	Message  string                `json:"message"`
	Files    []models.UploadedFile `json:"files,omitempty"`
	ThreadID string                `json:"threadId,omitempty"`
	FileIDs  []string              `json:"fileIds,omitempty"`
}

type syncResponse struct {
	Message       string   `json:"message"`
	ThreadID      string   `json:"threadId"`
	FilesUploaded int      `json:"filesUploaded"`
	FileIDs       []string `json:"fileIds"`
	Error         string   `json:"error"`
}

func (w *Widget) send(ctx context.Context, text string, files []models.UploadedFile) (*models.Message, error) {
	w.mu.Lock()
	if w.inFlight {
		w.mu.Unlock()
		return nil, ErrSendInFlight
	}
	w.inFlight = true

	userMsg := &models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Text:      text,
		Files:     files,
		CreatedAt: time.Now(),
	}
	placeholder := &models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Streaming: true,
		CreatedAt: time.Now(),
	}
	w.messages = append(w.messages, userMsg, placeholder)
	payload := sendPayload{
		Message:  text,
		Files:    files,
		ThreadID: w.threadID,
		FileIDs:  append([]string(nil), w.fileIDs...),
	}
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.inFlight = false
		w.mu.Unlock()
	}()

	final, err := w.roundTrip(ctx, payload)
	w.mu.Lock()
	placeholder.Text = final
	placeholder.Streaming = false
	snapshot := *placeholder
	w.mu.Unlock()
	return &snapshot, err
}

func (w *Widget) roundTrip(ctx context.Context, payload sendPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return fallbackText(""), fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fallbackText(""), fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fallbackText(""), fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return w.consumeStream(resp.Body)
	}
	return w.consumeJSON(resp)
}

// consumeJSON is the non-streaming fallback: one body, one finalization.
func (w *Widget) consumeJSON(resp *http.Response) (string, error) {
	var parsed syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fallbackText(""), fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fallbackText(parsed.Message), fmt.Errorf("server error: %s", parsed.Error)
	}
	w.rememberContinuity(parsed.ThreadID, parsed.FileIDs)
	if parsed.Message == "" {
		return noResponseFallback, nil
	}
	return parsed.Message, nil
}

// consumeStream reads the relayed event stream, appending each delta to the
// accumulated reply and capturing continuity from the trailing meta event.
// The split on blank-line boundaries matches the relay's own framing.
func (w *Widget) consumeStream(r io.Reader) (string, error) {
	var (
		buf         []byte
		accumulated strings.Builder
		errText     string
	)
	chunk := make([]byte, 4096)

	handle := func(data string) bool {
		if data == models.StreamTerminator {
			return true
		}
		var ev models.RelayEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return false
		}
		switch ev.Event {
		case models.EventDelta:
			accumulated.WriteString(ev.TextDelta)
			w.mu.Lock()
			if n := len(w.messages); n > 0 {
				w.messages[n-1].Text = accumulated.String()
			}
			w.mu.Unlock()
		case models.EventMeta:
			w.rememberContinuity(ev.ThreadID, ev.FileIDs)
		case models.EventError:
			errText = ev.Error
		}
		return false
	}

	done := false
	for !done {
		n, readErr := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				idx := bytes.Index(buf, []byte("\n\n"))
				if idx < 0 {
					break
				}
				block := string(buf[:idx])
				buf = buf[idx+2:]
				for _, line := range strings.Split(block, "\n") {
					line = strings.TrimSuffix(line, "\r")
					if !strings.HasPrefix(line, "data:") {
						continue
					}
					if handle(strings.TrimSpace(strings.TrimPrefix(line, "data:"))) {
						done = true
					}
				}
			}
		}
		if readErr != nil {
			break
		}
	}

	if errText != "" {
		return fallbackText(errText), nil
	}
	if accumulated.Len() == 0 {
		return noResponseFallback, nil
	}
	return accumulated.String(), nil
}

func (w *Widget) rememberContinuity(threadID string, fileIDs []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if threadID != "" {
		w.threadID = threadID
	}
	if fileIDs != nil {
		w.fileIDs = append([]string(nil), fileIDs...)
	}
}

func fallbackText(surfaced string) string {
	if surfaced != "" {
		return surfaced
	}
	return "Sorry, I encountered an error. Please try again."
}
