package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"carechat/internal/config"
	"carechat/internal/models"
)

type stubAssistants struct {
	cfg *models.AssistantConfig
	err error
}

func (s *stubAssistants) Resolve(ctx context.Context) (*models.AssistantConfig, error) {
	return s.cfg, s.err
}

func newTestService(t *testing.T, baseURL string) *Service {
	t.Helper()
	svc, err := NewService("sk-test", config.ProviderConfig{
		BaseURL:        baseURL,
		AssistantID:    "asst_test",
		PollAttempts:   3,
		PollIntervalMS: 1,
	}, &stubAssistants{cfg: testAssistant()})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func collectEvents(t *testing.T, svc *Service, req TurnRequest) ([]models.RelayEvent, error) {
	t.Helper()
	var events []models.RelayEvent
	err := svc.StreamTurn(context.Background(), req, func(ev models.RelayEvent) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}

func sseUpstream(t *testing.T, lines []string, capture *responsePayload) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request payload: %v", err)
			}
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "data: %s\n\n", line)
		}
	}))
}

func TestStreamTurnRelaysDeltasAndMeta(t *testing.T) {
	var payload responsePayload
	upstream := sseUpstream(t, []string{
		`{"type":"response.created"}`,
		`{"type":"response.output_text.delta","delta":"Hello"}`,
		`{"type":"response.output_text.delta","delta":" world"}`,
		`{"type":"response.completed","response":{"conversation":{"id":"conv_123"}}}`,
		"[DONE]",
	}, &payload)
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	events, err := collectEvents(t, svc, TurnRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("StreamTurn: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 2 deltas and a meta, got %d: %+v", len(events), events)
	}
	if events[0].Event != models.EventDelta || events[0].TextDelta != "Hello" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].TextDelta != " world" {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
	meta := events[2]
	if meta.Event != models.EventMeta || meta.ThreadID != "conv_123" {
		t.Fatalf("unexpected meta event: %+v", meta)
	}
	if meta.FilesUploaded == nil || *meta.FilesUploaded != 0 {
		t.Fatalf("expected filesUploaded 0, got %+v", meta.FilesUploaded)
	}
	if !payload.Stream || payload.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected upstream payload: %+v", payload)
	}
}

func TestStreamTurnSkipsMalformedEvents(t *testing.T) {
	upstream := sseUpstream(t, []string{
		`{"type":"response.output_text.delta","delta":"part one"`,
		`not even json`,
		`{"type":"response.output_text.delta","delta":"intact"}`,
		"[DONE]",
	}, nil)
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	events, err := collectEvents(t, svc, TurnRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("StreamTurn: %v", err)
	}
	var deltas []string
	for _, ev := range events {
		if ev.Event == models.EventDelta {
			deltas = append(deltas, ev.TextDelta)
		}
	}
	if len(deltas) != 1 || deltas[0] != "intact" {
		t.Fatalf("expected only the intact delta, got %v", deltas)
	}
	if last := events[len(events)-1]; last.Event != models.EventMeta {
		t.Fatalf("expected trailing meta event, got %+v", last)
	}
}

func TestStreamTurnConnectFailureEmitsNothing(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	events, err := collectEvents(t, svc, TurnRequest{Message: "hi"})
	if len(events) != 0 {
		t.Fatalf("expected zero events, got %+v", events)
	}
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if upErr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", upErr.Status)
	}
}

func TestStreamTurnUpstreamErrorEvent(t *testing.T) {
	upstream := sseUpstream(t, []string{
		`{"type":"response.output_text.delta","delta":"partial"}`,
		`{"type":"error","message":"model overloaded"}`,
		"[DONE]",
	}, nil)
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	events, err := collectEvents(t, svc, TurnRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("StreamTurn: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected delta then error, got %+v", events)
	}
	if events[1].Event != models.EventError || events[1].Error != "model overloaded" {
		t.Fatalf("unexpected error event: %+v", events[1])
	}
	for _, ev := range events {
		if ev.Event == models.EventMeta {
			t.Fatalf("meta event must not follow an errored turn: %+v", events)
		}
	}
}

func TestStreamTurnReusesCarriedThread(t *testing.T) {
	var payload responsePayload
	upstream := sseUpstream(t, []string{
		`{"type":"response.output_text.delta","delta":"again"}`,
		"[DONE]",
	}, &payload)
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	events, err := collectEvents(t, svc, TurnRequest{
		Message:        "follow up",
		ThreadID:       "conv_456",
		CarriedFileIDs: []string{"file-9"},
	})
	if err != nil {
		t.Fatalf("StreamTurn: %v", err)
	}
	if payload.Conversation == nil || payload.Conversation.ID != "conv_456" {
		t.Fatalf("expected conversation conv_456 in payload, got %+v", payload.Conversation)
	}
	meta := events[len(events)-1]
	if meta.Event != models.EventMeta || meta.ThreadID != "conv_456" {
		t.Fatalf("expected meta to carry conv_456, got %+v", meta)
	}
	if len(meta.FileIDs) != 1 || meta.FileIDs[0] != "file-9" {
		t.Fatalf("expected carried file id in meta, got %+v", meta.FileIDs)
	}
}

func TestDecodeEventStreamReassemblesSplitEvents(t *testing.T) {
	raw := "data: {\"n\":1}\n\ndata: {\"n\":2}\n\ndata: [DONE]\n\ndata: {\"n\":3}\n\n"
	var got []string
	err := decodeEventStream(&slowReader{data: []byte(raw), step: 5}, func(raw []byte) (bool, error) {
		got = append(got, string(raw))
		return false, nil
	})
	if err != nil {
		t.Fatalf("decodeEventStream: %v", err)
	}
	if len(got) != 2 || got[0] != `{"n":1}` || got[1] != `{"n":2}` {
		t.Fatalf("expected two events before terminator, got %v", got)
	}
}

func TestDecodeEventStreamIgnoresCommentBlocks(t *testing.T) {
	raw := ": keep-alive\n\ndata: {\"n\":1}\n\n"
	var got []string
	err := decodeEventStream(strings.NewReader(raw), func(raw []byte) (bool, error) {
		got = append(got, string(raw))
		return false, nil
	})
	if err != nil {
		t.Fatalf("decodeEventStream: %v", err)
	}
	if len(got) != 1 || got[0] != `{"n":1}` {
		t.Fatalf("expected one data event, got %v", got)
	}
}

// slowReader yields at most step bytes per Read so event boundaries land in
// the middle of reads.
type slowReader struct {
	data []byte
	step int
	pos  int
}

func (r *slowReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := r.pos + r.step
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}
