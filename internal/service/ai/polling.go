package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"carechat/internal/models"

	openai "github.com/sashabaranov/go-openai"
)

// PollTurn answers one turn through the thread/message/run endpoints: ensure
// a thread, append the user message with its attachments, start a run for
// the configured assistant and poll its status with a bounded attempt
// counter before reading the newest assistant message. The attempt bound is
// the only timeout this path has.
func (s *Service) PollTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	uploaded := s.UploadFiles(ctx, req.Files)
	fileIDs := mergeFileIDs(req.CarriedFileIDs, uploaded)

	asst, err := s.assistants.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve assistant config: %w", err)
	}

	threadID := req.ThreadID
	if threadID == "" {
		thread, err := s.client.CreateThread(ctx, openai.ThreadRequest{})
		if err != nil {
			return nil, fmt.Errorf("create thread: %w", err)
		}
		threadID = thread.ID
	}

	msgReq := openai.MessageRequest{
		Role:    string(models.RoleUser),
		Content: req.Message,
	}
	for _, id := range fileIDs {
		msgReq.Attachments = append(msgReq.Attachments, openai.ThreadAttachment{
			FileID: id,
			Tools:  []openai.ThreadAttachmentTool{{Type: models.ToolFileSearch}},
		})
	}
	if _, err := s.client.CreateMessage(ctx, threadID, msgReq); err != nil {
		return nil, fmt.Errorf("append thread message: %w", err)
	}

	run, err := s.client.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID:  s.assistantID,
		Instructions: mergeInstructions(asst.Instructions, req.Message),
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	if err := s.waitForRun(ctx, threadID, run.ID); err != nil {
		return nil, err
	}

	text, err := s.latestAssistantText(ctx, threadID, run.ID)
	if err != nil {
		return nil, err
	}

	return &TurnResult{
		Text:          text,
		ThreadID:      threadID,
		FileIDs:       fileIDs,
		FilesUploaded: len(uploaded),
	}, nil
}

func (s *Service) waitForRun(ctx context.Context, threadID, runID string) error {
	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		run, err := s.client.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return fmt.Errorf("retrieve run: %w", err)
		}
		switch run.Status {
		case openai.RunStatusCompleted:
			return nil
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired:
			detail := string(run.Status)
			if run.LastError != nil && run.LastError.Message != "" {
				detail = fmt.Sprintf("%s: %s", run.Status, run.LastError.Message)
			}
			return fmt.Errorf("run ended without output (%s)", detail)
		case openai.RunStatusRequiresAction:
			return fmt.Errorf("run requires tool action this service does not perform")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
	return fmt.Errorf("run did not complete after %d attempts", s.pollAttempts)
}

func (s *Service) latestAssistantText(ctx context.Context, threadID, runID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := s.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return "", fmt.Errorf("list thread messages: %w", err)
	}
	var parts []string
	for _, msg := range list.Messages {
		if msg.Role != string(models.RoleAssistant) {
			continue
		}
		for _, content := range msg.Content {
			if content.Text != nil && content.Text.Value != "" {
				parts = append(parts, content.Text.Value)
			}
		}
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return "", fmt.Errorf("no response text received")
	}
	return text, nil
}
