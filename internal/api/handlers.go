package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"carechat/internal/config"
	"carechat/internal/models"
	"carechat/internal/service/ai"
)

// Responder is the provider-facing surface the handler drives; one
// implementation answers by relaying the upstream event stream, the other by
// polling a run to completion.
type Responder interface {
	StreamTurn(ctx context.Context, req ai.TurnRequest, emit func(models.RelayEvent) error) error
	PollTurn(ctx context.Context, req ai.TurnRequest) (*ai.TurnResult, error)
}

// Handler wires the chat endpoint to the provider relay. It keeps no state
// between requests: thread and file continuity ride in the request body.
type Handler struct {
	responder Responder
	strategy  config.Strategy
}

// NewHandler constructs a Handler. A nil responder marks a server without a
// provider credential; every chat request then fails with a configuration
// error and no upstream call is attempted.
func NewHandler(responder Responder, strategy config.Strategy) *Handler {
	return &Handler{responder: responder, strategy: strategy}
}

// fallbackMessage finalizes the widget's pending bubble whenever a turn
// fails server-side.
const fallbackMessage = "Sorry, I encountered an error. Please try again."

const (
	maxMessageLen   = 1000
	maxFilesPerTurn = 5
)

// RegisterRoutes attaches the chat routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	router.Use(corsHeaders())

	router.OPTIONS("/api/chat", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/api/chat", h.chat)
}

func corsHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Next()
	}
}

type chatRequest struct {
	Message  string                `json:"message"`
	Files    []models.UploadedFile `json:"files"`
	ThreadID string                `json:"threadId"`
	FileIDs  []string              `json:"fileIds"`
}

func (h *Handler) chat(c *gin.Context) {
	if h.responder == nil {
		log.Printf("missing OPENAI_API_KEY")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "API key not configured"})
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required and must be a non-empty string"})
		return
	}
	if len(req.Message) > maxMessageLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Message too long. Please keep it under %d characters.", maxMessageLen)})
		return
	}
	if len(req.Files) > maxFilesPerTurn {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Too many files. Maximum %d files allowed.", maxFilesPerTurn)})
		return
	}

	turn := ai.TurnRequest{
		Message:        req.Message,
		ThreadID:       strings.TrimSpace(req.ThreadID),
		CarriedFileIDs: req.FileIDs,
		Files:          req.Files,
	}

	if h.strategy == config.StrategyPolling {
		h.respondOnce(c, turn)
		return
	}
	h.relayStream(c, turn)
}

// respondOnce answers the turn with one JSON body (the non-streaming path).
func (h *Handler) respondOnce(c *gin.Context, turn ai.TurnRequest) {
	result, err := h.responder.PollTurn(c.Request.Context(), turn)
	if err != nil {
		log.Printf("chat turn failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   err.Error(),
			"message": fallbackMessage,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       result.Text,
		"threadId":      result.ThreadID,
		"filesUploaded": result.FilesUploaded,
		"fileIds":       result.FileIDs,
	})
}

// relayStream answers the turn as a server-sent-event stream. Headers are
// written lazily on the first relayed event, so an upstream failure before
// anything streamed still surfaces as a plain JSON error.
func (h *Handler) relayStream(c *gin.Context, turn ai.TurnRequest) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	started := false
	emit := func(ev models.RelayEvent) error {
		if !started {
			c.Writer.Header().Set("Content-Type", "text/event-stream")
			c.Writer.Header().Set("Cache-Control", "no-cache")
			c.Writer.Header().Set("Connection", "keep-alive")
			c.Writer.Header().Set("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
			started = true
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", ev.Encode()); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := h.responder.StreamTurn(c.Request.Context(), turn, emit)
	if err != nil {
		log.Printf("stream turn failed: %v", err)
		if !started {
			status := http.StatusInternalServerError
			var upstream *ai.UpstreamError
			if errors.As(err, &upstream) && upstream.Status == http.StatusTooManyRequests {
				status = http.StatusTooManyRequests
			}
			c.JSON(status, gin.H{
				"error":   err.Error(),
				"message": fallbackMessage,
			})
			return
		}
		// client is mid-stream; surface the failure in-band, then close
		_ = emit(models.ErrorEvent(fallbackMessage))
	}

	if started {
		_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", models.StreamTerminator)
		flusher.Flush()
	}
}
