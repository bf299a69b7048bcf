package ai

import (
	"strings"

	"carechat/internal/models"
)

// Outbound payload for the provider's response-generation endpoint.

type responsePayload struct {
	Model        string            `json:"model"`
	Input        []inputMessage    `json:"input"`
	Instructions string            `json:"instructions,omitempty"`
	Tools        []models.ToolDecl `json:"tools,omitempty"`
	Conversation *conversationRef  `json:"conversation,omitempty"`
	Stream       bool              `json:"stream,omitempty"`
}

type inputMessage struct {
	Role        string        `json:"role"`
	Content     []contentPart `json:"content"`
	Attachments []attachment  `json:"attachments,omitempty"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type attachment struct {
	FileID string            `json:"file_id"`
	Tools  []models.ToolDecl `json:"tools"`
}

type conversationRef struct {
	ID string `json:"id"`
}

// formattingRules rides along with every turn so replies render cleanly in
// the widget, whichever instructions the hosted assistant carries.
const formattingRules = "Format replies as markdown. Use short paragraphs, " +
	"bulleted lists for criteria, and bold for eligibility determinations. " +
	"Never emit raw HTML."

// privacyDisclosure is appended verbatim whenever the user's message touches
// privacy topics.
const privacyDisclosure = "Privacy notice: messages and uploaded documents " +
	"are forwarded to a third-party AI provider for analysis and are not " +
	"stored by this service. Do not include information you are not " +
	"authorized to share; this tool is informational and is not a HIPAA " +
	"system of record."

var privacyTerms = []string{
	"privacy",
	"hipaa",
	"phi",
	"confidential",
	"personal data",
	"data protection",
	"data security",
}

func isPrivacyRelated(message string) bool {
	lowered := strings.ToLower(message)
	for _, term := range privacyTerms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

// mergeInstructions layers the fixed formatting rules (and, for
// privacy-related queries, the disclosure) onto the assistant's own
// instruction text.
func mergeInstructions(assistant string, message string) string {
	parts := make([]string, 0, 3)
	if assistant = strings.TrimSpace(assistant); assistant != "" {
		parts = append(parts, assistant)
	}
	parts = append(parts, formattingRules)
	if isPrivacyRelated(message) {
		parts = append(parts, privacyDisclosure)
	}
	return strings.Join(parts, "\n\n")
}

// sanitizeTools drops a file_search declaration that carries no vector store
// ids; forwarding one trips provider-side validation. The drop is silent.
func sanitizeTools(tools []models.ToolDecl) []models.ToolDecl {
	kept := make([]models.ToolDecl, 0, len(tools))
	for _, tool := range tools {
		if tool.Type == models.ToolFileSearch && len(tool.VectorStoreIDs) == 0 {
			continue
		}
		kept = append(kept, tool)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// compose assembles the outbound payload for one turn: the text block, the
// deduplicated attachment references, merged instructions, sanitized tools
// and, when a prior handle exists, the continuity request.
func compose(asst *models.AssistantConfig, req TurnRequest, fileIDs []string, stream bool) responsePayload {
	input := inputMessage{
		Role:    "user",
		Content: []contentPart{{Type: "input_text", Text: req.Message}},
	}
	for _, id := range fileIDs {
		input.Attachments = append(input.Attachments, attachment{
			FileID: id,
			Tools:  []models.ToolDecl{{Type: models.ToolFileSearch}},
		})
	}

	payload := responsePayload{
		Model:        asst.Model,
		Input:        []inputMessage{input},
		Instructions: mergeInstructions(asst.Instructions, req.Message),
		Tools:        sanitizeTools(asst.Tools),
		Stream:       stream,
	}
	if req.ThreadID != "" {
		payload.Conversation = &conversationRef{ID: req.ThreadID}
	}
	return payload
}
