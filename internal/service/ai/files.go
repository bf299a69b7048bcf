package ai

import (
	"context"
	"encoding/base64"
	"log"
	"strings"

	"carechat/internal/models"

	openai "github.com/sashabaranov/go-openai"
)

// maxProcessBytes caps how large a decoded file may be before it is skipped.
// The widget enforces the same ceiling; this is the server-side re-check.
const maxProcessBytes = 20 << 20

// decodeBase64Content strips an optional data-URL prefix before decoding.
func decodeBase64Content(content string) ([]byte, error) {
	if idx := strings.Index(content, ","); idx >= 0 && strings.Contains(content[:idx], ";base64") {
		content = content[idx+1:]
	}
	return base64.StdEncoding.DecodeString(content)
}

// UploadFiles forwards each PDF/image to the provider's file storage with
// purpose "assistants" and collects the assigned ids. Uploads run
// sequentially so the returned order matches the input order. A file that
// fails to decode or upload is logged and skipped; it never aborts the
// batch and is simply absent from the attachment list for this turn.
func (s *Service) UploadFiles(ctx context.Context, files []models.UploadedFile) []models.ProviderFile {
	var uploaded []models.ProviderFile
	for _, file := range files {
		if !file.IsPDF && !file.IsImage {
			log.Printf("skipping non-PDF/image file: %s", file.Name)
			continue
		}
		data, err := decodeBase64Content(file.Content)
		if err != nil {
			log.Printf("decode %s failed: %v", file.Name, err)
			continue
		}
		if len(data) > maxProcessBytes {
			log.Printf("skipping %s: %d bytes exceeds processing cap", file.Name, len(data))
			continue
		}
		created, err := s.client.CreateFileBytes(ctx, openai.FileBytesRequest{
			Name:    file.Name,
			Bytes:   data,
			Purpose: openai.PurposeAssistants,
		})
		if err != nil {
			log.Printf("upload %s failed: %v", file.Name, err)
			continue
		}
		if created.ID == "" {
			log.Printf("upload %s returned no file id", file.Name)
			continue
		}
		uploaded = append(uploaded, models.ProviderFile{ID: created.ID, Name: file.Name})
	}
	return uploaded
}
