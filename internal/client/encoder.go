package client

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"carechat/internal/models"
)

const (
	// MaxAcceptBytes is the selection ceiling; anything larger is refused
	// outright.
	MaxAcceptBytes = 50 << 20
	// MaxProcessBytes is the processing cap actually enforced per file.
	MaxProcessBytes = 20 << 20
)

// ErrNoValidFiles reports a selection in which nothing qualified; no network
// call is made in that case.
var ErrNoValidFiles = errors.New("please upload valid PDF or image files under 20MB")

// FileInput is one file picked in the selection dialog.
type FileInput struct {
	Name string
	Type string
	Data []byte
}

func qualifies(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") || mimeType == "application/pdf"
}

// EncodeFile packages one qualifying file as the base64 payload the server
// expects, mirroring a browser FileReader data URL.
func EncodeFile(in FileInput) models.UploadedFile {
	return models.UploadedFile{
		Name:    in.Name,
		Type:    in.Type,
		Size:    int64(len(in.Data)),
		Content: fmt.Sprintf("data:%s;base64,%s", in.Type, base64.StdEncoding.EncodeToString(in.Data)),
		IsImage: strings.HasPrefix(in.Type, "image/"),
		IsPDF:   in.Type == "application/pdf",
	}
}

// EncodeSelection filters a file selection to PDFs and images under the size
// ceiling and encodes the survivors. Each rejected file produces a notice
// naming it. When nothing qualifies the selection is refused with
// ErrNoValidFiles.
func EncodeSelection(selection []FileInput) ([]models.UploadedFile, []string, error) {
	var accepted []models.UploadedFile
	var notices []string
	for _, in := range selection {
		switch {
		case !qualifies(in.Type):
			notices = append(notices, fmt.Sprintf("Skipped %s: only PDF and image files are supported", in.Name))
		case len(in.Data) > MaxAcceptBytes:
			notices = append(notices, fmt.Sprintf("Skipped %s: file is too large", in.Name))
		case len(in.Data) > MaxProcessBytes:
			notices = append(notices, fmt.Sprintf("Skipped %s: over the 20MB processing limit", in.Name))
		default:
			accepted = append(accepted, EncodeFile(in))
		}
	}
	if len(accepted) == 0 {
		return nil, notices, ErrNoValidFiles
	}
	return accepted, notices, nil
}

// analysisRequest synthesizes the message automatically sent once an upload
// selection finishes encoding.
func analysisRequest(files []models.UploadedFile) string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return fmt.Sprintf(
		"I have uploaded %d file(s) for hospice eligibility analysis: %s. "+
			"Please provide a comprehensive eligibility assessment based on the "+
			"content of these documents.",
		len(files), strings.Join(names, ", "))
}
