package client

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestEncodeFileProducesDataURL(t *testing.T) {
	encoded := EncodeFile(FileInput{Name: "scan.png", Type: "image/png", Data: []byte{1, 2, 3}})

	if !strings.HasPrefix(encoded.Content, "data:image/png;base64,") {
		t.Fatalf("expected data URL content, got %q", encoded.Content)
	}
	if !encoded.IsImage || encoded.IsPDF {
		t.Fatalf("type flags wrong: %+v", encoded)
	}
	if encoded.Size != 3 {
		t.Fatalf("unexpected size: %d", encoded.Size)
	}
}

func TestEncodeSelectionFiltersAndNotices(t *testing.T) {
	selection := []FileInput{
		{Name: "notes.pdf", Type: "application/pdf", Data: []byte("pdf")},
		{Name: "malware.exe", Type: "application/octet-stream", Data: []byte("nope")},
		{Name: "huge.pdf", Type: "application/pdf", Data: bytes.Repeat([]byte{0}, 25<<20)},
	}

	accepted, notices, err := EncodeSelection(selection)
	if err != nil {
		t.Fatalf("EncodeSelection: %v", err)
	}
	if len(accepted) != 1 || accepted[0].Name != "notes.pdf" {
		t.Fatalf("unexpected accepted files: %+v", accepted)
	}
	if len(notices) != 2 {
		t.Fatalf("expected 2 notices, got %v", notices)
	}
	if !strings.Contains(notices[0], "malware.exe") {
		t.Fatalf("notice must name the skipped file: %q", notices[0])
	}
	if !strings.Contains(notices[1], "huge.pdf") || !strings.Contains(notices[1], "20MB") {
		t.Fatalf("oversize notice wrong: %q", notices[1])
	}
}

func TestEncodeSelectionNothingQualifies(t *testing.T) {
	_, notices, err := EncodeSelection([]FileInput{
		{Name: "song.mp3", Type: "audio/mpeg", Data: []byte("x")},
	})
	if !errors.Is(err, ErrNoValidFiles) {
		t.Fatalf("expected ErrNoValidFiles, got %v", err)
	}
	if len(notices) != 1 {
		t.Fatalf("expected a notice for the skipped file, got %v", notices)
	}
}

func TestAnalysisRequestNamesFiles(t *testing.T) {
	accepted, _, err := EncodeSelection([]FileInput{
		{Name: "a.pdf", Type: "application/pdf", Data: []byte("a")},
		{Name: "b.png", Type: "image/png", Data: []byte("b")},
	})
	if err != nil {
		t.Fatalf("EncodeSelection: %v", err)
	}
	msg := analysisRequest(accepted)
	if !strings.Contains(msg, "2 file(s)") || !strings.Contains(msg, "a.pdf, b.png") {
		t.Fatalf("unexpected analysis request: %q", msg)
	}
}
