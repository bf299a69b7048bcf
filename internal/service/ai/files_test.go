package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"carechat/internal/models"
)

func TestDecodeBase64Content(t *testing.T) {
	plain := base64.StdEncoding.EncodeToString([]byte("hello"))

	got, err := decodeBase64Content(plain)
	if err != nil || string(got) != "hello" {
		t.Fatalf("bare base64: got %q, err %v", got, err)
	}

	got, err = decodeBase64Content("data:application/pdf;base64," + plain)
	if err != nil || string(got) != "hello" {
		t.Fatalf("data URL: got %q, err %v", got, err)
	}

	if _, err := decodeBase64Content("%%not-base64%%"); err == nil {
		t.Fatalf("expected decode error for invalid input")
	}
}

func encodedFile(name, mime string, body []byte) models.UploadedFile {
	return models.UploadedFile{
		Name:    name,
		Type:    mime,
		Size:    int64(len(body)),
		Content: fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(body)),
		IsPDF:   mime == "application/pdf",
		IsImage: mime == "image/png",
	}
}

func TestUploadFilesSkipsFailuresAndKeepsOrder(t *testing.T) {
	var calls int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse upload form: %v", err)
		}
		if purpose := r.FormValue("purpose"); purpose != "assistants" {
			t.Errorf("expected purpose assistants, got %q", purpose)
		}
		calls++
		if calls == 2 {
			http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"file-%d","object":"file"}`, calls)
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	uploaded := svc.UploadFiles(context.Background(), []models.UploadedFile{
		encodedFile("notes.pdf", "application/pdf", []byte("pdf bytes")),
		encodedFile("scan.png", "image/png", []byte("png bytes")),
		encodedFile("chart.pdf", "application/pdf", []byte("more pdf")),
	})

	if calls != 3 {
		t.Fatalf("expected 3 upload attempts, got %d", calls)
	}
	if len(uploaded) != 2 {
		t.Fatalf("expected 2 successful uploads, got %+v", uploaded)
	}
	if uploaded[0].ID != "file-1" || uploaded[0].Name != "notes.pdf" {
		t.Fatalf("unexpected first upload: %+v", uploaded[0])
	}
	if uploaded[1].ID != "file-3" || uploaded[1].Name != "chart.pdf" {
		t.Fatalf("unexpected second upload: %+v", uploaded[1])
	}
}

func TestUploadFilesFiltersWithoutCallingProvider(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected provider call: %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)
	uploaded := svc.UploadFiles(context.Background(), []models.UploadedFile{
		{Name: "notes.txt", Type: "text/plain", Content: "aGVsbG8="},
		{Name: "broken.pdf", Type: "application/pdf", IsPDF: true, Content: "%%bad%%"},
	})
	if len(uploaded) != 0 {
		t.Fatalf("expected no uploads, got %+v", uploaded)
	}
}
