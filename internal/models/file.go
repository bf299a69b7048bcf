package models

// UploadedFile carries one browser-selected file through a single turn:
// encoded client-side, decoded and forwarded server-side, then discarded.
type UploadedFile struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Size    int64  `json:"size"`
	Content string `json:"content"` // base64, optionally a data URL
	IsImage bool   `json:"isImage,omitempty"`
	IsPDF   bool   `json:"isPDF,omitempty"`
}

// ProviderFile pairs a provider-assigned file id with the original display
// name. The id stays valid for the rest of the browser session, so later
// turns can reference the file without re-uploading.
type ProviderFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
