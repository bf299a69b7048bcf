package models

// AssistantConfig is the provider-hosted assistant definition: fetched once
// per process lifetime and shared read-only across requests.
type AssistantConfig struct {
	Model        string
	Instructions string
	Tools        []ToolDecl
}

// ToolDecl is a capability advertised to the provider while generating.
type ToolDecl struct {
	Type           string   `json:"type"`
	VectorStoreIDs []string `json:"vector_store_ids,omitempty"`
}

const ToolFileSearch = "file_search"
