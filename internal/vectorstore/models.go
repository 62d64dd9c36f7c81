package vectorstore

// Document is a unit of content stored in the vector store. Metadata
// carries the note's ID, domain, content type, and destination so
// searches can be filtered without touching the relational store.
type Document struct {
	// ID is the document identifier, normally the note ID.
	ID string `json:"id"`

	// Content is the text that was embedded.
	Content string `json:"content"`

	// Metadata holds filterable attributes.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResult is a single similarity search hit.
type SearchResult struct {
	// ID is the matched document's identifier.
	ID string `json:"id"`

	// Content is the matched document's text.
	Content string `json:"content"`

	// Score is the similarity in [0, 1], higher is closer.
	Score float32 `json:"score"`

	// Metadata holds the document's stored attributes.
	Metadata map[string]string `json:"metadata,omitempty"`
}
