package models

import "time"

type Format string

const (
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
	FormatPPTX    Format = "pptx"
	FormatPPT     Format = "ppt"
	FormatUnknown Format = "unknown"
)

// ExtractionUnit is one piece of extracted text with its provenance label.
type ExtractionUnit struct {
	Source string
	Text   string
}

// ImageUnit is an embedded image. Data holds the encoded bytes as found in the document.
type ImageUnit struct {
	Source string
	Data   []byte
}

type Chunk struct {
	Source string
	Text   string
}

type ChunkResult struct {
	Index          int            `json:"index"`
	Source         string         `json:"source"`
	WordCount      int            `json:"word_count"`
	CharacterCount int            `json:"character_count"`
	IsDetected     bool           `json:"is_detected"`
	Confidence     float64        `json:"confidence"`
	ProviderID     string         `json:"provider_id,omitempty"`
	CreatedAt      string         `json:"created_at,omitempty"`
	Raw            map[string]any `json:"-"`
}

type ImageResult struct {
	Index      int            `json:"index"`
	Source     string         `json:"source"`
	IsDetected bool           `json:"is_detected"`
	Confidence float64        `json:"confidence"`
	ProviderID string         `json:"provider_id,omitempty"`
	CreatedAt  string         `json:"created_at,omitempty"`
	Raw        map[string]any `json:"-"`
}

type AggregateVerdict struct {
	AIGenerated bool    `json:"ai_generated"`
	Confidence  float64 `json:"confidence"`
	TotalWords  int     `json:"total_words"`
	TotalChars  int     `json:"total_characters"`
	Quality     string  `json:"quality"`
	NSFW        string  `json:"nsfw"`
}

// Message is the assistant chat message written after an analysis.
type Message struct {
	ID              string
	UserID          string
	ChatID          string
	ClientMessageID string
	Content         string
	Metadata        map[string]any
	CreatedAt       time.Time
}
