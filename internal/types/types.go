package types

import (
	"context"

	"github.com/xhad/doccheck/internal/models"
)

// Core interfaces
type OCR interface {
	OCRDocument(ctx context.Context, pdf []byte) (string, error)
	OCRImage(ctx context.Context, img []byte) (string, error)
}

// Verdict is the normalized answer of the classification provider.
type Verdict struct {
	IsDetected bool
	Confidence float64
	ProviderID string
	CreatedAt  string
	Raw        map[string]any
}

type Classifier interface {
	ClassifyText(ctx context.Context, text, externalID string) (*Verdict, error)
	ClassifyImage(ctx context.Context, jpeg []byte) (*Verdict, error)
}

type Ack struct {
	Saved     bool   `json:"saved"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type MessageStore interface {
	SaveAssistantMessage(ctx context.Context, msg models.Message) (Ack, error)
	Close()
}

type Event struct {
	RequestID string `json:"request_id"`
	Stage     string `json:"stage"`
	Current   int    `json:"current,omitempty"`
	Total     int    `json:"total,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type Reporter interface {
	Report(ev Event)
}

// ReporterFunc adapts a plain function to a Reporter.
type ReporterFunc func(ev Event)

func (f ReporterFunc) Report(ev Event) { f(ev) }
