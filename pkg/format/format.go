// Package format classifies uploads by filename extension with the declared content type as
// a fallback.
package format

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/xhad/doccheck/internal/models"
)

var byExtension = map[string]models.Format{
	".pdf":  models.FormatPDF,
	".docx": models.FormatDOCX,
	".pptx": models.FormatPPTX,
	".ppt":  models.FormatPPT,
}

var byContentType = map[string]models.Format{
	"application/pdf": models.FormatPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   models.FormatDOCX,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": models.FormatPPTX,
	"application/vnd.ms-powerpoint":                                             models.FormatPPT,
}

// Detect returns the document format. A recognized extension always wins over the content type.
func Detect(filename, contentType string) models.Format {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if f, ok := byExtension[ext]; ok {
		return f
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if f, ok := byContentType[mediaType]; ok {
		return f
	}
	return models.FormatUnknown
}

// DefaultStrategy is the chunk strategy used when the caller does not pick one.
func DefaultStrategy(f models.Format) string {
	switch f {
	case models.FormatPDF:
		return "size"
	case models.FormatDOCX:
		return "sections"
	case models.FormatPPTX, models.FormatPPT:
		return "slides"
	}
	return "size"
}
