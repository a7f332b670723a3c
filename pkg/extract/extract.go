// Package extract turns uploaded office documents into ordered text units and embedded images.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xhad/doccheck/internal/logger"
	"github.com/xhad/doccheck/internal/models"
	"github.com/xhad/doccheck/internal/types"
	"github.com/xhad/doccheck/pkg/processor"
)

var (
	ErrUnsupportedFormat        = errors.New("unsupported file format")
	ErrLegacyFormatNotConverted = errors.New("legacy .ppt requires office_legacy_convert")
)

type Options struct {
	MinCharsRequired    int
	OCRForPDF           bool
	OCRForOfficeImages  bool
	OfficeLegacyConvert bool
}

type Result struct {
	Units   []models.ExtractionUnit
	Images  []models.ImageUnit
	OCRUsed bool
}

type Extractor struct {
	ocr       types.OCR
	converter *Converter
	log       *logger.Logger

	pdfText   func(ctx context.Context, data []byte) ([]string, error)
	pdfImages func(data []byte) ([]pdfImage, error)
}

func New(ocr types.OCR, converter *Converter, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{
		ocr:       ocr,
		converter: converter,
		log:       log,
		pdfText:   pdfPageTexts,
		pdfImages: pdfEmbeddedImages,
	}
}

// Extract dispatches on the detected format. Legacy .ppt is converted to PDF first and its pages
// are labelled as slides.
func (e *Extractor) Extract(ctx context.Context, f models.Format, data []byte, opts Options) (*Result, error) {
	switch f {
	case models.FormatPDF:
		return e.extractPDF(ctx, data, opts, "page")
	case models.FormatDOCX:
		return e.extractDOCX(ctx, data, opts)
	case models.FormatPPTX:
		return e.extractPPTX(ctx, data, opts)
	case models.FormatPPT:
		if !opts.OfficeLegacyConvert || e.converter == nil {
			return nil, ErrLegacyFormatNotConverted
		}
		pdf, err := e.converter.ToPDF(ctx, data, "ppt")
		if err != nil {
			return nil, fmt.Errorf("failed to convert legacy presentation: %w", err)
		}
		return e.extractPDF(ctx, pdf, opts, "slide")
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte, opts Options, unitLabel string) (*Result, error) {
	pages, err := e.pdfText(ctx, data)
	if err != nil {
		if !opts.OCRForPDF || e.ocr == nil {
			return nil, fmt.Errorf("failed to read pdf: %w", err)
		}
		e.log.Warn("pdf text extraction failed, trying ocr", "error", err)
		pages = nil
	}

	res := &Result{}
	joined := strings.TrimSpace(strings.Join(pages, "\n"))
	if processor.CharCount(joined) < opts.MinCharsRequired && opts.OCRForPDF && e.ocr != nil {
		e.log.Info("pdf text below minimum, using ocr", "chars", processor.CharCount(joined), "min_chars_required", opts.MinCharsRequired)
		text, err := e.ocr.OCRDocument(ctx, data)
		switch {
		case err != nil:
			e.log.Warn("pdf ocr failed, keeping extracted text", "error", err)
		case strings.TrimSpace(text) == "":
			e.log.Warn("pdf ocr found no text, keeping extracted text")
		default:
			res.OCRUsed = true
			res.Units = []models.ExtractionUnit{{Source: "document", Text: text}}
		}
	}
	if !res.OCRUsed {
		for i, text := range pages {
			res.Units = append(res.Units, models.ExtractionUnit{Source: fmt.Sprintf("%s:%d", unitLabel, i+1), Text: text})
		}
	}

	images, err := e.pdfImages(data)
	if err != nil {
		e.log.Warn("pdf image extraction failed", "error", err)
	}
	for _, img := range images {
		jpeg, err := ToJPEG(img.data)
		if err != nil {
			e.log.Debug("skipping pdf image", "page", img.page, "error", err)
			continue
		}
		res.Images = append(res.Images, models.ImageUnit{
			Source: fmt.Sprintf("%s:%d:image:%d", unitLabel, img.page, img.index),
			Data:   jpeg,
		})
	}

	return res, nil
}

// ocrImages appends recognized image text as extra units when enabled. Failures only cost the
// image its text unit.
func (e *Extractor) ocrImages(ctx context.Context, res *Result, images []models.ImageUnit, label func(i int, img models.ImageUnit) string, opts Options) {
	if !opts.OCRForOfficeImages || e.ocr == nil {
		return
	}
	for i, img := range images {
		text, err := e.ocr.OCRImage(ctx, img.Data)
		if err != nil {
			e.log.Warn("image ocr failed", "source", img.Source, "error", err)
			continue
		}
		if text = processor.Normalize(text); text != "" {
			res.Units = append(res.Units, models.ExtractionUnit{Source: label(i, img), Text: text})
		}
	}
}
