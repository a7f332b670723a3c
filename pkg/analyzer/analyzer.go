// Package analyzer runs one uploaded document through detection, extraction, chunking, provider
// classification and aggregation, and persists the resulting summary.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xhad/doccheck/internal/logger"
	"github.com/xhad/doccheck/internal/models"
	"github.com/xhad/doccheck/internal/types"
	"github.com/xhad/doccheck/pkg/aggregate"
	"github.com/xhad/doccheck/pkg/extract"
	"github.com/xhad/doccheck/pkg/format"
	"github.com/xhad/doccheck/pkg/processor"
	"github.com/xhad/doccheck/pkg/provider"
)

var (
	ErrUploadTooLarge   = errors.New("uploaded file is too large")
	ErrInvalidChunkSize = errors.New("chunk size limits must not be negative")
	ErrEmptyUpload      = errors.New("uploaded file is empty")
)

const toolName = "ai_or_not_analysis"

// Extractor is the extraction backend the pipeline reads documents with.
type Extractor interface {
	Extract(ctx context.Context, f models.Format, data []byte, opts extract.Options) (*extract.Result, error)
}

type Config struct {
	MaxCharsPerChunk    int
	MaxCharsCap         int
	MinCharsRequired    int
	OCRForPDF           bool
	OCRForOfficeImages  bool
	OfficeLegacyConvert bool
	DefaultLanguage     string
	MaxUploadBytes      int64
}

// Request is one analysis job. Nil pointer options and zero sizes fall back to Config.
type Request struct {
	RequestID       string
	Filename        string
	ContentType     string
	Data            []byte
	UserID          string
	ChatID          string
	ExternalID      string
	ClientMessageID string
	Language        string

	ChunkStrategy       string
	MaxCharsPerChunk    int
	MinCharsRequired    *int
	OCRForPDF           *bool
	OCRForOfficeImages  *bool
	OfficeLegacyConvert *bool
}

type Result struct {
	DocumentType string `json:"document_type"`
	models.AggregateVerdict
	Chunks           []models.ChunkResult `json:"chunks"`
	ImageResults     []models.ImageResult `json:"image_results"`
	Summary          string               `json:"summary"`
	Messages         []string             `json:"messages"`
	Language         string               `json:"language"`
	OCRUsed          bool                 `json:"ocr_used"`
	Persistence      types.Ack            `json:"persistence"`
	ProviderRaw      map[string]any       `json:"provider_raw"`
	PersistenceError string               `json:"persistence_error,omitempty"`
}

// InsufficientContent is returned instead of a Result when the document does not carry enough
// text to classify. No provider call has been made.
type InsufficientContent struct {
	DocumentType     string `json:"document_type"`
	InsufficientText bool   `json:"insufficient_text"`
	Message          string `json:"message"`
	Hint             string `json:"hint"`
	TotalCharacters  int    `json:"total_characters"`
	MinCharsRequired int    `json:"min_chars_required"`
	ChunksFound      int    `json:"chunks_found"`
	ImageCandidates  int    `json:"image_candidates"`
	OCRUsed          bool   `json:"ocr_used"`
}

// Outcome holds exactly one of Result or Insufficient.
type Outcome struct {
	Result       *Result
	Insufficient *InsufficientContent
}

type Analyzer struct {
	config     Config
	extractor  Extractor
	classifier types.Classifier
	store      types.MessageStore
	log        *logger.Logger
}

func New(config Config, extractor Extractor, classifier types.Classifier, store types.MessageStore, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.Nop()
	}
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = aggregate.DefaultLanguage
	}
	return &Analyzer{
		config:     config,
		extractor:  extractor,
		classifier: classifier,
		store:      store,
		log:        log,
	}
}

// Analyze runs the whole pipeline. A provider 4xx aborts the analysis; chunks whose calls keep
// failing transiently are skipped. Errors are returned as a *Failure wrapping the cause, after its
// message was saved to the chat. rep may be nil.
func (a *Analyzer) Analyze(ctx context.Context, req Request, rep types.Reporter) (*Outcome, error) {
	if rep == nil {
		rep = types.ReporterFunc(func(types.Event) {})
	}
	out, err := a.analyze(ctx, req, rep)
	if err != nil {
		f := a.fail(ctx, req, err)
		rep.Report(types.Event{RequestID: req.RequestID, Stage: "done", Detail: f.Key})
		return nil, f
	}
	return out, nil
}

func (a *Analyzer) analyze(ctx context.Context, req Request, rep types.Reporter) (*Outcome, error) {
	log := a.log.With("request_id", req.RequestID)
	report := func(stage string, current, total int, detail string) {
		rep.Report(types.Event{RequestID: req.RequestID, Stage: stage, Current: current, Total: total, Detail: detail})
	}
	start := time.Now()

	if a.config.MaxUploadBytes > 0 && int64(len(req.Data)) > a.config.MaxUploadBytes {
		return nil, ErrUploadTooLarge
	}
	if len(req.Data) == 0 {
		return nil, ErrEmptyUpload
	}

	f := format.Detect(req.Filename, req.ContentType)
	log.Info("format detected", "filename", req.Filename, "content_type", req.ContentType, "format", f, "bytes", len(req.Data))
	if f == models.FormatUnknown {
		return nil, fmt.Errorf("%w: %s", extract.ErrUnsupportedFormat, req.Filename)
	}
	report("detected", 0, 0, string(f))

	strategy, err := processor.ResolveStrategy(req.ChunkStrategy, format.DefaultStrategy(f))
	if err != nil {
		return nil, err
	}
	proc, minChars, err := a.processor(req)
	if err != nil {
		return nil, err
	}
	opts := extract.Options{
		MinCharsRequired:    minChars,
		OCRForPDF:           pick(req.OCRForPDF, a.config.OCRForPDF),
		OCRForOfficeImages:  pick(req.OCRForOfficeImages, a.config.OCRForOfficeImages),
		OfficeLegacyConvert: pick(req.OfficeLegacyConvert, a.config.OfficeLegacyConvert),
	}

	extracted, err := a.extractor.Extract(ctx, f, req.Data, opts)
	if err != nil {
		return nil, err
	}
	log.Info("document extracted", "units", len(extracted.Units), "images", len(extracted.Images), "ocr_used", extracted.OCRUsed)
	if extracted.OCRUsed {
		report("ocr", 0, 0, "document")
	}
	report("extracted", len(extracted.Units), len(extracted.Images), "")

	chunks, err := proc.Process(extracted.Units, strategy)
	if err != nil {
		return nil, err
	}
	total := processor.TotalChars(chunks)
	log.Info("chunks planned", "strategy", strategy, "chunks", len(chunks), "total_chars", total, "max_chars_per_chunk", proc.MaxCharsPerChunk())
	report("planned", 0, len(chunks), strategy)

	if total < minChars {
		log.Warn("text too short after extraction", "total_chars", total, "min_chars_required", minChars)
		report("done", 0, 0, "insufficient_text")
		return &Outcome{Insufficient: &InsufficientContent{
			DocumentType:     string(f),
			InsufficientText: true,
			Message:          insufficientMessage,
			Hint:             insufficientHint,
			TotalCharacters:  total,
			MinCharsRequired: minChars,
			ChunksFound:      len(chunks),
			ImageCandidates:  len(extracted.Images),
			OCRUsed:          extracted.OCRUsed,
		}}, nil
	}

	results, err := a.classifyChunks(ctx, log, req, chunks, report)
	if err != nil {
		return nil, err
	}
	images, err := a.classifyImages(ctx, log, extracted.Images, report)
	if err != nil {
		return nil, err
	}

	verdict := aggregate.Aggregate(results)
	lang := a.language(req.Language)
	messages := aggregate.Messages(verdict, lang)
	summary := aggregate.Summary(messages, lang)
	log.Info("aggregated",
		"total_words", verdict.TotalWords,
		"total_chars", verdict.TotalChars,
		"ai_generated", verdict.AIGenerated,
		"confidence", verdict.Confidence,
		"chunks_ok", len(results),
		"chunks_total", len(chunks),
		"images_ok", len(images),
	)

	res := &Result{
		DocumentType:     string(f),
		AggregateVerdict: verdict,
		Chunks:           results,
		ImageResults:     images,
		Summary:          summary,
		Messages:         messages,
		Language:         lang,
		OCRUsed:          extracted.OCRUsed,
		ProviderRaw:      providerRaw(results, images, verdict, extracted.OCRUsed),
	}
	if res.Chunks == nil {
		res.Chunks = []models.ChunkResult{}
	}
	if res.ImageResults == nil {
		res.ImageResults = []models.ImageResult{}
	}

	content := res.Summary + "\nMessages: " + strings.Join(res.Messages, ", ")
	res.Persistence = a.save(ctx, log, req, content, res.ProviderRaw, res.Language)
	if !res.Persistence.Saved && res.Persistence.Error != "" {
		res.PersistenceError = res.Persistence.Error
	}

	log.Info("analysis finished", "elapsed_ms", time.Since(start).Milliseconds())
	report("done", len(results), len(chunks), "")
	return &Outcome{Result: res}, nil
}

func (a *Analyzer) processor(req Request) (processor.Processor, int, error) {
	minChars := a.config.MinCharsRequired
	if req.MinCharsRequired != nil {
		minChars = *req.MinCharsRequired
	}
	maxChars := a.config.MaxCharsPerChunk
	if req.MaxCharsPerChunk != 0 {
		maxChars = req.MaxCharsPerChunk
	}
	if minChars < 0 || maxChars < 0 {
		return processor.Processor{}, 0, ErrInvalidChunkSize
	}

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		MaxCharsPerChunk: maxChars,
		MaxCharsCap:      a.config.MaxCharsCap,
		MinCharsRequired: minChars,
	})
	return proc, minChars, nil
}

func (a *Analyzer) classifyChunks(ctx context.Context, log *logger.Logger, req Request, chunks []models.Chunk, report func(string, int, int, string)) ([]models.ChunkResult, error) {
	var results []models.ChunkResult
	for i, ch := range chunks {
		idx := i + 1
		wc := processor.WordCount(ch.Text)
		cc := processor.CharCount(ch.Text)

		externalID := ""
		if req.ExternalID != "" {
			externalID = fmt.Sprintf("%s-chunk-%d", req.ExternalID, idx)
		}

		log.Debug("classifying chunk", "index", idx, "source", ch.Source, "words", wc, "chars", cc)
		v, err := a.classifier.ClassifyText(ctx, ch.Text, externalID)
		report("chunk", idx, len(chunks), ch.Source)
		if err != nil {
			if fatal(err) {
				log.Warn("provider rejected chunk, aborting", "index", idx, "error", err)
				return nil, err
			}
			log.Error("provider failed, skipping chunk", "index", idx, "source", ch.Source, "error", err)
			continue
		}

		results = append(results, models.ChunkResult{
			Index:          idx,
			Source:         ch.Source,
			WordCount:      wc,
			CharacterCount: cc,
			IsDetected:     v.IsDetected,
			Confidence:     v.Confidence,
			ProviderID:     v.ProviderID,
			CreatedAt:      v.CreatedAt,
			Raw:            v.Raw,
		})
	}
	return results, nil
}

func (a *Analyzer) classifyImages(ctx context.Context, log *logger.Logger, images []models.ImageUnit, report func(string, int, int, string)) ([]models.ImageResult, error) {
	var results []models.ImageResult
	for i, img := range images {
		idx := i + 1
		v, err := a.classifier.ClassifyImage(ctx, img.Data)
		report("image", idx, len(images), img.Source)
		if err != nil {
			if fatal(err) {
				log.Warn("provider rejected image, aborting", "index", idx, "error", err)
				return nil, err
			}
			log.Error("provider failed, skipping image", "index", idx, "source", img.Source, "error", err)
			continue
		}

		results = append(results, models.ImageResult{
			Index:      idx,
			Source:     img.Source,
			IsDetected: v.IsDetected,
			Confidence: v.Confidence,
			ProviderID: v.ProviderID,
			CreatedAt:  v.CreatedAt,
			Raw:        v.Raw,
		})
	}
	return results, nil
}

// save stores content as an assistant message in the request's chat. Failures end up in the ack
// only.
func (a *Analyzer) save(ctx context.Context, log *logger.Logger, req Request, content string, raw map[string]any, lang string) types.Ack {
	if req.UserID == "" || req.ChatID == "" || a.store == nil {
		log.Debug("persistence skipped", "has_store", a.store != nil)
		return types.Ack{}
	}

	msg := models.Message{
		ID:              req.ClientMessageID,
		UserID:          req.UserID,
		ChatID:          req.ChatID,
		ClientMessageID: req.ClientMessageID,
		Content:         content,
		Metadata: map[string]any{
			"language":  lang,
			"ai_detect": map[string]any{"raw": raw},
			"tool":      toolName,
		},
	}

	ack, err := a.store.SaveAssistantMessage(ctx, msg)
	if err != nil {
		log.Error("failed to save assistant message", "user_id", req.UserID, "chat_id", req.ChatID, "error", err)
		ack.Saved = false
		if ack.Error == "" {
			ack.Error = err.Error()
		}
		return ack
	}
	log.Info("assistant message saved", "message_id", ack.MessageID)
	return ack
}

func (a *Analyzer) language(requested string) string {
	if strings.TrimSpace(requested) == "" {
		requested = a.config.DefaultLanguage
	}
	return aggregate.NormalizeLanguage(requested)
}

func providerRaw(results []models.ChunkResult, images []models.ImageResult, v models.AggregateVerdict, ocrUsed bool) map[string]any {
	chunks := make([]map[string]any, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, r.Raw)
	}
	imageChunks := make([]map[string]any, 0, len(images))
	for _, r := range images {
		imageChunks = append(imageChunks, r.Raw)
	}
	return map[string]any{
		"chunks":       chunks,
		"image_chunks": imageChunks,
		"ai_generated": v.AIGenerated,
		"confidence":   v.Confidence,
		"ocr_used":     ocrUsed,
	}
}

func fatal(err error) bool {
	var ce *provider.ClientError
	return errors.As(err, &ce)
}

func pick(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

const (
	insufficientMessage = "Not enough text to analyze; nothing was sent to the provider."
	insufficientHint    = "The extracted text is shorter than the minimum, so no AI detection was run. " +
		"To get a result you can lower min_chars_required, use chunk_strategy=none or size, " +
		"enable the OCR options for PDF and Office images, or add more text to the document."
)
