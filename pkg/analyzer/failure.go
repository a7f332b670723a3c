package analyzer

import (
	"context"
	"errors"

	"github.com/xhad/doccheck/internal/types"
	"github.com/xhad/doccheck/pkg/aggregate"
	"github.com/xhad/doccheck/pkg/extract"
	"github.com/xhad/doccheck/pkg/processor"
	"github.com/xhad/doccheck/pkg/provider"
)

// Failure is the error Analyze returns. It carries the localized chat message for the failure and
// the ack of saving that message to the chat. errors.Is and errors.As see the underlying error.
type Failure struct {
	Err         error
	Key         string
	Detail      string
	Message     string
	Language    string
	Persistence types.Ack
}

func (f *Failure) Error() string { return f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

// Fail turns err into a *Failure and, when the request names a user and a chat, saves the
// localized message there so the chat shows why the analysis stopped. An err that already wraps a
// *Failure is not saved again. Fail returns nil for a nil err.
func (a *Analyzer) Fail(ctx context.Context, req Request, err error) error {
	if err == nil {
		return nil
	}
	return a.fail(ctx, req, err)
}

func (a *Analyzer) fail(ctx context.Context, req Request, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	key, detail := failureKey(err)
	lang := a.language(req.Language)
	f = &Failure{
		Err:      err,
		Key:      key,
		Detail:   detail,
		Message:  aggregate.ErrorMessage(key, lang),
		Language: lang,
	}

	log := a.log.With("request_id", req.RequestID)
	log.Warn("analysis failed", "error_key", key, "detail", detail, "error", err)
	f.Persistence = a.save(ctx, log, req, f.Message, map[string]any{"error": key, "detail": detail}, lang)
	return f
}

func failureKey(err error) (key, detail string) {
	var ce *provider.ClientError
	switch {
	case errors.As(err, &ce):
		return ce.Key(), ce.Body
	case errors.Is(err, ErrUploadTooLarge):
		return aggregate.ErrorKeyFileTooLarge, "file_too_large"
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return aggregate.ErrorKeyInvalidRequest, "unsupported_file_type"
	case errors.Is(err, extract.ErrLegacyFormatNotConverted):
		return aggregate.ErrorKeyInvalidRequest, "legacy_ppt_not_converted"
	case errors.Is(err, processor.ErrInvalidChunkStrategy):
		return aggregate.ErrorKeyInvalidRequest, "invalid_chunk_strategy"
	case errors.Is(err, ErrInvalidChunkSize):
		return aggregate.ErrorKeyInvalidRequest, "invalid_chunk_size"
	case errors.Is(err, ErrEmptyUpload):
		return aggregate.ErrorKeyInvalidRequest, "empty_upload"
	}
	return aggregate.ErrorKeyUnknown, "internal_error"
}
