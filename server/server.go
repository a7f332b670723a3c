// Package server exposes the analyzer over HTTP and streams progress over websockets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xhad/doccheck/internal/logger"
	"github.com/xhad/doccheck/internal/types"
	"github.com/xhad/doccheck/pkg/analyzer"
	"github.com/xhad/doccheck/pkg/extract"
	"github.com/xhad/doccheck/pkg/processor"
	"github.com/xhad/doccheck/pkg/provider"
)

// multipart fields and boundaries on top of the file itself
const formOverhead = 1 << 20

type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.Request, rep types.Reporter) (*analyzer.Outcome, error)
	Fail(ctx context.Context, req analyzer.Request, err error) error
}

type Config struct {
	Addr           string
	MaxUploadBytes int64
}

type Server struct {
	config   Config
	analyzer Analyzer
	hub      *Hub
	log      *logger.Logger
	router   *chi.Mux
}

func New(config Config, a Analyzer, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 25 << 20
	}

	s := &Server{
		config:   config,
		analyzer: a,
		hub:      NewHub(log),
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Post("/check-ai", s.handleCheckAI)
	r.Get("/ws", s.hub.ServeWS)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Hub() *Hub { return s.hub }

// ListenAndServe blocks until ctx is done, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.config.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleCheckAI(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", analyzer.ErrUploadTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, err := s.parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	w.Header().Set("X-Request-ID", req.RequestID)

	// The analysis runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	if int64(len(req.Data)) > s.config.MaxUploadBytes {
		s.writeAnalyzeError(w, req.RequestID, s.analyzer.Fail(ctx, req, analyzer.ErrUploadTooLarge))
		return
	}

	s.log.Debug("analysis started", "request_id", req.RequestID, "subscribers", s.hub.Subscribers(req.RequestID))
	out, err := s.analyzer.Analyze(ctx, req, s.hub)
	if err != nil {
		s.writeAnalyzeError(w, req.RequestID, err)
		return
	}

	if out.Insufficient != nil {
		writeJSON(w, http.StatusOK, out.Insufficient)
		return
	}
	writeJSON(w, http.StatusOK, out.Result)
}

func (s *Server) parseRequest(r *http.Request) (analyzer.Request, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return analyzer.Request{}, fmt.Errorf("file is required: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return analyzer.Request{}, fmt.Errorf("failed to read upload: %w", err)
	}

	req := analyzer.Request{
		RequestID:       r.FormValue("request_id"),
		Filename:        header.Filename,
		ContentType:     header.Header.Get("Content-Type"),
		Data:            data,
		UserID:          r.FormValue("user_id"),
		ChatID:          r.FormValue("chat_id"),
		ExternalID:      r.FormValue("external_id"),
		ClientMessageID: r.FormValue("client_message_id"),
		Language:        r.FormValue("language"),
		ChunkStrategy:   r.FormValue("chunk_strategy"),
	}
	if req.RequestID == "" {
		req.RequestID = middleware.GetReqID(r.Context())
	}

	if v := r.FormValue("max_chars_per_chunk"); v != "" {
		if req.MaxCharsPerChunk, err = strconv.Atoi(strings.TrimSpace(v)); err != nil {
			return req, fmt.Errorf("max_chars_per_chunk must be an integer")
		}
	}
	if v := r.FormValue("min_chars_required"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return req, fmt.Errorf("min_chars_required must be an integer")
		}
		req.MinCharsRequired = &n
	}

	for field, dst := range map[string]**bool{
		"ocr_for_pdf":           &req.OCRForPDF,
		"ocr_for_office_images": &req.OCRForOfficeImages,
		"office_legacy_convert": &req.OfficeLegacyConvert,
	} {
		v := r.FormValue(field)
		if v == "" {
			continue
		}
		b, err := parseBool(v)
		if err != nil {
			return req, fmt.Errorf("%s: %w", field, err)
		}
		*dst = &b
	}

	return req, nil
}

// writeAnalyzeError renders err as an error envelope. A *analyzer.Failure contributes its
// localized message and the ack of the chat message it saved.
func (s *Server) writeAnalyzeError(w http.ResponseWriter, requestID string, err error) {
	log := s.log.With("request_id", requestID)

	var body errorBody
	body.Error.Message = err.Error()
	var failure *analyzer.Failure
	if errors.As(err, &failure) {
		body.Error.Message = failure.Message
		body.Language = failure.Language
		body.Persistence = &failure.Persistence
	}

	var (
		ce     *provider.ClientError
		status int
	)
	switch {
	case errors.As(err, &ce):
		log.Warn("provider rejected request", "status", ce.StatusCode, "key", ce.Key())
		if failure == nil {
			body.Error.Message = ce.Body
		}
		if body.Error.Message == "" {
			body.Error.Message = http.StatusText(ce.StatusCode)
		}
		status, body.Error.Code = ce.StatusCode, ce.Key()
	case errors.Is(err, analyzer.ErrUploadTooLarge):
		status, body.Error.Code = http.StatusRequestEntityTooLarge, "file_too_large"
	case errors.Is(err, extract.ErrUnsupportedFormat):
		status, body.Error.Code = http.StatusUnsupportedMediaType, "unsupported_file_type"
	case errors.Is(err, extract.ErrLegacyFormatNotConverted):
		status, body.Error.Code = http.StatusUnsupportedMediaType, "legacy_ppt_not_converted"
	case errors.Is(err, processor.ErrInvalidChunkStrategy),
		errors.Is(err, analyzer.ErrInvalidChunkSize),
		errors.Is(err, analyzer.ErrEmptyUpload):
		status, body.Error.Code = http.StatusBadRequest, "invalid_request"
	default:
		log.Error("analysis failed", "error", err)
		status, body.Error.Code = http.StatusInternalServerError, "internal_error"
	}
	writeJSON(w, status, body)
}

// logRequests logs one line per request with chi's request id.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
	Language    string     `json:"language,omitempty"`
	Persistence *types.Ack `json:"persistence,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Message = message
	body.Error.Code = code
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}
