package analyzer_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/doccheck/internal/models"
	"github.com/xhad/doccheck/internal/types"
	"github.com/xhad/doccheck/pkg/analyzer"
	"github.com/xhad/doccheck/pkg/extract"
	"github.com/xhad/doccheck/pkg/processor"
	"github.com/xhad/doccheck/pkg/provider"
)

type fakeExtractor struct {
	res   *extract.Result
	err   error
	calls int
	opts  extract.Options
}

func (f *fakeExtractor) Extract(_ context.Context, _ models.Format, _ []byte, opts extract.Options) (*extract.Result, error) {
	f.calls++
	f.opts = opts
	return f.res, f.err
}

type fakeClassifier struct {
	mu          sync.Mutex
	text        func(n int, text string) (*types.Verdict, error)
	image       func(n int) (*types.Verdict, error)
	externalIDs []string
	imageCalls  int
}

func (f *fakeClassifier) ClassifyText(_ context.Context, text, externalID string) (*types.Verdict, error) {
	f.mu.Lock()
	f.externalIDs = append(f.externalIDs, externalID)
	n := len(f.externalIDs)
	f.mu.Unlock()
	return f.text(n, text)
}

func (f *fakeClassifier) ClassifyImage(context.Context, []byte) (*types.Verdict, error) {
	f.mu.Lock()
	f.imageCalls++
	n := f.imageCalls
	f.mu.Unlock()
	if f.image == nil {
		return &types.Verdict{}, nil
	}
	return f.image(n)
}

type memStore struct {
	saved []models.Message
	err   error
}

func (m *memStore) SaveAssistantMessage(_ context.Context, msg models.Message) (types.Ack, error) {
	if m.err != nil {
		return types.Ack{Error: m.err.Error()}, m.err
	}
	m.saved = append(m.saved, msg)
	return types.Ack{Saved: true, MessageID: "msg-" + msg.ChatID}, nil
}

func (m *memStore) Close() {}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func units(texts ...string) *extract.Result {
	res := &extract.Result{}
	for i, t := range texts {
		res.Units = append(res.Units, models.ExtractionUnit{Source: fmt.Sprintf("section:%d", i+1), Text: t})
	}
	return res
}

func intPtr(v int) *int { return &v }

func newAnalyzer(ex analyzer.Extractor, cl types.Classifier, st types.MessageStore) *analyzer.Analyzer {
	return analyzer.New(analyzer.Config{
		MaxCharsPerChunk: 200000,
		MaxCharsCap:      500000,
		MinCharsRequired: 250,
		OCRForPDF:        true,
		DefaultLanguage:  "en",
		MaxUploadBytes:   1 << 20,
	}, ex, cl, st, nil)
}

func docxRequest() analyzer.Request {
	return analyzer.Request{
		RequestID:        "req-1",
		Filename:         "report.docx",
		Data:             []byte("PK"),
		MinCharsRequired: intPtr(5),
	}
}

func TestAnalyze_WeightedVerdict(t *testing.T) {
	cl := &fakeClassifier{text: func(n int, _ string) (*types.Verdict, error) {
		if n == 1 {
			return &types.Verdict{IsDetected: true, Confidence: 0.8, ProviderID: "p1"}, nil
		}
		return &types.Verdict{IsDetected: false, Confidence: 0.2, ProviderID: "p2"}, nil
	}}
	a := newAnalyzer(&fakeExtractor{res: units(words(10), words(30))}, cl, nil)

	out, err := a.Analyze(context.Background(), docxRequest(), nil)
	require.NoError(t, err)
	require.Nil(t, out.Insufficient)

	res := out.Result
	assert.Equal(t, "docx", res.DocumentType)
	assert.False(t, res.AIGenerated)
	assert.InDelta(t, 0.35, res.Confidence, 1e-9)
	assert.Equal(t, 40, res.TotalWords)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "section:1", res.Chunks[0].Source)
	assert.Equal(t, 10, res.Chunks[0].WordCount)
	assert.Equal(t, processor.CharCount(words(10)), res.Chunks[0].CharacterCount)
	assert.Equal(t, "en", res.Language)
	assert.NotEmpty(t, res.Summary)
	assert.NotEmpty(t, res.Messages)
	assert.Equal(t, []models.ImageResult{}, res.ImageResults)
}

func TestAnalyze_ExternalIDs(t *testing.T) {
	cl := &fakeClassifier{text: func(int, string) (*types.Verdict, error) { return &types.Verdict{}, nil }}
	a := newAnalyzer(&fakeExtractor{res: units(words(5), words(5))}, cl, nil)

	req := docxRequest()
	req.ExternalID = "doc-9"
	_, err := a.Analyze(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-9-chunk-1", "doc-9-chunk-2"}, cl.externalIDs)

	cl.externalIDs = nil
	_, err = a.Analyze(context.Background(), docxRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"", ""}, cl.externalIDs)
}

func TestAnalyze_SkipsExhaustedChunks(t *testing.T) {
	cl := &fakeClassifier{text: func(n int, _ string) (*types.Verdict, error) {
		if n == 2 {
			return nil, fmt.Errorf("%w after 3 attempts: %w", provider.ErrRetriesExhausted, &provider.TransientError{StatusCode: 503})
		}
		return &types.Verdict{IsDetected: true, Confidence: 1}, nil
	}}
	a := newAnalyzer(&fakeExtractor{res: units(words(10), words(30), words(5))}, cl, nil)

	out, err := a.Analyze(context.Background(), docxRequest(), nil)
	require.NoError(t, err)

	res := out.Result
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, 1, res.Chunks[0].Index)
	assert.Equal(t, 3, res.Chunks[1].Index)
	assert.Equal(t, 15, res.TotalWords)
	assert.True(t, res.AIGenerated)
}

func TestAnalyze_ClientErrorAborts(t *testing.T) {
	cl := &fakeClassifier{text: func(n int, _ string) (*types.Verdict, error) {
		if n == 2 {
			return nil, &provider.ClientError{StatusCode: 401, Body: "invalid api key"}
		}
		return &types.Verdict{}, nil
	}}
	st := &memStore{}
	a := newAnalyzer(&fakeExtractor{res: units(words(5), words(5), words(5))}, cl, st)

	req := docxRequest()
	req.UserID, req.ChatID = "u", "c"
	out, err := a.Analyze(context.Background(), req, nil)
	require.Error(t, err)
	assert.Nil(t, out)

	var ce *provider.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "upstream_401", ce.Key())
	assert.Len(t, cl.externalIDs, 2)

	// only the failure notice reaches the chat
	require.Len(t, st.saved, 1)
	assert.Equal(t, "We couldn't complete this request. Please try again soon.", st.saved[0].Content)
}

func TestAnalyze_FailureSavedToChat(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(r *analyzer.Request)
		classifier *fakeClassifier
		key        string
		detail     string
		message    string
	}{
		{
			name: "provider rate limit",
			classifier: &fakeClassifier{text: func(int, string) (*types.Verdict, error) {
				return nil, &provider.ClientError{StatusCode: 429, Body: "slow down"}
			}},
			key:     "upstream_429",
			detail:  "slow down",
			message: "Слишком много запросов. Подождите немного и попробуйте снова.",
		},
		{
			name:    "unsupported format",
			mutate:  func(r *analyzer.Request) { r.Filename = "notes.txt" },
			key:     "invalid_request",
			detail:  "unsupported_file_type",
			message: "Некорректный запрос. Пожалуйста, проверьте поля.",
		},
		{
			name:    "too large",
			mutate:  func(r *analyzer.Request) { r.Data = make([]byte, 2<<20) },
			key:     "file_too_large",
			detail:  "file_too_large",
			message: "Превышен предел размера файла.",
		},
		{
			name:    "invalid strategy",
			mutate:  func(r *analyzer.Request) { r.ChunkStrategy = "paragraphs" },
			key:     "invalid_request",
			detail:  "invalid_chunk_strategy",
			message: "Некорректный запрос. Пожалуйста, проверьте поля.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &memStore{}
			cl := tt.classifier
			if cl == nil {
				cl = &fakeClassifier{}
			}
			a := newAnalyzer(&fakeExtractor{res: units(words(5))}, cl, st)

			req := docxRequest()
			req.UserID, req.ChatID, req.Language, req.ClientMessageID = "u", "c", "ru", "m-7"
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			var stages []string
			rep := types.ReporterFunc(func(ev types.Event) { stages = append(stages, ev.Stage+":"+ev.Detail) })
			_, err := a.Analyze(context.Background(), req, rep)

			var f *analyzer.Failure
			require.ErrorAs(t, err, &f)
			assert.Equal(t, tt.key, f.Key)
			assert.Equal(t, tt.detail, f.Detail)
			assert.Equal(t, tt.message, f.Message)
			assert.Equal(t, "ru", f.Language)
			assert.Equal(t, types.Ack{Saved: true, MessageID: "msg-c"}, f.Persistence)
			assert.Equal(t, "done:"+tt.key, stages[len(stages)-1])

			require.Len(t, st.saved, 1)
			msg := st.saved[0]
			assert.Equal(t, "m-7", msg.ID)
			assert.Equal(t, tt.message, msg.Content)
			assert.Equal(t, "ru", msg.Metadata["language"])
			assert.Equal(t, map[string]any{"raw": map[string]any{"error": tt.key, "detail": tt.detail}}, msg.Metadata["ai_detect"])
		})
	}
}

func TestFail(t *testing.T) {
	st := &memStore{}
	a := newAnalyzer(&fakeExtractor{}, &fakeClassifier{}, st)

	assert.NoError(t, a.Fail(context.Background(), analyzer.Request{}, nil))

	err := a.Fail(context.Background(), analyzer.Request{Language: "xx"}, errors.New("disk full"))
	var f *analyzer.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "unknown_error", f.Key)
	assert.Equal(t, "internal_error", f.Detail)
	assert.Equal(t, "tr", f.Language)
	assert.False(t, f.Persistence.Saved)
	assert.Empty(t, st.saved, "no chat to save to")

	again := a.Fail(context.Background(), analyzer.Request{UserID: "u", ChatID: "c"}, fmt.Errorf("wrapped: %w", err))
	assert.Same(t, f, again)
	assert.Empty(t, st.saved)
}

func TestAnalyze_ImageClientErrorAborts(t *testing.T) {
	res := units(words(5))
	res.Images = []models.ImageUnit{{Source: "docx_image:1"}, {Source: "docx_image:2"}}
	cl := &fakeClassifier{
		text:  func(int, string) (*types.Verdict, error) { return &types.Verdict{}, nil },
		image: func(int) (*types.Verdict, error) { return nil, &provider.ClientError{StatusCode: 429} },
	}
	a := newAnalyzer(&fakeExtractor{res: res}, cl, nil)

	_, err := a.Analyze(context.Background(), docxRequest(), nil)
	var ce *provider.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, cl.imageCalls)
}

func TestAnalyze_ImagesKeptSeparate(t *testing.T) {
	res := units(words(10))
	res.Images = []models.ImageUnit{{Source: "slide:1"}, {Source: "slide:2"}}
	cl := &fakeClassifier{
		text: func(int, string) (*types.Verdict, error) { return &types.Verdict{IsDetected: false, Confidence: 0.1}, nil },
		image: func(n int) (*types.Verdict, error) {
			if n == 1 {
				return nil, fmt.Errorf("%w: boom", provider.ErrRetriesExhausted)
			}
			return &types.Verdict{IsDetected: true, Confidence: 0.99, ProviderID: "img"}, nil
		},
	}
	a := newAnalyzer(&fakeExtractor{res: res}, cl, nil)

	req := docxRequest()
	req.Filename = "deck.pptx"
	out, err := a.Analyze(context.Background(), req, nil)
	require.NoError(t, err)

	assert.False(t, out.Result.AIGenerated)
	require.Len(t, out.Result.ImageResults, 1)
	assert.Equal(t, 2, out.Result.ImageResults[0].Index)
	assert.Equal(t, "slide:2", out.Result.ImageResults[0].Source)
	assert.Len(t, out.Result.ProviderRaw["image_chunks"], 1)
}

func TestAnalyze_InsufficientContent(t *testing.T) {
	res := units("ten chars!")
	res.Images = []models.ImageUnit{{Source: "page:1:image:1"}}
	cl := &fakeClassifier{text: func(int, string) (*types.Verdict, error) {
		t.Fatal("provider must not be called")
		return nil, nil
	}}
	a := newAnalyzer(&fakeExtractor{res: res}, cl, nil)

	req := docxRequest()
	req.Filename = "short.pdf"
	req.MinCharsRequired = nil
	out, err := a.Analyze(context.Background(), req, nil)
	require.NoError(t, err)
	require.Nil(t, out.Result)

	ins := out.Insufficient
	assert.True(t, ins.InsufficientText)
	assert.Equal(t, "pdf", ins.DocumentType)
	assert.Equal(t, 10, ins.TotalCharacters)
	assert.Equal(t, 250, ins.MinCharsRequired)
	assert.Equal(t, 1, ins.ChunksFound)
	assert.Equal(t, 1, ins.ImageCandidates)
	assert.NotEmpty(t, ins.Hint)
	assert.Empty(t, cl.externalIDs)
	assert.Zero(t, cl.imageCalls)
}

func TestAnalyze_RequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *analyzer.Request)
		wantErr error
	}{
		{"unsupported format", func(r *analyzer.Request) { r.Filename = "notes.txt" }, extract.ErrUnsupportedFormat},
		{"invalid strategy", func(r *analyzer.Request) { r.ChunkStrategy = "paragraphs" }, processor.ErrInvalidChunkStrategy},
		{"negative size", func(r *analyzer.Request) { r.MaxCharsPerChunk = -1 }, analyzer.ErrInvalidChunkSize},
		{"too large", func(r *analyzer.Request) { r.Data = make([]byte, 2<<20) }, analyzer.ErrUploadTooLarge},
		{"empty", func(r *analyzer.Request) { r.Data = nil }, analyzer.ErrEmptyUpload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &fakeExtractor{res: units(words(5))}
			a := newAnalyzer(ex, &fakeClassifier{}, nil)
			req := docxRequest()
			tt.mutate(&req)

			_, err := a.Analyze(context.Background(), req, nil)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, ex.calls)
		})
	}
}

func TestAnalyze_ExtractOptions(t *testing.T) {
	ex := &fakeExtractor{res: units(words(5))}
	cl := &fakeClassifier{text: func(int, string) (*types.Verdict, error) { return &types.Verdict{}, nil }}
	a := newAnalyzer(ex, cl, nil)

	no, yes := false, true
	req := docxRequest()
	req.OCRForPDF = &no
	req.OCRForOfficeImages = &yes
	_, err := a.Analyze(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Equal(t, extract.Options{MinCharsRequired: 5, OCRForPDF: false, OCRForOfficeImages: true}, ex.opts)
}

func TestAnalyze_Persistence(t *testing.T) {
	verdict := func(int, string) (*types.Verdict, error) {
		return &types.Verdict{IsDetected: true, Confidence: 0.9, Raw: map[string]any{"id": "r1"}}, nil
	}

	t.Run("saved", func(t *testing.T) {
		st := &memStore{}
		a := newAnalyzer(&fakeExtractor{res: units(words(5))}, &fakeClassifier{text: verdict}, st)
		req := docxRequest()
		req.UserID, req.ChatID, req.ClientMessageID, req.Language = "u1", "c1", "cm1", "fr"

		out, err := a.Analyze(context.Background(), req, nil)
		require.NoError(t, err)

		res := out.Result
		assert.Equal(t, types.Ack{Saved: true, MessageID: "msg-c1"}, res.Persistence)
		assert.Empty(t, res.PersistenceError)
		require.Len(t, st.saved, 1)

		msg := st.saved[0]
		assert.Equal(t, "cm1", msg.ID)
		assert.Equal(t, "cm1", msg.ClientMessageID)
		assert.Equal(t, res.Summary+"\nMessages: "+strings.Join(res.Messages, ", "), msg.Content)
		assert.Equal(t, "fr", msg.Metadata["language"])
		assert.Equal(t, "ai_or_not_analysis", msg.Metadata["tool"])
		assert.Equal(t, map[string]any{"raw": res.ProviderRaw}, msg.Metadata["ai_detect"])
	})

	t.Run("skipped without chat", func(t *testing.T) {
		st := &memStore{}
		a := newAnalyzer(&fakeExtractor{res: units(words(5))}, &fakeClassifier{text: verdict}, st)
		req := docxRequest()
		req.UserID = "u1"

		out, err := a.Analyze(context.Background(), req, nil)
		require.NoError(t, err)
		assert.False(t, out.Result.Persistence.Saved)
		assert.Empty(t, out.Result.PersistenceError)
		assert.Empty(t, st.saved)
	})

	t.Run("failure is reported", func(t *testing.T) {
		st := &memStore{err: errors.New("database is locked")}
		a := newAnalyzer(&fakeExtractor{res: units(words(5))}, &fakeClassifier{text: verdict}, st)
		req := docxRequest()
		req.UserID, req.ChatID = "u1", "c1"

		out, err := a.Analyze(context.Background(), req, nil)
		require.NoError(t, err)
		assert.False(t, out.Result.Persistence.Saved)
		assert.Equal(t, "database is locked", out.Result.PersistenceError)
	})
}

func TestAnalyze_ReportsProgress(t *testing.T) {
	var stages []string
	rep := types.ReporterFunc(func(ev types.Event) {
		assert.Equal(t, "req-1", ev.RequestID)
		stages = append(stages, ev.Stage)
	})
	cl := &fakeClassifier{text: func(int, string) (*types.Verdict, error) { return &types.Verdict{}, nil }}
	a := newAnalyzer(&fakeExtractor{res: units(words(5), words(5))}, cl, nil)

	_, err := a.Analyze(context.Background(), docxRequest(), rep)
	require.NoError(t, err)
	assert.Equal(t, []string{"detected", "extracted", "planned", "chunk", "chunk", "done"}, stages)
}

// The provider client and the pipeline together: a chunk that keeps failing with 503 is dropped,
// and a 401 stops the run.
func TestAnalyze_WithProviderClient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		assert.NoError(t, r.ParseForm())
		text := r.PostForm.Get("text")
		switch {
		case strings.Contains(text, "flaky"):
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		case strings.Contains(text, "forbidden"):
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"bad key"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "r-" + r.URL.Query().Get("external_id"),
			"report": map[string]any{"ai_text": map[string]any{"is_detected": true, "confidence": 0.7}},
		})
	}))
	defer srv.Close()

	client, err := provider.NewWithConfig(provider.ClientConfig{
		TextURL:     srv.URL + "/text",
		ImageURL:    srv.URL + "/image",
		APIKey:      "k",
		Timeout:     2 * time.Second,
		BackoffBase: time.Millisecond,
	}, nil)
	require.NoError(t, err)

	t.Run("transient chunk skipped", func(t *testing.T) {
		calls.Store(0)
		a := newAnalyzer(&fakeExtractor{res: units("good text one", "flaky text", "good text two")}, client, nil)
		req := docxRequest()
		req.ExternalID = "e"

		out, err := a.Analyze(context.Background(), req, nil)
		require.NoError(t, err)
		require.Len(t, out.Result.Chunks, 2)
		assert.Equal(t, "r-e-chunk-3", out.Result.Chunks[1].ProviderID)
		assert.Equal(t, 6, out.Result.TotalWords)
		assert.EqualValues(t, 5, calls.Load())
	})

	t.Run("unauthorized aborts", func(t *testing.T) {
		calls.Store(0)
		a := newAnalyzer(&fakeExtractor{res: units("forbidden text", "never sent")}, client, nil)

		_, err := a.Analyze(context.Background(), docxRequest(), nil)
		var ce *provider.ClientError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
		assert.EqualValues(t, 1, calls.Load())
	})
}
