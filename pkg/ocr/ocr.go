// Package ocr rasterizes PDFs with pdftoppm and recognizes text with tesseract. All requests share
// one bounded pool so OCR never starves the rest of the server.
package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/xhad/doccheck/internal/logger"
)

type Config struct {
	Tesseract   string // binary name or absolute path; default "tesseract"
	Pdftoppm    string // binary name or absolute path; default "pdftoppm"
	Language    string // tesseract language, default "eng"
	DPI         int    // rasterization DPI, default 300
	MaxPages    int    // 0 = no limit
	Workers     int    // concurrent OCR jobs across all requests
	PageWorkers int    // concurrent tesseract runs inside one PDF job
}

type Engine struct {
	cfg    Config
	runner Runner
	pool   *semaphore.Weighted
	log    *logger.Logger
}

func NewEngine(cfg Config, runner Runner, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = 4
	}
	if runner == nil {
		runner = NewExecRunner(log)
	}
	return &Engine{
		cfg:    cfg,
		runner: runner,
		pool:   semaphore.NewWeighted(int64(cfg.Workers)),
		log:    log,
	}
}

// OCRDocument renders every page of a PDF and returns the recognized text, pages joined by
// newlines. Pages that fail recognition are skipped; it is an error when every page fails.
func (e *Engine) OCRDocument(ctx context.Context, pdf []byte) (string, error) {
	if err := e.pool.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer e.pool.Release(1)

	tmpDir, err := os.MkdirTemp("", "doccheck-ocr-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return "", err
	}

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", strconv.Itoa(e.cfg.DPI), "-png"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	args = append(args, in, prefix)

	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	if _, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, args...); err != nil {
		return "", fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	pages, _ := filepath.Glob(prefix + "-*.png")
	if len(pages) == 0 {
		return "", fmt.Errorf("pdftoppm produced no images")
	}
	sortPages(pages)

	texts := make([]string, len(pages))
	var recognized atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PageWorkers)
	for i, page := range pages {
		g.Go(func() error {
			txt, err := e.tesseract(gctx, page)
			if err != nil {
				e.log.Warn("page ocr failed", "page", i+1, "error", err)
				return nil
			}
			texts[i] = txt
			recognized.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	if recognized.Load() == 0 {
		return "", fmt.Errorf("tesseract failed on all %d pages", len(pages))
	}

	e.log.Info("document ocr done", "pages", len(pages))
	return strings.Join(texts, "\n"), nil
}

// OCRImage recognizes the text of a single encoded image.
func (e *Engine) OCRImage(ctx context.Context, img []byte) (string, error) {
	if err := e.pool.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer e.pool.Release(1)

	f, err := os.CreateTemp("", "doccheck-img-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(img); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	return e.tesseract(ctx, f.Name())
}

func (e *Engine) tesseract(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, path, "stdout", "-l", e.cfg.Language)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return string(out), nil
}

// sortPages orders page-2.png before page-10.png. pdftoppm pads numbers only for large documents.
func sortPages(pages []string) {
	num := func(p string) int {
		base := strings.TrimSuffix(filepath.Base(p), ".png")
		n, _ := strconv.Atoi(base[strings.LastIndex(base, "-")+1:])
		return n
	}
	sort.Slice(pages, func(i, j int) bool { return num(pages[i]) < num(pages[j]) })
}
