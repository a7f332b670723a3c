package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xhad/doccheck/internal/logger"
	"github.com/xhad/doccheck/pkg/ocr"
)

// Converter shells out to LibreOffice to turn legacy binary formats into PDF.
type Converter struct {
	runner  ocr.Runner
	soffice string
	log     *logger.Logger
}

func NewConverter(runner ocr.Runner, soffice string, log *logger.Logger) *Converter {
	if log == nil {
		log = logger.Nop()
	}
	if soffice == "" {
		soffice = "soffice"
	}
	return &Converter{runner: runner, soffice: soffice, log: log}
}

func (c *Converter) ToPDF(ctx context.Context, data []byte, ext string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "doccheck-convert-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	ext = strings.TrimPrefix(ext, ".")
	in := filepath.Join(dir, "in."+ext)
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	_, stderr, err := c.runner.Run(ctx, c.soffice, "--headless", "--convert-to", "pdf", "--outdir", dir, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", c.soffice, err, strings.TrimSpace(string(stderr)))
	}

	out, err := os.ReadFile(filepath.Join(dir, "in.pdf"))
	if err != nil {
		return nil, fmt.Errorf("converted pdf missing: %w", err)
	}
	c.log.Debug("legacy document converted", "ext", ext, "in_bytes", len(data), "out_bytes", len(out))
	return out, nil
}
