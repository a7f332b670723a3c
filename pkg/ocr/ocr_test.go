package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	mu    sync.Mutex
	calls []string
	run   func(name string, args ...string) ([]byte, []byte, error)
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, name+" "+strings.Join(args, " "))
	m.mu.Unlock()
	return m.run(name, args...)
}

func fakeTools(t *testing.T, pages []string, failPage string) *mockRunner {
	return &mockRunner{run: func(name string, args ...string) ([]byte, []byte, error) {
		switch name {
		case "pdftoppm":
			prefix := args[len(args)-1]
			for _, p := range pages {
				require.NoError(t, os.WriteFile(prefix+"-"+p+".png", []byte("png"), 0o600))
			}
			return nil, nil, nil
		case "tesseract":
			base := filepath.Base(args[0])
			if base == "page-"+failPage+".png" {
				return nil, []byte("boom"), errors.New("exit status 1")
			}
			return []byte("text of " + base), nil, nil
		}
		return nil, nil, errors.New("unexpected command " + name)
	}}
}

func TestOCRDocument_OrdersPages(t *testing.T) {
	runner := fakeTools(t, []string{"1", "2", "10"}, "")
	e := NewEngine(Config{DPI: 150}, runner, nil)

	text, err := e.OCRDocument(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "text of page-1.png\ntext of page-2.png\ntext of page-10.png", text)
	assert.Contains(t, runner.calls[0], "pdftoppm -r 150 -png")
}

func TestOCRDocument_SkipsFailedPages(t *testing.T) {
	e := NewEngine(Config{}, fakeTools(t, []string{"1", "2"}, "2"), nil)

	text, err := e.OCRDocument(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "text of page-1.png\n", text)
}

func TestOCRDocument_AllPagesFail(t *testing.T) {
	e := NewEngine(Config{}, fakeTools(t, []string{"1"}, "1"), nil)

	text, err := e.OCRDocument(context.Background(), []byte("%PDF-1.4"))
	assert.Error(t, err)
	assert.Empty(t, text)
}

func TestOCRDocument_NoPages(t *testing.T) {
	e := NewEngine(Config{}, fakeTools(t, nil, ""), nil)

	_, err := e.OCRDocument(context.Background(), []byte("%PDF-1.4"))
	assert.Error(t, err)
}

func TestOCRDocument_MaxPages(t *testing.T) {
	runner := fakeTools(t, []string{"1"}, "")
	e := NewEngine(Config{MaxPages: 5, Language: "tur"}, runner, nil)

	_, err := e.OCRDocument(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Contains(t, runner.calls[0], "-l 5")
	assert.Contains(t, runner.calls[1], "stdout -l tur")
}

func TestOCRImage(t *testing.T) {
	runner := &mockRunner{run: func(name string, args ...string) ([]byte, []byte, error) {
		data, err := os.ReadFile(args[0])
		require.NoError(t, err)
		assert.Equal(t, []byte("image-bytes"), data)
		return []byte("hello"), nil, nil
	}}
	e := NewEngine(Config{}, runner, nil)

	text, err := e.OCRImage(context.Background(), []byte("image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}
