package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/tmc/langchaingo/documentloaders"
)

type pdfImage struct {
	page  int
	index int
	data  []byte
}

// pdfPageTexts returns the plain text of every page, in page order.
func pdfPageTexts(ctx context.Context, data []byte) ([]string, error) {
	loader := documentloaders.NewPDF(bytes.NewReader(data), int64(len(data)))
	docs, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	pages := make([]string, 0, len(docs))
	for _, doc := range docs {
		pages = append(pages, doc.PageContent)
	}
	return pages, nil
}

// pdfEmbeddedImages pulls raw image streams out of every page with pdfcpu. Images are numbered
// per page, starting at 1.
func pdfEmbeddedImages(data []byte) ([]pdfImage, error) {
	conf := model.NewDefaultConfiguration()
	pages, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu extract images: %w", err)
	}

	var out []pdfImage
	for _, byObj := range pages {
		objNrs := make([]int, 0, len(byObj))
		for objNr := range byObj {
			objNrs = append(objNrs, objNr)
		}
		sort.Ints(objNrs)

		for i, objNr := range objNrs {
			img := byObj[objNr]
			if img.Reader == nil {
				continue
			}
			raw, err := io.ReadAll(img)
			if err != nil || len(raw) == 0 {
				continue
			}
			out = append(out, pdfImage{page: img.PageNr, index: i + 1, data: raw})
		}
	}
	return out, nil
}
