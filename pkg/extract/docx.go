package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/xhad/doccheck/internal/models"
)

const docxMain = "word/document.xml"

type docxStyles struct {
	Styles []struct {
		ID   string `xml:"styleId,attr"`
		Name struct {
			Val string `xml:"val,attr"`
		} `xml:"name"`
	} `xml:"style"`
}

func (e *Extractor) extractDOCX(ctx context.Context, data []byte, opts Options) (*Result, error) {
	pkg, err := openPackage(data)
	if err != nil {
		return nil, err
	}

	units, err := docxSections(pkg)
	if err != nil {
		return nil, err
	}
	res := &Result{Units: units}

	images, err := e.docxImages(pkg)
	if err != nil {
		e.log.Warn("docx image extraction failed", "error", err)
	}
	res.Images = images

	e.ocrImages(ctx, res, images, func(i int, _ models.ImageUnit) string {
		return fmt.Sprintf("image:%d", i+1)
	}, opts)

	e.log.Debug("docx extracted", "sections", len(units), "images", len(images))
	return res, nil
}

// docxSections groups body paragraphs under the closest preceding heading. Text before the first
// heading belongs to "section:1"; a document without text yields one empty section.
func docxSections(pkg *ooxmlPackage) ([]models.ExtractionUnit, error) {
	doc, err := pkg.read(docxMain)
	if err != nil {
		return nil, err
	}
	styleNames := docxStyleNames(pkg)

	var (
		sections []models.ExtractionUnit
		label    = "section:1"
		texts    []string
		para     strings.Builder
		style    string
		pDepth   int
		rDepth   int
		inText   bool
	)

	finishParagraph := func() {
		text := para.String()
		if isHeading(style, styleNames) && strings.TrimSpace(text) != "" {
			if len(texts) > 0 {
				sections = append(sections, models.ExtractionUnit{Source: label, Text: strings.Join(texts, "\n")})
				texts = nil
			}
			label = "section:" + strings.TrimSpace(text)
			return
		}
		texts = append(texts, text)
	}

	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", docxMain, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				pDepth++
				if pDepth == 1 {
					para.Reset()
					style = ""
				}
			case "pStyle":
				if pDepth == 1 {
					style = attr(t, "val")
				}
			case "r":
				rDepth++
			case "t":
				inText = true
			case "tab":
				if rDepth > 0 {
					para.WriteByte('\t')
				}
			case "br", "cr":
				if rDepth > 0 {
					para.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				pDepth--
				if pDepth == 0 {
					finishParagraph()
				}
			case "r":
				rDepth--
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && pDepth > 0 {
				para.Write(t)
			}
		}
	}

	if len(texts) > 0 {
		sections = append(sections, models.ExtractionUnit{Source: label, Text: strings.Join(texts, "\n")})
	}
	if len(sections) == 0 {
		sections = append(sections, models.ExtractionUnit{Source: "section:1", Text: ""})
	}
	return sections, nil
}

func docxStyleNames(pkg *ooxmlPackage) map[string]string {
	names := map[string]string{}
	data, err := pkg.read("word/styles.xml")
	if err != nil {
		return names
	}
	var styles docxStyles
	if err := xml.Unmarshal(data, &styles); err != nil {
		return names
	}
	for _, s := range styles.Styles {
		names[s.ID] = s.Name.Val
	}
	return names
}

func isHeading(styleID string, names map[string]string) bool {
	if styleID == "" {
		return false
	}
	name := names[styleID]
	if name == "" {
		name = styleID
	}
	return strings.HasPrefix(strings.ToLower(name), "heading")
}

// docxImages returns the images referenced by the main document, in relationship order.
func (e *Extractor) docxImages(pkg *ooxmlPackage) ([]models.ImageUnit, error) {
	rels, err := pkg.rels(docxMain)
	if err != nil {
		return nil, err
	}

	var images []models.ImageUnit
	for _, rel := range relsOfType(rels, "/image") {
		name := resolve(docxMain, rel.Target)
		raw, err := pkg.read(name)
		if err != nil {
			e.log.Debug("skipping docx image", "target", name, "error", err)
			continue
		}
		jpeg, err := ToJPEG(raw)
		if err != nil {
			e.log.Debug("skipping docx image", "target", name, "error", err)
			continue
		}
		images = append(images, models.ImageUnit{
			Source: fmt.Sprintf("docx_image:%d", len(images)+1),
			Data:   jpeg,
		})
	}
	return images, nil
}
