package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xhad/doccheck/internal/models"
)

const pptxMain = "ppt/presentation.xml"

var slidePartRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func (e *Extractor) extractPPTX(ctx context.Context, data []byte, opts Options) (*Result, error) {
	pkg, err := openPackage(data)
	if err != nil {
		return nil, err
	}

	slides, err := slideParts(pkg)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for i, part := range slides {
		n := i + 1
		text, err := slideText(pkg, part)
		if err != nil {
			return nil, err
		}
		res.Units = append(res.Units, models.ExtractionUnit{Source: fmt.Sprintf("slide:%d", n), Text: text})

		for _, img := range e.slideImages(pkg, part) {
			res.Images = append(res.Images, models.ImageUnit{Source: fmt.Sprintf("slide:%d", n), Data: img})
		}
	}

	e.ocrImages(ctx, res, res.Images, func(_ int, img models.ImageUnit) string {
		return img.Source
	}, opts)

	e.log.Debug("pptx extracted", "slides", len(slides), "images", len(res.Images))
	return res, nil
}

// slideParts lists slide parts in presentation order, falling back to file numbering when the
// presentation part has no slide list.
func slideParts(pkg *ooxmlPackage) ([]string, error) {
	var ordered []string

	if pkg.has(pptxMain) {
		data, err := pkg.read(pptxMain)
		if err != nil {
			return nil, err
		}
		rels, err := pkg.rels(pptxMain)
		if err != nil {
			return nil, err
		}
		targets := make(map[string]string, len(rels))
		for _, r := range rels {
			targets[r.ID] = resolve(pptxMain, r.Target)
		}

		dec := xml.NewDecoder(bytes.NewReader(data))
		for {
			tok, err := dec.Token()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", pptxMain, err)
			}
			el, ok := tok.(xml.StartElement)
			if !ok || el.Name.Local != "sldId" {
				continue
			}
			// the relationship id is the namespaced r:id, not the plain numeric id
			for _, a := range el.Attr {
				if a.Name.Local == "id" && a.Name.Space != "" {
					if target, ok := targets[a.Value]; ok && pkg.has(target) {
						ordered = append(ordered, target)
					}
				}
			}
		}
	}
	if len(ordered) > 0 {
		return ordered, nil
	}

	type numbered struct {
		n    int
		name string
	}
	var found []numbered
	for name := range pkg.files {
		if m := slidePartRe.FindStringSubmatch(name); m != nil {
			n, _ := strconv.Atoi(m[1])
			found = append(found, numbered{n: n, name: name})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	for _, f := range found {
		ordered = append(ordered, f.name)
	}
	return ordered, nil
}

// slideText joins every paragraph on the slide, then the speaker notes.
func slideText(pkg *ooxmlPackage, part string) (string, error) {
	data, err := pkg.read(part)
	if err != nil {
		return "", err
	}
	paras, err := shapeParagraphs(data, func(string) bool { return true })
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", part, err)
	}

	rels, err := pkg.rels(part)
	if err != nil {
		return "", err
	}
	for _, r := range relsOfType(rels, "/notesSlide") {
		notes, err := pkg.read(resolve(part, r.Target))
		if err != nil {
			continue
		}
		body, err := shapeParagraphs(notes, func(ph string) bool { return ph == "body" })
		if err == nil && len(body) > 0 {
			paras = append(paras, strings.Join(body, "\n"))
		}
	}

	return strings.Join(paras, "\n"), nil
}

// shapeParagraphs collects DrawingML paragraphs. Paragraphs inside a shape are kept only when
// keep accepts the shape's placeholder type ("" for ordinary shapes).
func shapeParagraphs(data []byte, keep func(placeholder string) bool) ([]string, error) {
	var (
		out     []string
		shape   []string
		inShape bool
		phType  string
		para    strings.Builder
		inPara  bool
		inText  bool
	)

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				inShape, phType, shape = true, "", nil
			case "ph":
				phType = attr(t, "type")
			case "p":
				if t.Name.Space == "" || strings.Contains(t.Name.Space, "drawingml") {
					inPara = true
					para.Reset()
				}
			case "t":
				inText = inPara
			case "br":
				if inPara {
					para.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "sp":
				if keep(phType) {
					out = append(out, shape...)
				}
				inShape = false
			case "p":
				if !inPara {
					continue
				}
				inPara = false
				if inShape {
					shape = append(shape, para.String())
				} else if keep("") {
					out = append(out, para.String())
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return out, nil
}

func (e *Extractor) slideImages(pkg *ooxmlPackage, part string) [][]byte {
	rels, err := pkg.rels(part)
	if err != nil {
		return nil
	}

	var images [][]byte
	for _, r := range relsOfType(rels, "/image") {
		name := resolve(part, r.Target)
		raw, err := pkg.read(name)
		if err != nil {
			continue
		}
		jpeg, err := ToJPEG(raw)
		if err != nil {
			e.log.Debug("skipping slide image", "slide", path.Base(part), "target", name, "error", err)
			continue
		}
		images = append(images, jpeg)
	}
	return images
}
