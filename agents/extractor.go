package agents

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/dealflow/ai/openrouter"
	"github.com/teranos/dealflow/casefile"
	"github.com/teranos/dealflow/deal"
	"github.com/teranos/dealflow/errors"
)

// ErrUnsupportedDeck is returned for file types the extractor cannot read.
var ErrUnsupportedDeck = errors.New("unsupported deck format")

// ErrNoDeckText is returned when a deck yields too little text to analyze.
var ErrNoDeckText = errors.New("could not extract meaningful text from deck")

const (
	minDeckText = 50
	maxDeckText = 12000
)

const extractionPrompt = `Extract structured data from this pitch deck.

Return JSON with exactly these keys:
{
  "company": {"name": "", "tagline": "", "founded": "", "hq_location": "", "website": "", "stage": "", "industry": "", "description": ""},
  "founders": [{"name": "", "role": "", "linkedin": "", "github": "", "previous_companies": [], "education": ""}],
  "problem": {"statement": "", "evidence": ""},
  "solution": {"product_description": "", "key_features": [], "differentiation": ""},
  "market": {"tam": "", "sam": "", "som": "", "target_customer": ""},
  "traction": {"revenue": "", "customers": "", "growth_rate": "", "key_metrics": []},
  "business_model": {"revenue_model": "", "pricing": "", "unit_economics": ""},
  "funding": {"raising": "", "previous_rounds": [], "use_of_funds": ""},
  "competitive_advantages": [],
  "risks": []
}
Use "not_mentioned" for anything the deck does not state.`

// DeckExtractor reads a pitch deck with a model.
type DeckExtractor struct {
	gen    Generator
	logger *zap.SugaredLogger
}

// NewDeckExtractor creates an extractor.
func NewDeckExtractor(gen Generator, logger *zap.SugaredLogger) *DeckExtractor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DeckExtractor{gen: gen, logger: logger}
}

// Extract implements deal.Extractor. PDFs go to the model as a file
// attachment; text and slide decks are sent inline. A reply without a
// company name is retried once.
func (x *DeckExtractor) Extract(ctx context.Context, in deal.Input) (*casefile.Extraction, error) {
	req, err := x.request(in)
	if err != nil {
		return nil, err
	}

	var extraction *casefile.Extraction
	for attempt := 1; attempt <= 2; attempt++ {
		extraction = &casefile.Extraction{}
		if err := x.gen.GenerateJSON(ctx, req, extraction); err != nil {
			return nil, err
		}
		if extraction.Validate() == nil {
			break
		}
		x.logger.Warnw("Company name not extracted", "case_id", in.CaseID, "attempt", attempt)
	}
	return extraction, nil
}

func (x *DeckExtractor) request(in deal.Input) (openrouter.ChatRequest, error) {
	req := openrouter.ChatRequest{SystemPrompt: analystSystem, UserPrompt: extractionPrompt}

	name := in.FileName
	if name == "" {
		name = filepath.Base(in.ArtifactPath)
	}
	data, err := os.ReadFile(in.ArtifactPath)
	if err != nil {
		return req, errors.Wrapf(err, "could not read deck %s", name)
	}

	var text string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		req.Attachments = []openrouter.ContentPart{openrouter.FileAttachment(name, "application/pdf", data)}
		return req, nil
	case ".pptx":
		if text, err = SlideText(data); err != nil {
			return req, errors.Wrapf(err, "could not read slides from %s", name)
		}
	case ".txt", ".md":
		text = string(data)
	default:
		return req, errors.Wrapf(ErrUnsupportedDeck, "%s", filepath.Ext(name))
	}

	text = strings.TrimSpace(text)
	if len(text) < minDeckText {
		return req, errors.Wrapf(ErrNoDeckText, "%d characters from %s", len(text), name)
	}
	if len(text) > maxDeckText {
		text = text[:maxDeckText]
	}
	req.UserPrompt = extractionPrompt + "\n\nDECK TEXT:\n" + text
	return req, nil
}

// SlideText pulls the visible text out of a .pptx file, slide by slide.
func SlideText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, "not a pptx archive")
	}

	var slides []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f)
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slideNumber(slides[i].Name) < slideNumber(slides[j].Name) })

	var b strings.Builder
	for _, f := range slides {
		rc, err := f.Open()
		if err != nil {
			return "", errors.Wrapf(err, "open %s", f.Name)
		}
		err = slideRuns(rc, &b)
		rc.Close()
		if err != nil {
			return "", errors.Wrapf(err, "parse %s", f.Name)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// slideRuns writes every <a:t> run of a slide, one paragraph per line.
func slideRuns(r io.Reader, w *strings.Builder) error {
	dec := xml.NewDecoder(r)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inText = t.Name.Local == "t"
		case xml.EndElement:
			if t.Name.Local == "p" {
				w.WriteString("\n")
			}
			inText = false
		case xml.CharData:
			if inText {
				w.Write(t)
			}
		}
	}
}

func slideNumber(name string) int {
	n := 0
	for _, r := range strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml") {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
