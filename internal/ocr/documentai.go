package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
)

// DocumentAIConfig identifies a Document AI OCR processor.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	CredentialsFile  string
	Timeout          time.Duration
}

// ProcessorName returns the full resource name of the processor.
func (c DocumentAIConfig) ProcessorName() string {
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
	if c.ProcessorVersion != "" {
		name += "/processorVersions/" + c.ProcessorVersion
	}
	return name
}

// DocumentAIEngine reads images with a Google Document AI OCR processor.
type DocumentAIEngine struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
}

// NewDocumentAIEngine creates a Document AI client for cfg.Location.
func NewDocumentAIEngine(ctx context.Context, cfg DocumentAIConfig) (*DocumentAIEngine, error) {
	const op = "NewDocumentAIEngine"

	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrOCRFailed, "project_id and processor_id are required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	var opts []option.ClientOption
	if cfg.Location != "us" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)))
	}
	creds := googleClientOptions(cfg.CredentialsFile)
	opts = append(opts, creds...)

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		if len(creds) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", cfg.Location))
	}
	return &DocumentAIEngine{client: client, config: cfg}, nil
}

// Recognize processes each image as a separate PNG document.
func (d *DocumentAIEngine) Recognize(ctx context.Context, images [][]byte) (*Document, error) {
	const op = "DocumentAIRecognize"

	doc := &Document{}
	for i, img := range images {
		processCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
		resp, err := d.client.ProcessDocument(processCtx, &documentaipb.ProcessRequest{
			Name: d.config.ProcessorName(),
			Source: &documentaipb.ProcessRequest_RawDocument{
				RawDocument: &documentaipb.RawDocument{Content: img, MimeType: "image/png"},
			},
		})
		cancel()
		if err != nil {
			return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("image %d: %v", i, err))
		}
		if resp.GetDocument() == nil {
			return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("image %d: no document in response", i))
		}
		doc.Pages = append(doc.Pages, documentAIPages(resp.GetDocument())...)
	}
	return doc, nil
}

type anchoredLine struct {
	start, end int64
	line       Line
}

// documentAIPages rebuilds the block/line/token hierarchy. Document AI lists
// blocks, lines and tokens flat per page; membership follows text anchor ranges.
func documentAIPages(doc *documentaipb.Document) []Page {
	text := doc.GetText()
	if len(doc.GetPages()) == 0 {
		return []Page{{}}
	}

	pages := make([]Page, 0, len(doc.GetPages()))
	for _, p := range doc.GetPages() {
		lines := make([]anchoredLine, 0, len(p.GetLines()))
		for _, l := range p.GetLines() {
			s, e := anchorRange(l.GetLayout().GetTextAnchor())
			lines = append(lines, anchoredLine{start: s, end: e})
		}

		var orphans Line
		for _, t := range p.GetTokens() {
			anchor := t.GetLayout().GetTextAnchor()
			word := Word{
				Text:       strings.TrimSpace(anchorText(text, anchor)),
				Confidence: Conf(float64(t.GetLayout().GetConfidence())),
			}
			s, _ := anchorRange(anchor)
			if i := containing(lines, s); i >= 0 {
				lines[i].line.Words = append(lines[i].line.Words, word)
			} else {
				orphans.Words = append(orphans.Words, word)
			}
		}

		var page Page
		used := make([]bool, len(lines))
		for _, b := range p.GetBlocks() {
			bs, be := anchorRange(b.GetLayout().GetTextAnchor())
			var block Block
			for i, l := range lines {
				if !used[i] && l.start >= bs && l.start < be {
					block.Lines = append(block.Lines, l.line)
					used[i] = true
				}
			}
			page.Blocks = append(page.Blocks, block)
		}

		var rest Block
		for i, l := range lines {
			if !used[i] {
				rest.Lines = append(rest.Lines, l.line)
			}
		}
		if len(orphans.Words) > 0 {
			rest.Lines = append(rest.Lines, orphans)
		}
		if len(rest.Lines) > 0 {
			page.Blocks = append(page.Blocks, rest)
		}
		pages = append(pages, page)
	}
	return pages
}

func containing(lines []anchoredLine, pos int64) int {
	for i, l := range lines {
		if pos >= l.start && pos < l.end {
			return i
		}
	}
	return -1
}

// anchorRange returns the first segment start and last segment end.
func anchorRange(a *documentaipb.Document_TextAnchor) (int64, int64) {
	segs := a.GetTextSegments()
	if len(segs) == 0 {
		return -1, -1
	}
	return segs[0].GetStartIndex(), segs[len(segs)-1].GetEndIndex()
}

// anchorText concatenates the document text covered by the anchor's segments.
func anchorText(text string, a *documentaipb.Document_TextAnchor) string {
	var sb strings.Builder
	for _, seg := range a.GetTextSegments() {
		s, e := seg.GetStartIndex(), seg.GetEndIndex()
		if s < 0 || e > int64(len(text)) || s >= e {
			continue
		}
		sb.WriteString(text[s:e])
	}
	return sb.String()
}

// Close closes the Document AI client.
func (d *DocumentAIEngine) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
