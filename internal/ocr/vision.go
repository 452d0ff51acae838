package ocr

import (
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
)

// VisionEngine reads images with Google Cloud Vision DOCUMENT_TEXT_DETECTION.
type VisionEngine struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionEngine creates a Vision client from the environment credentials.
func NewVisionEngine(ctx context.Context, credentialsFile string) (*VisionEngine, error) {
	const op = "NewVisionEngine"

	opts := googleClientOptions(credentialsFile)
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}
	return &VisionEngine{client: client}, nil
}

// Recognize annotates all images in one batch call.
func (v *VisionEngine) Recognize(ctx context.Context, images [][]byte) (*Document, error) {
	const op = "VisionRecognize"

	req := &visionpb.BatchAnnotateImagesRequest{}
	for _, img := range images {
		req.Requests = append(req.Requests, &visionpb.AnnotateImageRequest{
			Image:    &visionpb.Image{Content: img},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		})
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.GetResponses()) != len(images) {
		return nil, WrapOCRError(op, ErrOCRFailed,
			fmt.Sprintf("expected %d responses, got %d", len(images), len(resp.GetResponses())))
	}

	doc := &Document{}
	for i, r := range resp.GetResponses() {
		if r.GetError() != nil && r.GetError().GetMessage() != "" {
			return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("image %d: %s", i, r.GetError().GetMessage()))
		}
		doc.Pages = append(doc.Pages, visionPages(r.GetFullTextAnnotation())...)
	}
	return doc, nil
}

// visionPages maps Vision pages, blocks and paragraphs onto pages, blocks and lines.
// A Vision word is the concatenation of its symbols.
func visionPages(ann *visionpb.TextAnnotation) []Page {
	if ann == nil || len(ann.GetPages()) == 0 {
		return []Page{{}}
	}
	pages := make([]Page, 0, len(ann.GetPages()))
	for _, vp := range ann.GetPages() {
		var page Page
		for _, vb := range vp.GetBlocks() {
			var block Block
			for _, para := range vb.GetParagraphs() {
				var line Line
				for _, vw := range para.GetWords() {
					var sb strings.Builder
					for _, sym := range vw.GetSymbols() {
						sb.WriteString(sym.GetText())
					}
					line.Words = append(line.Words, Word{
						Text:       sb.String(),
						Confidence: Conf(float64(vw.GetConfidence())),
					})
				}
				block.Lines = append(block.Lines, line)
			}
			page.Blocks = append(page.Blocks, block)
		}
		pages = append(pages, page)
	}
	return pages
}

// Close closes the Vision client.
func (v *VisionEngine) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
