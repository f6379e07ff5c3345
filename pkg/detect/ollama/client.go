// Package ollama implements the detection interfaces against an Ollama
// server running a vision model.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jmorganca/ollama/api"

	"github.com/menta2k/image-pipeline/pkg/detect"
	"github.com/menta2k/image-pipeline/pkg/types"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "qwen2.5vl:7b"

// Detector talks to an Ollama server and implements both
// detect.FaceDetector and detect.LabelDetector.
type Detector struct {
	client *api.Client
	model  string
}

// New creates a detector for the given server URL and model. Any path on
// the URL is discarded; only scheme and host matter.
func New(serverURL, model string) (*Detector, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}
	if model == "" {
		model = DefaultModel
	}

	return &Detector{
		client: api.NewClient(baseURL, http.DefaultClient),
		model:  model,
	}, nil
}

// DetectFaces implements detect.FaceDetector.
func (d *Detector) DetectFaces(ctx context.Context, image []byte) ([]types.Face, error) {
	raw, err := d.chat(ctx, detect.FacePrompt, image)
	if err != nil {
		return nil, err
	}
	return detect.ParseFaces(raw)
}

// DetectLabels implements detect.LabelDetector. The confidence floor is
// embedded in the prompt and enforced again on the parsed result, since
// models treat numeric instructions as suggestions.
func (d *Detector) DetectLabels(ctx context.Context, image []byte, minConfidence float64) ([]types.Label, error) {
	raw, err := d.chat(ctx, detect.LabelPrompt(minConfidence), image)
	if err != nil {
		return nil, err
	}
	labels, err := detect.ParseLabels(raw)
	if err != nil {
		return nil, err
	}
	kept := labels[:0]
	for _, l := range labels {
		if l.Confidence >= minConfidence {
			kept = append(kept, l)
		}
	}
	return kept, nil
}

func (d *Detector) chat(ctx context.Context, prompt string, image []byte) (string, error) {
	// Add a timeout if the context doesn't carry one; vision models on
	// CPU can take minutes.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: d.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(image)},
			},
		},
		Stream: &streamFalse,
	}

	var responseContent string
	err := d.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent = resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %v", err)
	}
	if responseContent == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return responseContent, nil
}
