// Package llamacpp implements the detection interfaces against a
// llama.cpp server (or any endpoint speaking the OpenAI chat completion
// protocol) running a vision model.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/image-pipeline/pkg/detect"
	"github.com/menta2k/image-pipeline/pkg/types"
)

// Detector talks to an OpenAI-compatible chat endpoint and implements
// both detect.FaceDetector and detect.LabelDetector.
type Detector struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// OpenAI-compatible message format
type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Index        int     `json:"index"`
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

// New creates a detector for the given server URL and model.
func New(serverURL, model string) (*Detector, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	return &Detector{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
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

// DetectLabels implements detect.LabelDetector.
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
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	content := []contentPart{
		{Type: "text", Text: prompt},
	}
	if len(image) > 0 {
		mime := http.DetectContentType(image)
		content = append(content, contentPart{
			Type: "image_url",
			ImageURL: &imageURL{
				URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image),
			},
		})
	}

	req := chatCompletionRequest{
		Model: d.model,
		Messages: []message{
			{Role: "user", Content: content},
		},
		Temperature: 0.1,
		MaxTokens:   4096,
		TopP:        0.8,
		Stream:      false,
	}

	respBody, err := d.sendRequest(ctx, "/v1/chat/completions", req)
	if err != nil {
		return "", fmt.Errorf("request failed: %v", err)
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	// Responses carry the text either directly or as content parts.
	switch content := resp.Choices[0].Message.Content.(type) {
	case string:
		if content != "" {
			return content, nil
		}
	case []any:
		for _, item := range content {
			if partMap, ok := item.(map[string]any); ok {
				if text, ok := partMap["text"].(string); ok && text != "" {
					return text, nil
				}
			}
		}
	}
	return "", fmt.Errorf("no text content in response")
}

func (d *Detector) sendRequest(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
