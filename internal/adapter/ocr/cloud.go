package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CloudProvider is a minimal HTTP client for the managed OCR service. It
// posts base64 page images and receives recognized lines with per-line
// confidences.
type CloudProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewCloudProvider constructs a CloudProvider with baseURL and apiKey.
func NewCloudProvider(baseURL, apiKey string) *CloudProvider {
	return &CloudProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 45 * time.Second},
	}
}

// Name implements Provider.
func (p *CloudProvider) Name() string { return EngineCloud }

type cloudOCRRequest struct {
	Images    []string `json:"images"`
	Languages []string `json:"languages"`
}

type cloudOCRResponse struct {
	Lines []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"lines"`
}

// Recognize implements Provider. Confidence is the mean per-line
// confidence reported by the service.
func (p *CloudProvider) Recognize(ctx context.Context, pages [][]byte) (Result, error) {
	req := cloudOCRRequest{Languages: []string{"el", "en"}}
	for _, page := range pages {
		req.Images = append(req.Images, base64.StdEncoding.EncodeToString(page))
	}
	b, _ := json.Marshal(req)
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/recognize", bytes.NewReader(b))
	if err != nil {
		return Result{}, fmt.Errorf("op=ocr.cloud: %w", err)
	}
	r.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.httpClient.Do(r)
	if err != nil {
		return Result{}, fmt.Errorf("op=ocr.cloud: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("op=ocr.cloud: status %d", resp.StatusCode)
	}
	var out cloudOCRResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("op=ocr.cloud: %w", err)
	}

	var b2 strings.Builder
	var confSum float64
	for _, line := range out.Lines {
		b2.WriteString(line.Text)
		b2.WriteString("\n")
		confSum += line.Confidence
	}
	conf := 0.0
	if len(out.Lines) > 0 {
		conf = confSum / float64(len(out.Lines))
	}
	return Result{Text: strings.TrimSpace(b2.String()), Confidence: conf}, nil
}
