package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lamstech/quickcards/pkg/logger"
	"github.com/valyala/fasthttp"
)

// HTTPConfig configures the client for the PDF render service.
type HTTPConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	MaxConns int
}

// HTTPGenerator posts receipt data to the render service and returns the
// URL of the generated document.
type HTTPGenerator struct {
	config *HTTPConfig
	client *fasthttp.Client
}

func NewHTTPGenerator(config *HTTPConfig) (*HTTPGenerator, error) {
	if config == nil || config.BaseURL == "" {
		return nil, fmt.Errorf("receipt base url is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	client := &fasthttp.Client{
		MaxConnsPerHost:     config.MaxConns,
		ReadTimeout:         config.Timeout,
		WriteTimeout:        config.Timeout,
		MaxIdleConnDuration: 60 * time.Second,
	}

	logger.Info("Receipt generator initialized", "base_url", config.BaseURL)

	return &HTTPGenerator{config: config, client: client}, nil
}

func (g *HTTPGenerator) Generate(ctx context.Context, r *Receipt) (string, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal receipt: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.config.BaseURL + "/api/v1/receipts")
	req.Header.SetMethod("POST")
	req.Header.SetContentType("application/json")
	if g.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	}
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(g.config.Timeout)
	}

	if err := g.client.DoDeadline(req, resp, deadline); err != nil {
		return "", fmt.Errorf("receipt request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	if statusCode != fasthttp.StatusOK && statusCode != fasthttp.StatusCreated {
		return "", fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("failed to unmarshal receipt response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("render service returned no url")
	}
	return out.URL, nil
}
