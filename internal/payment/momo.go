package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lamstech/quickcards/pkg/logger"
	"github.com/valyala/fasthttp"
)

// MomoConfig configures the HTTP client for the mobile money aggregator.
type MomoConfig struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	MaxConns        int
	ReadBufferSize  int
	WriteBufferSize int
}

// MomoAdapter talks to the mobile money aggregator over HTTP. Every call is
// a single attempt; charge outcomes are settled by polling Verify, never by
// retrying Initialize (a retry could double-bill the wallet).
type MomoAdapter struct {
	config *MomoConfig
	client *fasthttp.Client
}

func NewMomoAdapter(config *MomoConfig) (*MomoAdapter, error) {
	if config == nil || config.BaseURL == "" {
		return nil, fmt.Errorf("momo base url is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	client := &fasthttp.Client{
		MaxConnsPerHost:     config.MaxConns,
		ReadTimeout:         config.Timeout,
		WriteTimeout:        config.Timeout,
		MaxIdleConnDuration: 60 * time.Second,
		ReadBufferSize:      config.ReadBufferSize,
		WriteBufferSize:     config.WriteBufferSize,
	}

	logger.Info("Momo adapter initialized", "base_url", config.BaseURL, "timeout", config.Timeout)

	return &MomoAdapter{config: config, client: client}, nil
}

func (a *MomoAdapter) Initialize(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	response, statusCode, err := a.doRequest(ctx, "POST", "/api/v1/charges", body)
	if err != nil {
		return nil, err
	}
	if statusCode == fasthttp.StatusBadRequest || statusCode == fasthttp.StatusUnprocessableEntity {
		return nil, fmt.Errorf("%w: %s", ErrRejected, response)
	}
	if statusCode != fasthttp.StatusOK && statusCode != fasthttp.StatusAccepted {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", statusCode, response)
	}

	var resp ChargeResponse
	if err := json.Unmarshal(response, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal charge response: %w", err)
	}

	logger.Info("Charge accepted by provider",
		"transaction_id", req.TransactionID, "payment_ref", resp.PaymentRef, "status", string(resp.Status))

	return &resp, nil
}

func (a *MomoAdapter) Verify(ctx context.Context, paymentRef string) (*VerifyResponse, error) {
	path := fmt.Sprintf("/api/v1/charges/%s", paymentRef)
	response, statusCode, err := a.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	if statusCode == fasthttp.StatusNotFound {
		return nil, ErrUnknownReference
	}
	if statusCode != fasthttp.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", statusCode, response)
	}

	var resp VerifyResponse
	if err := json.Unmarshal(response, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal verify response: %w", err)
	}
	return &resp, nil
}

func (a *MomoAdapter) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(a.config.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if a.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(a.config.Timeout)
	}

	if err := a.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, 0, fmt.Errorf("momo request failed: %w", err)
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())

	return result, resp.StatusCode(), nil
}
