package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lamstech/quickcards/pkg/logger"
	"github.com/valyala/fasthttp"
)

// Sender delivers one SMS. Implementations make a single attempt; retry
// policy belongs to the Dispatcher.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// SMSConfig configures the HTTP client for the SMS gateway.
type SMSConfig struct {
	BaseURL         string
	APIKey          string
	SenderID        string
	Timeout         time.Duration
	MaxConns        int
	ReadBufferSize  int
	WriteBufferSize int
}

// SMSClient sends messages through the SMS gateway's HTTP API.
type SMSClient struct {
	config *SMSConfig
	client *fasthttp.Client
}

func NewSMSClient(config *SMSConfig) (*SMSClient, error) {
	if config == nil || config.BaseURL == "" {
		return nil, fmt.Errorf("sms base url is required")
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

	logger.Info("SMS client initialized", "base_url", config.BaseURL, "sender_id", config.SenderID)

	return &SMSClient{config: config, client: client}, nil
}

type sendRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Content string `json:"content"`
}

func (c *SMSClient) Send(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(sendRequest{
		To:      phone,
		From:    c.config.SenderID,
		Content: message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sms request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + "/api/v1/sms/send")
	req.Header.SetMethod("POST")
	req.Header.SetContentType("application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	if statusCode != fasthttp.StatusOK && statusCode != fasthttp.StatusAccepted {
		return fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	logger.Info("SMS sent", "phone", phone, "length", len(message))
	return nil
}
