package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ChargeStatus represents the provider-side state of a charge
type ChargeStatus string

const (
	StatusPending ChargeStatus = "PENDING"
	StatusSuccess ChargeStatus = "SUCCESS"
	StatusFailed  ChargeStatus = "FAILED"
)

// ChargeRequest represents a request to bill a mobile money wallet
type ChargeRequest struct {
	TransactionID string  `json:"transaction_id" binding:"required"`
	PhoneNumber   string  `json:"phone_number" binding:"required"`
	ProviderID    string  `json:"provider_id"`
	Amount        float64 `json:"amount" binding:"required"`
	Description   string  `json:"description"`
}

// ChargeResponse acknowledges an accepted charge
type ChargeResponse struct {
	PaymentReference string       `json:"payment_reference"`
	Status           ChargeStatus `json:"status"`
	AcceptedAt       time.Time    `json:"accepted_at"`
}

// VerifyResponse represents the current state of a charge
type VerifyResponse struct {
	PaymentReference string       `json:"payment_reference"`
	Status           ChargeStatus `json:"status"`
	Message          string       `json:"message,omitempty"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status       string    `json:"status"`
	AggregatorID string    `json:"aggregator_id"`
	Timestamp    time.Time `json:"timestamp"`
	ApprovalRate float64   `json:"approval_rate"`
}

var phonePattern = regexp.MustCompile(`^0[2-9]\d{8}$`)

// charge is the in-memory record of one wallet charge
type charge struct {
	paymentRef string
	phone      string
	amount     float64
	acceptedAt time.Time
	settlesAt  time.Time
	approved   bool
	message    string
}

func (c *charge) statusAt(now time.Time) (ChargeStatus, string) {
	if now.Before(c.settlesAt) {
		return StatusPending, ""
	}
	if c.approved {
		return StatusSuccess, ""
	}
	return StatusFailed, c.message
}

// MockAggregator simulates a mobile money aggregator: charges are accepted
// immediately and settle asynchronously after a configurable delay
type MockAggregator struct {
	mu           sync.RWMutex
	charges      map[string]*charge
	approvalRate float64
	settleDelay  time.Duration
	aggregatorID string
	rng          *rand.Rand
}

// NewMockAggregator creates a new mock aggregator instance
func NewMockAggregator(approvalRate float64, settleDelay time.Duration) *MockAggregator {
	return &MockAggregator{
		charges:      make(map[string]*charge),
		approvalRate: approvalRate,
		settleDelay:  settleDelay,
		aggregatorID: "MOCK_MOMO_" + uuid.New().String()[:8],
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// accept records a new charge and decides its eventual outcome up front
func (m *MockAggregator) accept(req *ChargeRequest) *ChargeResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	c := &charge{
		paymentRef: "MOMO-" + uuid.New().String(),
		phone:      req.PhoneNumber,
		amount:     req.Amount,
		acceptedAt: now,
		settlesAt:  now.Add(m.settleDelay),
		approved:   m.rng.Float64() < m.approvalRate,
	}

	// Wallets ending 0000 always decline, for predictable failure testing
	if len(req.PhoneNumber) >= 4 && req.PhoneNumber[len(req.PhoneNumber)-4:] == "0000" {
		c.approved = false
	}
	if !c.approved {
		c.message = m.randomDeclineMessage()
	}

	m.charges[c.paymentRef] = c

	log.Info().
		Str("payment_ref", c.paymentRef).
		Str("transaction_id", req.TransactionID).
		Str("phone", req.PhoneNumber).
		Float64("amount", req.Amount).
		Bool("will_approve", c.approved).
		Msg("Charge accepted")

	return &ChargeResponse{
		PaymentReference: c.paymentRef,
		Status:           StatusPending,
		AcceptedAt:       now,
	}
}

func (m *MockAggregator) lookup(paymentRef string) (*charge, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.charges[paymentRef]
	return c, ok
}

func (m *MockAggregator) randomDeclineMessage() string {
	messages := []string{
		"Insufficient wallet balance",
		"Subscriber did not authorize the charge",
		"Wallet is suspended",
		"Charge timed out waiting for subscriber PIN",
	}
	return messages[m.rng.Intn(len(messages))]
}

// Handler struct holds the mock aggregator and routes
type Handler struct {
	aggregator *MockAggregator
}

func NewHandler(aggregator *MockAggregator) *Handler {
	return &Handler{aggregator: aggregator}
}

// CreateCharge handles charge initialization requests
func (h *Handler) CreateCharge(c *gin.Context) {
	var req ChargeRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if !phonePattern.MatchString(req.PhoneNumber) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "phone number is not a valid wallet number",
		})
		return
	}
	if req.Amount <= 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "amount must be positive",
		})
		return
	}

	response := h.aggregator.accept(&req)
	c.JSON(http.StatusAccepted, response)
}

// GetCharge handles charge status check requests
func (h *Handler) GetCharge(c *gin.Context) {
	paymentRef := c.Param("payment_reference")

	ch, ok := h.aggregator.lookup(paymentRef)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "unknown payment reference",
		})
		return
	}

	status, message := ch.statusAt(time.Now())
	c.JSON(http.StatusOK, VerifyResponse{
		PaymentReference: ch.paymentRef,
		Status:           status,
		Message:          message,
	})
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		AggregatorID: h.aggregator.aggregatorID,
		Timestamp:    time.Now(),
		ApprovalRate: h.aggregator.approvalRate,
	})
}

// UpdateConfig allows changing aggregator behavior at runtime
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		ApprovalRate *float64 `json:"approval_rate"`
		SettleDelay  *string  `json:"settle_delay"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	h.aggregator.mu.Lock()
	defer h.aggregator.mu.Unlock()

	if config.ApprovalRate != nil {
		if *config.ApprovalRate >= 0 && *config.ApprovalRate <= 1.0 {
			h.aggregator.approvalRate = *config.ApprovalRate
			log.Info().Float64("rate", *config.ApprovalRate).Msg("Updated approval rate")
		}
	}
	if config.SettleDelay != nil {
		if d, err := time.ParseDuration(*config.SettleDelay); err == nil && d >= 0 {
			h.aggregator.settleDelay = d
			log.Info().Dur("delay", d).Msg("Updated settle delay")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Configuration updated",
		"approval_rate": h.aggregator.approvalRate,
		"settle_delay":  h.aggregator.settleDelay.String(),
	})
}

// SetupRouter configures all routes
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	// Add request logging middleware
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/charges", handler.CreateCharge)
		v1.GET("/charges/:payment_reference", handler.GetCharge)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.UpdateConfig)
	}

	// Root health check
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Get configuration from environment
	port := getEnv("PORT", "8082")
	approvalRate := getEnvFloat("APPROVAL_RATE", 1)
	settleDelay := getEnvDuration("SETTLE_DELAY", 3*time.Second)

	log.Info().
		Str("port", port).
		Float64("approval_rate", approvalRate).
		Dur("settle_delay", settleDelay).
		Msg("Starting Mock Mobile Money Aggregator")

	// Create mock aggregator
	aggregator := NewMockAggregator(approvalRate, settleDelay)
	handler := NewHandler(aggregator)
	router := SetupRouter(handler)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
