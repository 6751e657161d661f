package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/mockly/billing/internal/domain/billing"
)

const portOneMaxResponseBytes = 1 << 20

// PortOneGateway implements billing.Gateway against the PortOne REST v2 API
type PortOneGateway struct {
	config     *PortOneConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *zap.Logger
}

// PortOneGatewayOption customizes a PortOneGateway
type PortOneGatewayOption func(*PortOneGateway)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) PortOneGatewayOption {
	return func(g *PortOneGateway) {
		g.httpClient = client
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) PortOneGatewayOption {
	return func(g *PortOneGateway) {
		g.logger = logger
	}
}

// NewPortOneGateway creates a new PortOne gateway adapter
func NewPortOneGateway(config *PortOneConfig, opts ...PortOneGatewayOption) (*PortOneGateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	g := &PortOneGateway{
		config:     config,
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if config.Breaker.Enabled {
		g.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "portone",
			MaxRequests: config.Breaker.MaxRequests,
			Interval:    config.Breaker.Interval,
			Timeout:     config.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= config.Breaker.FailureThreshold
			},
			// only uncertain outcomes count against the breaker
			IsSuccessful: func(err error) bool {
				return err == nil || !billing.IsUncertain(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				g.logger.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	return g, nil
}

var _ billing.Gateway = (*PortOneGateway)(nil)

// GetBillingKey looks up a billing key and the methods attached to it
func (g *PortOneGateway) GetBillingKey(ctx context.Context, billingKey string) (*billing.BillingKeyInfo, error) {
	g.logger.Info("Looking up billing key", zap.String("billing_key", billingKey))

	body, err := g.call(ctx, http.MethodGet, "/billing-keys/"+url.PathEscape(billingKey), nil)
	if err != nil {
		var apiErr *PortOneAPIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.Type == portOneErrBillingKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", billing.ErrBillingKeyNotRecognized, billingKey)
		}
		return nil, err
	}

	var resp portOneBillingKeyInfo
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode billing key: %v", billing.ErrGatewayRequestFailed, err)
	}
	if resp.Status == "DELETED" {
		return nil, fmt.Errorf("%w: %s is deleted", billing.ErrBillingKeyNotRecognized, billingKey)
	}

	info := &billing.BillingKeyInfo{
		BillingKey: resp.BillingKey,
		Methods:    make([]billing.MethodInfo, 0, len(resp.Methods)),
	}
	if info.BillingKey == "" {
		info.BillingKey = billingKey
	}
	if resp.IssuedAt != nil {
		info.IssuedAt = *resp.IssuedAt
	}
	for _, m := range resp.Methods {
		info.Methods = append(info.Methods, billingKeyMethodToDomain(m))
	}
	return info, nil
}

// Charge pays immediately with a billing key
func (g *PortOneGateway) Charge(ctx context.Context, req billing.ChargeRequest) (*billing.ChargeResult, error) {
	g.logger.Info("Charging billing key",
		zap.String("payment_id", req.PaymentID),
		zap.String("amount", req.Amount.String()),
		zap.String("currency", req.Currency.String()))

	payload := g.paymentRequest(req.BillingKey, req.OrderName, req.Amount.IntPart(), req.Currency)
	body, err := g.call(ctx, http.MethodPost, "/payments/"+url.PathEscape(req.PaymentID)+"/billing-key", payload)
	if err != nil {
		return nil, err
	}

	var resp portOneBillingKeyPaymentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		// the provider accepted the charge; only the acknowledgement is unreadable
		return nil, fmt.Errorf("%w: decode charge response: %v", billing.ErrGatewayUnavailable, err)
	}
	return &billing.ChargeResult{
		PaymentID: req.PaymentID,
		PGTxID:    resp.Payment.PGTxID,
		PaidAt:    resp.Payment.PaidAt,
	}, nil
}

// CreateSchedule registers a future charge and returns the schedule id
func (g *PortOneGateway) CreateSchedule(ctx context.Context, req billing.ScheduleRequest) (string, error) {
	g.logger.Info("Creating payment schedule",
		zap.String("payment_id", req.PaymentID),
		zap.Time("execute_at", req.ExecuteAt))

	payload := portOneCreateScheduleRequest{
		Payment:   g.paymentRequest(req.BillingKey, req.OrderName, req.Amount.IntPart(), req.Currency),
		TimeToPay: req.ExecuteAt.UTC(),
	}
	body, err := g.call(ctx, http.MethodPost, "/payments/"+url.PathEscape(req.PaymentID)+"/schedule", payload)
	if err != nil {
		return "", err
	}

	var resp portOneCreateScheduleResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Schedule.ID == "" {
		return "", fmt.Errorf("%w: schedule response without id", billing.ErrGatewayUnavailable)
	}

	g.logger.Info("Payment schedule created",
		zap.String("payment_id", req.PaymentID),
		zap.String("schedule_id", resp.Schedule.ID))
	return resp.Schedule.ID, nil
}

// RevokeSchedule cancels a pending scheduled charge
func (g *PortOneGateway) RevokeSchedule(ctx context.Context, scheduleID string) error {
	g.logger.Info("Revoking payment schedule", zap.String("schedule_id", scheduleID))

	payload := portOneRevokeSchedulesRequest{
		StoreID:     g.config.StoreID,
		ScheduleIDs: []string{scheduleID},
	}
	body, err := g.call(ctx, http.MethodDelete, "/payment-schedules", payload)
	if err != nil {
		return err
	}

	var resp portOneRevokeSchedulesResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		g.logger.Info("Payment schedule revoked",
			zap.String("schedule_id", scheduleID),
			zap.Strings("revoked", resp.RevokedScheduleIDs))
	}
	return nil
}

// GetPaymentDetail fetches the provider's record of a payment
func (g *PortOneGateway) GetPaymentDetail(ctx context.Context, paymentID string) (*billing.PaymentDetail, error) {
	body, err := g.call(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return nil, err
	}

	var resp portOnePayment
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode payment: %v", billing.ErrGatewayRequestFailed, err)
	}

	detail := &billing.PaymentDetail{
		ID:         resp.ID,
		Status:     billing.ProviderPaymentStatus(resp.Status),
		BillingKey: resp.BillingKey,
		Method:     paymentMethodToDomain(resp.Method),
		PaidAt:     resp.PaidAt,
	}
	if detail.ID == "" {
		detail.ID = paymentID
	}
	if resp.Failure != nil {
		detail.FailureReason = resp.Failure.Reason
		detail.PGMessage = resp.Failure.PGMessage
	}
	return detail, nil
}

func (g *PortOneGateway) paymentRequest(billingKey, orderName string, total int64, currency billing.Currency) portOneBillingKeyPaymentRequest {
	return portOneBillingKeyPaymentRequest{
		StoreID:    g.config.StoreID,
		BillingKey: billingKey,
		ChannelKey: g.config.ChannelKey,
		OrderName:  orderName,
		Amount:     portOneAmount{Total: total},
		Currency:   currency.String(),
	}
}

// call runs one request through the circuit breaker
func (g *PortOneGateway) call(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if g.breaker == nil {
		return g.doRequest(ctx, method, path, payload)
	}

	body, err := g.breaker.Execute(func() ([]byte, error) {
		return g.doRequest(ctx, method, path, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", billing.ErrGatewayCircuitOpen, err)
	}
	return body, err
}

// doRequest performs an HTTP request bounded by the configured timeout and
// maps the outcome onto the billing gateway errors
func (g *PortOneGateway) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("portone: failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	endpoint := g.config.APIBase + path
	if method == http.MethodGet {
		endpoint += "?storeId=" + url.QueryEscape(g.config.StoreID)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("portone: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "PortOne "+g.config.APISecret)
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Warn("PortOne request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, portOneMaxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	g.logger.Debug("PortOne request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 300 {
		return nil, newPortOneAPIError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func classifyTransportError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", billing.ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", billing.ErrGatewayUnavailable, err)
}

// PortOneAPIError is a non-2xx response from the API
type PortOneAPIError struct {
	StatusCode int
	Type       string
	Message    string
	kind       error
}

func newPortOneAPIError(status int, body []byte) *PortOneAPIError {
	apiErr := &PortOneAPIError{StatusCode: status, kind: billing.ErrGatewayRequestFailed}
	var parsed portOneErrorResponse
	if json.Unmarshal(body, &parsed) == nil {
		apiErr.Type = parsed.Type
		apiErr.Message = parsed.Message
	}
	if status >= 500 {
		apiErr.kind = billing.ErrGatewayUnavailable
	}
	return apiErr
}

func (e *PortOneAPIError) Error() string {
	msg := fmt.Sprintf("%v: HTTP %d", e.kind, e.StatusCode)
	if e.Type != "" {
		msg += " " + e.Type
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap exposes the gateway error class
func (e *PortOneAPIError) Unwrap() error {
	return e.kind
}

func billingKeyMethodToDomain(m portOneBillingKeyMethod) billing.MethodInfo {
	switch m.Type {
	case "BillingKeyPaymentMethodCard":
		return cardToDomain(m.Card)
	case "BillingKeyPaymentMethodEasyPay":
		return billing.EasyPayMethod{Provider: m.Provider}
	case "BillingKeyPaymentMethodMobile":
		return billing.MobileMethod{Phone: m.PhoneNumber}
	default:
		return billing.UnknownMethod{Type: m.Type}
	}
}

func paymentMethodToDomain(m *portOnePaymentMethod) billing.MethodInfo {
	if m == nil {
		return billing.UnknownMethod{}
	}
	switch m.Type {
	case "PaymentMethodCard":
		return cardToDomain(m.Card)
	case "PaymentMethodEasyPay":
		return billing.EasyPayMethod{Provider: m.Provider}
	case "PaymentMethodMobile":
		return billing.MobileMethod{Phone: m.Phone}
	default:
		return billing.UnknownMethod{Type: m.Type}
	}
}

func cardToDomain(c *portOneCard) billing.MethodInfo {
	if c == nil {
		return billing.CardMethod{}
	}
	issuer := c.Issuer
	if issuer == "" {
		issuer = c.Publisher
	}
	return billing.CardMethod{
		Number: c.Number,
		Brand:  c.Brand,
		Issuer: issuer,
	}
}
