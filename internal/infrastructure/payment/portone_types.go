package payment

import "time"

// portOneErrorResponse is the error body returned for non-2xx responses
type portOneErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

const (
	portOneErrBillingKeyNotFound = "BILLING_KEY_NOT_FOUND"
	portOneErrPaymentNotFound    = "PAYMENT_NOT_FOUND"
)

// portOneAmount is the amount object used by payment requests
type portOneAmount struct {
	Total int64 `json:"total"`
}

// portOneBillingKeyInfo is the response of GET /billing-keys/{billingKey}
type portOneBillingKeyInfo struct {
	Status     string                    `json:"status"`
	BillingKey string                    `json:"billingKey"`
	Methods    []portOneBillingKeyMethod `json:"methods,omitempty"`
	IssuedAt   *time.Time                `json:"issuedAt,omitempty"`
	Channels   []portOneSelectedChannel  `json:"channels,omitempty"`
}

type portOneSelectedChannel struct {
	Type   string `json:"type"`
	PGType string `json:"pgProvider,omitempty"`
}

// portOneBillingKeyMethod is one method variant attached to a billing key.
// Type is BillingKeyPaymentMethodCard, BillingKeyPaymentMethodEasyPay,
// BillingKeyPaymentMethodMobile or something newer.
type portOneBillingKeyMethod struct {
	Type        string       `json:"type"`
	Card        *portOneCard `json:"card,omitempty"`
	Provider    string       `json:"provider,omitempty"`
	PhoneNumber string       `json:"phoneNumber,omitempty"`
}

// portOneCard is the card detail shared by billing keys and payments
type portOneCard struct {
	Number    string `json:"number,omitempty"`
	Brand     string `json:"brand,omitempty"`
	Issuer    string `json:"issuer,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	Name      string `json:"name,omitempty"`
}

// portOneBillingKeyPaymentRequest is the body of POST /payments/{id}/billing-key
type portOneBillingKeyPaymentRequest struct {
	StoreID    string        `json:"storeId,omitempty"`
	BillingKey string        `json:"billingKey"`
	ChannelKey string        `json:"channelKey,omitempty"`
	OrderName  string        `json:"orderName"`
	Amount     portOneAmount `json:"amount"`
	Currency   string        `json:"currency"`
}

// portOneBillingKeyPaymentResponse is the response of POST /payments/{id}/billing-key
type portOneBillingKeyPaymentResponse struct {
	Payment struct {
		PGTxID string    `json:"pgTxId"`
		PaidAt time.Time `json:"paidAt"`
	} `json:"payment"`
}

// portOneCreateScheduleRequest is the body of POST /payments/{id}/schedule
type portOneCreateScheduleRequest struct {
	Payment   portOneBillingKeyPaymentRequest `json:"payment"`
	TimeToPay time.Time                       `json:"timeToPay"`
}

// portOneCreateScheduleResponse is the response of POST /payments/{id}/schedule
type portOneCreateScheduleResponse struct {
	Schedule struct {
		ID string `json:"id"`
	} `json:"schedule"`
}

// portOneRevokeSchedulesRequest is the body of DELETE /payment-schedules
type portOneRevokeSchedulesRequest struct {
	StoreID     string   `json:"storeId,omitempty"`
	ScheduleIDs []string `json:"scheduleIds"`
}

// portOneRevokeSchedulesResponse is the response of DELETE /payment-schedules
type portOneRevokeSchedulesResponse struct {
	RevokedScheduleIDs []string   `json:"revokedScheduleIds"`
	RevokedAt          *time.Time `json:"revokedAt,omitempty"`
}

// portOnePayment is the response of GET /payments/{id}
type portOnePayment struct {
	Status        string                 `json:"status"`
	ID            string                 `json:"id"`
	TransactionID string                 `json:"transactionId,omitempty"`
	BillingKey    string                 `json:"billingKey,omitempty"`
	Method        *portOnePaymentMethod  `json:"method,omitempty"`
	Failure       *portOnePaymentFailure `json:"failure,omitempty"`
	PaidAt        *time.Time             `json:"paidAt,omitempty"`
}

// portOnePaymentMethod is the method used for a payment.
// Type is PaymentMethodCard, PaymentMethodEasyPay, PaymentMethodMobile or something newer.
type portOnePaymentMethod struct {
	Type     string       `json:"type"`
	Card     *portOneCard `json:"card,omitempty"`
	Provider string       `json:"provider,omitempty"`
	Phone    string       `json:"phoneNumber,omitempty"`
}

type portOnePaymentFailure struct {
	Reason    string `json:"reason,omitempty"`
	PGCode    string `json:"pgCode,omitempty"`
	PGMessage string `json:"pgMessage,omitempty"`
}

// portOneWebhookPayload is the body of a webhook delivery
type portOneWebhookPayload struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
	Data      struct {
		StoreID       string `json:"storeId,omitempty"`
		PaymentID     string `json:"paymentId,omitempty"`
		TransactionID string `json:"transactionId,omitempty"`
		BillingKey    string `json:"billingKey,omitempty"`
	} `json:"data"`
}
