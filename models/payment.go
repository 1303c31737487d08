package models

import (
	"encoding/json"
	"strings"
	"time"
)

type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusFailed                IntentStatus = "failed"
)

// Terminal reports whether no transition is defined out of s.
func (s IntentStatus) Terminal() bool {
	return s == IntentStatusSucceeded || s == IntentStatusFailed
}

type Currency string

const (
	CurrencyUSD Currency = "usd"
	CurrencyEUR Currency = "eur"
	CurrencyGBP Currency = "gbp"
)

var supportedCurrencies = map[Currency]struct{}{
	CurrencyUSD: {},
	CurrencyEUR: {},
	CurrencyGBP: {},
}

// ParseCurrency normalizes a client supplied code; ok is false for anything
// outside the supported set.
func ParseCurrency(raw string) (Currency, bool) {
	c := Currency(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := supportedCurrencies[c]
	return c, ok
}

type PaymentIntent struct {
	ID               string       `json:"id"`
	ClientSecret     string       `json:"client_secret,omitempty"`
	AmountMinorUnits int64        `json:"amount"`
	Currency         Currency     `json:"currency"`
	Status           IntentStatus `json:"status"`
	ProcessorRef     string       `json:"processor_ref,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

type ConfirmationResult struct {
	Success bool         `json:"success"`
	Status  IntentStatus `json:"status"`
	ID      string       `json:"id"`
}

type CreateIntentRequest struct {
	Amount   json.RawMessage `json:"amount"`
	Currency string          `json:"currency"`
}

// AmountText returns the amount as the caller typed it, accepting both a JSON
// number and a JSON string.
func (r CreateIntentRequest) AmountText() string {
	raw := strings.TrimSpace(string(r.Amount))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Amount, &s); err == nil {
		return s
	}
	return raw
}

type CreateIntentResponse struct {
	ClientSecret string       `json:"clientSecret"`
	ID           string       `json:"id"`
	Amount       int64        `json:"amount"`
	Currency     Currency     `json:"currency"`
	Status       IntentStatus `json:"status"`
	Created      int64        `json:"created"`
}

type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
	PaymentMethod   string `json:"paymentMethod"`
}

type PaymentEvent struct {
	EventType        string       `json:"event_type"` // payment_intent_created, payment_succeeded, payment_failed
	PaymentIntentID  string       `json:"payment_intent_id"`
	AmountMinorUnits int64        `json:"amount"`
	Currency         Currency     `json:"currency"`
	Status           IntentStatus `json:"status"`
	ProcessorRef     string       `json:"processor_ref,omitempty"`
	OccurredAt       time.Time    `json:"occurred_at"`
}

// ProcessorReport is the message a payment processor integration sends once
// it knows the outcome of an intent.
type ProcessorReport struct {
	PaymentIntentID string       `json:"payment_intent_id"`
	Status          IntentStatus `json:"status"`
	ProcessorRef    string       `json:"processor_ref"`
}
