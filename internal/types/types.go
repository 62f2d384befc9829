package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AlertType is the comparison direction of an alert.
type AlertType string

const (
	Above AlertType = "above"
	Below AlertType = "below"
)

// ParseAlertType accepts "above"/"below" in any case.
func ParseAlertType(s string) (AlertType, bool) {
	t := AlertType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

func (t AlertType) Valid() bool {
	return t == Above || t == Below
}

// Alert is a standing watch condition on a token price.
type Alert struct {
	ID            int64           `json:"id"`
	TokenName     string          `json:"token_name"`
	TokenContract string          `json:"token_contract,omitempty"`
	AlertType     AlertType       `json:"alert_type"`
	TargetPrice   decimal.Decimal `json:"target_price"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	LastTriggered *time.Time      `json:"last_triggered,omitempty"`
	TriggerCount  int64           `json:"trigger_count"`
}

// Matches reports whether price satisfies the alert. Both directions are
// inclusive: a price equal to the target fires.
func (a Alert) Matches(price decimal.Decimal) bool {
	switch a.AlertType {
	case Above:
		return price.GreaterThanOrEqual(a.TargetPrice)
	case Below:
		return price.LessThanOrEqual(a.TargetPrice)
	}
	return false
}

// CoolingDown reports whether the alert fired less than cooldown ago.
func (a Alert) CoolingDown(now time.Time, cooldown time.Duration) bool {
	if cooldown <= 0 || a.LastTriggered == nil {
		return false
	}
	return now.Sub(*a.LastTriggered) < cooldown
}

// PriceQuote is a spot price returned by a quote source. It is never persisted.
type PriceQuote struct {
	TokenID   string          `json:"token_id"`
	Symbol    string          `json:"symbol"`
	PriceUSD  decimal.Decimal `json:"price_usd"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Trigger is one line of a tick report.
type Trigger struct {
	AlertID      int64
	TokenName    string
	AlertType    AlertType
	TargetPrice  decimal.Decimal
	CurrentPrice decimal.Decimal
}

// PricePoint is a recorded price sample.
type PricePoint struct {
	TokenName string
	Price     decimal.Decimal
	Timestamp time.Time
}

// CanonicalToken returns the lookup key for a token symbol.
func CanonicalToken(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
