package contracts

import "time"

// TriggerKind identifies what caused a rebalance
type TriggerKind string

const (
	TriggerForced        TriggerKind = "forced"        // bootstrap rebalance
	TriggerScheduled     TriggerKind = "scheduled"     // calendar boundary
	TriggerOpportunistic TriggerKind = "opportunistic" // drift threshold
)

// RebalanceEvent is an immutable record of one rebalance.
// Appended to an ordered event log, never mutated after creation.
// ⭐ SSOT: 리밸런스 이벤트 기록은 엔진에서만 생성
type RebalanceEvent struct {
	Date       time.Time          `json:"date"`
	Trigger    TriggerKind        `json:"trigger"`
	Trades     map[string]float64 `json:"trades"` // symbol -> signed share delta
	Cost       float64            `json:"cost"`
	PreValue   float64            `json:"pre_value"`
	PostValue  float64            `json:"post_value"`
	CashBefore float64            `json:"cash_before"`
	CashAfter  float64            `json:"cash_after"`
	Turnover   float64            `json:"turnover"` // sum of |weight delta| at this rebalance
}

// Trade represents a single priced trade within a rebalance
type Trade struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"` // signed, positive = buy
	Price    float64 `json:"price"`
	Value    float64 `json:"value"` // Quantity * Price, signed
}

// EquityPoint is one mark-to-market observation of total portfolio value.
// The equity curve holds one point per trading day, rebalance or not.
type EquityPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}
