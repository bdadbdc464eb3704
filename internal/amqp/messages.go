package amqp

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"costing/internal/core"
)

// CostingSavedMessage announces a save that reached the finance API. It
// carries the journal id and a summary; consumers read the full report from
// the journal.
type CostingSavedMessage struct {
	MessageID    string          `json:"message_id"`
	SaveID       string          `json:"save_id"`
	SessionID    string          `json:"session_id"`
	Outcome      string          `json:"outcome"`
	InvoiceTotal decimal.Decimal `json:"invoice_total"`
	FinalProfit  decimal.Decimal `json:"final_profit"`
	ProfitMargin decimal.Decimal `json:"profit_margin_percent"`
	FailedSteps  []core.SaveStep `json:"failed_steps,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

func NewCostingSavedMessage(r core.SaveReport) *CostingSavedMessage {
	msg := &CostingSavedMessage{
		MessageID:    uuid.NewString(),
		SaveID:       r.ID,
		SessionID:    r.SessionID,
		Outcome:      r.Outcome(),
		InvoiceTotal: r.Rollup.InvoiceTotal,
		FinalProfit:  r.Rollup.FinalProfit,
		ProfitMargin: r.Rollup.ProfitMarginPercent,
		Timestamp:    time.Now().UTC(),
	}
	for _, s := range r.Failed() {
		msg.FailedSteps = append(msg.FailedSteps, s.Step)
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *CostingSavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CostingSavedMessageFromJSON decodes a message body. A body without a save
// id is rejected.
func CostingSavedMessageFromJSON(data []byte) (*CostingSavedMessage, error) {
	var msg CostingSavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.SaveID == "" {
		return nil, fmt.Errorf("costing saved message %q has no save id", msg.MessageID)
	}
	return &msg, nil
}
