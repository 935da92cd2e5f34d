package models

// Decision kinds
const (
	DecisionPay         = "PAY"
	DecisionReplyOnly   = "REPLY_ONLY"
	DecisionAwaitTarget = "AWAIT_TARGET"
)

// Payment target kinds
const (
	TargetKindAddress = "address"
	TargetKindInvoice = "invoice"
)

// PaymentTarget is either an address or an invoice, never both.
type PaymentTarget struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Decision is the reward policy outcome for one response.
type Decision struct {
	Kind     string         `json:"kind"`
	Target   *PaymentTarget `json:"target,omitempty"`
	Amount   int64          `json:"amount,omitempty"`
	Currency string         `json:"currency,omitempty"`
	AuthorID string         `json:"author_id,omitempty"`
	Reply    string         `json:"reply"`
	Reason   string         `json:"reason,omitempty"`
}
