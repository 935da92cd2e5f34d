package models

// Replies used when the oracle cannot be consulted or understood.
const (
	ReplyParseFailure      = "Sorry, your answer could not be processed due to an internal error."
	ReplyUnexpectedFailure = "Sorry, an unexpected error occurred while processing your answer."

	ReplyDetectParseFailure      = "Sorry, we couldn't process your response. Please try again later. 🙏"
	ReplyDetectUnexpectedFailure = "Sorry, an unexpected error occurred while processing your response. 🙏"
)

// Verdict is the classifier's judgement of one response.
type Verdict struct {
	Score     int    `json:"score"`
	Target    string `json:"extracted_target,omitempty"` // address or invoice, empty when absent
	ReplyText string `json:"reply_text"`

	// Open reward flavour
	ToAddress    string `json:"to_address,omitempty"`
	Amount       int64  `json:"amount,omitempty"`
	CurrencyType string `json:"currency_type,omitempty"`

	Failed bool `json:"failed,omitempty"`
}

// HasTarget reports whether the verdict carries a payment target of either kind.
func (v Verdict) HasTarget() bool {
	return v.Target != "" || v.ToAddress != ""
}

// FailedVerdict is the sentinel returned when classification could not complete.
func FailedVerdict(reply string) Verdict {
	return Verdict{Score: 0, ReplyText: reply, Failed: true}
}

// TargetDetection is the narrower oracle judgement used for follow-up responses.
type TargetDetection struct {
	Present   bool   `json:"present"`
	Target    string `json:"target,omitempty"`
	ReplyText string `json:"reply_text"`
}
