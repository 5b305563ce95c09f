package contracts

import "time"

// Label classifies a resolved outcome.
type Label string

const (
	LabelWin        Label = "win"
	LabelLoss       Label = "loss"
	LabelNeutral    Label = "neutral"
	LabelUnresolved Label = "unresolved"
)

// UnresolvedReason says why a record has no outcome yet.
type UnresolvedReason string

const (
	ReasonEntryMissing UnresolvedReason = "entry_missing"
	ReasonExitMissing  UnresolvedReason = "exit_missing"
	// ReasonPending marks a record whose exit instant has not been reached.
	ReasonPending UnresolvedReason = "pending"
)

// ReturnRecord is the outcome of one signal at one horizon.
// ReturnPct is direction adjusted and expressed in percent.
type ReturnRecord struct {
	SignalID   int64     `json:"signal_id"`
	AccountID  string    `json:"account_id"`
	Asset      string    `json:"asset"`
	Direction  Direction `json:"direction"`
	SignalTime time.Time `json:"signal_time"`
	Horizon    string    `json:"horizon"`

	EntryPrice float64   `json:"entry_price,omitempty"`
	EntryTime  time.Time `json:"entry_time,omitempty"`
	ExitPrice  float64   `json:"exit_price,omitempty"`
	ExitTime   time.Time `json:"exit_time,omitempty"`

	ReturnPct float64          `json:"return_pct"`
	Label     Label            `json:"label"`
	Reason    UnresolvedReason `json:"reason,omitempty"`
}

// Resolved reports whether both prices were found.
func (r ReturnRecord) Resolved() bool {
	return r.Label != LabelUnresolved
}
