package models

import "time"

// Contribution is one confirmed contribution to a round. Immutable once
// recorded; the amount was within the round's [min, max] bounds at acceptance
// time.
type Contribution struct {
	ID          string    `json:"id"`
	RoundID     string    `json:"roundId"`
	Contributor string    `json:"contributor"` // address
	Amount      string    `json:"amount"`      // integer base units
	Referrer    *string   `json:"referrer,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	CreatedAt   time.Time `json:"createdAt"`
}
