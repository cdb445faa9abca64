package models

import "time"

// EscrowRecord mirrors the external escrow store's custody of deposited sale
// tokens for one project. Created on deposit, zeroed on release.
type EscrowRecord struct {
	ProjectID  string     `json:"projectId"`
	Asset      string     `json:"asset"` // token contract address
	Amount     string     `json:"amount"`
	ReleasedTo *string    `json:"releasedTo,omitempty"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
