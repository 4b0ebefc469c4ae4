package models

import "time"

// UserProfile is derived by replaying an address's full transaction history.
// It is recomputed on demand and cached with a short TTL, never persisted.
type UserProfile struct {
	// Identity
	Address  string `json:"address"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`

	// Chain anchors
	RegistrationTxID  string `json:"registration_tx_id"`
	LastActivityTxID  string `json:"last_activity_tx_id,omitempty"`
	LastSubscribeTxID string `json:"last_subscribe_tx_id,omitempty"`

	// Tallies
	PostCount      int `json:"post_count"`
	FollowingCount int `json:"following_count"`
	FollowerCount  int `json:"follower_count"`

	// Timestamps
	RegisteredAt time.Time `json:"registered_at"`
	LastActiveAt time.Time `json:"last_active_at,omitempty"`
}

// Subscription is one logical follow edge. Multiple raw subscribe/unsubscribe
// events for the same (subscriber, target) pair collapse to a single edge by
// latest timestamp.
type Subscription struct {
	Subscriber string    `json:"subscriber"`
	Target     string    `json:"target"`
	Timestamp  int64     `json:"timestamp"`
	Active     bool      `json:"active"`
	TxID       string    `json:"tx_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}
