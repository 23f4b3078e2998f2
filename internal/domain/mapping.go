package domain

import "time"

// MappingStatus tracks the lifecycle of a CopyMapping row.
type MappingStatus string

const (
	MappingPending   MappingStatus = "pending"
	MappingPlaced    MappingStatus = "placed"
	MappingFailed    MappingStatus = "failed"
	MappingCancelled MappingStatus = "cancelled"
)

// CopyMapping links a leader order to its follower counterpart. It is unique
// by LeaderOrderID: a leader order id maps to at most one follower order id.
type CopyMapping struct {
	LeaderOrderID   string
	FollowerOrderID string // empty until placement succeeds

	LeaderQty       int64
	FollowerQty     int64
	SizingStrategy  string
	CapitalRatio    float64

	Status       MappingStatus
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}
