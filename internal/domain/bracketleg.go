package domain

import "time"

// BracketLeg is a flat row representing one leg of a bracket order, keyed by
// (ParentOrderID, LegType, Account). Never materialised as a pointer graph.
type BracketLeg struct {
	ParentOrderID string
	LegOrderID    string
	LegType       LegType
	Account       Account
	Status        OrderStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}
