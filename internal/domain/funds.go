package domain

import "time"

// FundsSnapshot is the last known available balance for an account.
type FundsSnapshot struct {
	Account         Account
	AvailableBalance float64
	FetchedAt       time.Time
}
