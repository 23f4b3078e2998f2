package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore persists leader and follower orders. UpsertOrder is used both
// for first observation (stream or recovery) and subsequent mutations; rows
// are never deleted.
type OrderStore interface {
	UpsertOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	GetOrderByCorrelation(ctx context.Context, correlationID string) (Order, error)
	ListByParent(ctx context.Context, parentOrderID string) ([]Order, error)
	ListOrdersBefore(ctx context.Context, before time.Time) ([]Order, error)
}

// MappingStore persists CopyMapping rows, unique by LeaderOrderID.
type MappingStore interface {
	UpsertMapping(ctx context.Context, m CopyMapping) error
	GetMappingByLeader(ctx context.Context, leaderOrderID string) (CopyMapping, bool, error)
}

// BracketLegStore persists BracketLeg rows, unique by
// (ParentOrderID, LegType, Account).
type BracketLegStore interface {
	UpsertBracketLeg(ctx context.Context, leg BracketLeg) error
	ListBracketLegs(ctx context.Context, parentOrderID string) ([]BracketLeg, error)
}

// EventStore appends OrderEvent rows.
type EventStore interface {
	AppendEvent(ctx context.Context, e OrderEvent) error
	ListEventsBefore(ctx context.Context, before time.Time) ([]OrderEvent, error)
}

// FundsStore persists the last known balance snapshot per account.
type FundsStore interface {
	UpsertFunds(ctx context.Context, f FundsSnapshot) error
	GetFunds(ctx context.Context, account Account) (FundsSnapshot, bool, error)
}

// InstrumentStore persists instrument metadata by security id.
type InstrumentStore interface {
	UpsertInstrument(ctx context.Context, i Instrument) error
	GetInstrument(ctx context.Context, securityID string) (Instrument, bool, error)
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	LogAudit(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// ConfigStore persists small scalar configuration values, including the
// `last_leader_event_ts` replication cursor.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
}

// Tx represents a single transactional unit of work spanning multiple store
// calls. WithTx callers use it to keep mapping writes and follower-order
// inserts atomic with each other.
type Tx interface {
	OrderStore
	MappingStore
	BracketLegStore
	EventStore
	ConfigStore
	AuditStore
}

// Store is the full persistence surface. WithTx runs fn inside a single
// database transaction; if fn returns an error the transaction is rolled
// back. Reads may be served outside a transaction.
type Store interface {
	OrderStore
	MappingStore
	BracketLegStore
	EventStore
	FundsStore
	InstrumentStore
	AuditStore
	ConfigStore

	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
