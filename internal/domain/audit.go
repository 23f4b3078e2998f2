package domain

import "time"

// AuditEntry is a single audit log row (append-only).
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}
