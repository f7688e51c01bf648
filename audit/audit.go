// Package audit records every state transition and administrative action to
// a durable sink. The audit trail is the durability source of truth for the
// matching engine: the engine's own state may live only in memory, and the
// domain-event bus is best-effort.
package audit

import (
	"context"
	"time"
)

// Entry is one audit record. Detail carries the JSON form of the domain
// event the entry mirrors.
type Entry struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	RequestID  string    `gorm:"index;size:64;not null" json:"requestId"`
	Actor      string    `gorm:"size:64;not null" json:"actor"`
	EventType  string    `gorm:"size:48;not null" json:"eventType"`
	Detail     string    `gorm:"type:text" json:"detail"`
	OccurredAt time.Time `gorm:"index" json:"occurredAt"`
}

func (Entry) TableName() string { return "matching_audit_log" }

// Logger is the durable audit sink. Implementations own their retry policy;
// the engine logs Record failures and moves on.
type Logger interface {
	Record(ctx context.Context, e Entry) error
}
