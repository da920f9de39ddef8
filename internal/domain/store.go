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

// ChatStore persists completed chat exchanges.
type ChatStore interface {
	Insert(ctx context.Context, rec ChatRecord) error
	List(ctx context.Context, opts ListOpts) ([]ChatRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]ChatRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditStore records operational events such as archive runs.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}
