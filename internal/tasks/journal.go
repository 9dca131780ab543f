package tasks

import "context"

// Journal mirrors task transitions somewhere durable for reporting. It is never
// consulted to decide a transition: the announcement message stays the record.
type Journal interface {
	TaskAssigned(ctx context.Context, t Task, req CreateRequest) error
	TaskStarted(ctx context.Context, t Task) error
	TaskCompleted(ctx context.Context, t Task, completedAt int64) error
}

// NopJournal discards every transition.
type NopJournal struct{}

func (NopJournal) TaskAssigned(context.Context, Task, CreateRequest) error { return nil }
func (NopJournal) TaskStarted(context.Context, Task) error                 { return nil }
func (NopJournal) TaskCompleted(context.Context, Task, int64) error        { return nil }
