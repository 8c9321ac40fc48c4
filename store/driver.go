package store

import "context"

// Driver is an interface for store driver.
// It contains all methods that a preference store driver should implement.
// Every method must be safe for concurrent use, and every mutation must be
// durable before the call returns.
type Driver interface {
	Close() error

	// Subscription related methods.
	UpsertSubscription(ctx context.Context, upsert *UpsertSubscription) (*Subscription, error)
	GetSubscription(ctx context.Context, id int64) (*Subscription, error)
	RemoveSubscription(ctx context.Context, id int64) error
	SubscribersByDepartment(ctx context.Context, department string) ([]int64, error)
	SubscribersByDepartmentAndFilter(ctx context.Context, department, fieldID, value string) ([]int64, error)

	// Login link related methods.
	SetLoginLink(ctx context.Context, id int64, login string) error
	GetLoginLink(ctx context.Context, id int64) (string, error)
	DeleteLoginLink(ctx context.Context, id int64) error
}
