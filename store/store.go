// Package store provides durable access to subscriber preferences: the
// subscription records resolved during webhook fan-out and the login links
// consulted by the edit flow.
package store

import (
	"context"
)

// Store provides access to subscription and login-link records through an
// injectable driver.
type Store struct {
	driver Driver
}

// New creates a new instance of Store.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// UpsertSubscription inserts or updates one subscriber's preference record.
func (s *Store) UpsertSubscription(ctx context.Context, upsert *UpsertSubscription) (*Subscription, error) {
	return s.driver.UpsertSubscription(ctx, upsert)
}

// GetSubscription returns a copy of the subscriber's record, or an empty
// record when none exists.
func (s *Store) GetSubscription(ctx context.Context, id int64) (*Subscription, error) {
	return s.driver.GetSubscription(ctx, id)
}

// RemoveSubscription deletes the subscriber's preference record.
func (s *Store) RemoveSubscription(ctx context.Context, id int64) error {
	return s.driver.RemoveSubscription(ctx, id)
}

// SubscribersByDepartment returns every identity subscribed to the
// department, regardless of filters.
func (s *Store) SubscribersByDepartment(ctx context.Context, department string) ([]int64, error) {
	return s.driver.SubscribersByDepartment(ctx, department)
}

// SubscribersByDepartmentAndFilter returns every identity whose department
// and whose filter entry for the field both match.
func (s *Store) SubscribersByDepartmentAndFilter(ctx context.Context, department, fieldID, value string) ([]int64, error) {
	return s.driver.SubscribersByDepartmentAndFilter(ctx, department, fieldID, value)
}

func (s *Store) SetLoginLink(ctx context.Context, id int64, login string) error {
	return s.driver.SetLoginLink(ctx, id, login)
}

// GetLoginLink returns the linked tracker login, or "" when none is linked.
func (s *Store) GetLoginLink(ctx context.Context, id int64) (string, error) {
	return s.driver.GetLoginLink(ctx, id)
}

func (s *Store) DeleteLoginLink(ctx context.Context, id int64) error {
	return s.driver.DeleteLoginLink(ctx, id)
}
