// Package storage defines the persistence interfaces and their implementations.
package storage

import (
	"context"

	"newsbot/internal/model"
)

// EntryStore records which entry links have already been dispatched.
type EntryStore interface {
	HasEntry(ctx context.Context, link string) (bool, error)
	RecordEntry(ctx context.Context, link string) error
}

// SubscriptionStore holds each user's selected sources and categories.
type SubscriptionStore interface {
	EnsureUser(ctx context.Context, userID int64) error
	Sources(ctx context.Context, userID int64) ([]string, error)
	Categories(ctx context.Context, userID int64, source string) ([]string, error)
	ReplacePreferences(ctx context.Context, userID int64, prefs model.Preferences) error
	AllUsers(ctx context.Context) ([]int64, error)
}

// Storage is the interface for all persistence operations.
type Storage interface {
	EntryStore
	SubscriptionStore

	Close() error
}
