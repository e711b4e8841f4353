// Package backend assembles the snapshot store and the optional change
// publisher selected by configuration.
package backend

import (
	"context"

	"budget/internal/amqp"
	"budget/internal/services"
	"budget/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the collaborators built by a Factory.
type BackendResult struct {
	Store storage.SnapshotStore
	// Publisher is nil when AMQP is disabled or unreachable.
	Publisher *amqp.Client
	// Ready reports whether the store can serve requests.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// EventPublisher returns the publisher as a services.EventPublisher, or an untyped
// nil when notifications are disabled.
func (r *BackendResult) EventPublisher() services.EventPublisher {
	if r.Publisher == nil {
		return nil
	}
	return r.Publisher
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// file backend
	SnapshotFile string

	// sqlite backend
	SQLiteDBPath string

	// optional change notifications, any backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	FileBackend   BackendType = "file"
	SQLiteBackend BackendType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, FileBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
