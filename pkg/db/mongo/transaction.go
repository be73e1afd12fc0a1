package mongo

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "licensedesk/pkg/errors"

	"go.mongodb.org/mongo-driver/mongo"
)

// TransactionFunc runs inside a transaction. Repositories called with ctx
// join the transaction's session.
type TransactionFunc func(ctx context.Context) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type mongoTransactionManager struct {
	client *mongo.Client
}

func NewTransactionManager(client *mongo.Client) TransactionManager {
	return &mongoTransactionManager{
		client: client,
	}
}

func (m *mongoTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		return nil, fn(sessCtx)
	})

	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// memoryTransactionManager serialises transactions without rollback. It backs
// the in-memory stores, whose steps after the slot commit cannot fail on I/O.
type memoryTransactionManager struct {
	mu sync.Mutex
}

func NewMemoryTransactionManager() TransactionManager {
	return &memoryTransactionManager{}
}

func (m *memoryTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}

// WithTimeout bounds ctx by timeout unless it already carries a session, whose
// context cannot be wrapped without leaving the transaction.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if mongo.SessionFromContext(ctx) != nil {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	if remaining := time.Until(deadline); remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}
