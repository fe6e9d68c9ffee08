package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/back-orders/api/internal/platform/firestore"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository on Firestore
// transactions. Each increment reads and rewrites the counter document
// atomically.
type CounterRepository struct {
	provider *pfirestore.Provider
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{provider: provider}, nil
}

// Next atomically increments the counter identified by counterID and returns
// the new value. When called underneath a unit of work the increment joins
// the surrounding transaction; otherwise it runs in its own.
func (r *CounterRepository) Next(ctx context.Context, counterID string) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, errors.New("counter id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	ref := client.Collection(countersCollection).Doc(id)

	var next int64

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		next, err = incrementCounter(tx, ref, id)
		if err != nil {
			return 0, pfirestore.WrapError("counters.next", err)
		}
		return next, nil
	}

	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		next, err = incrementCounter(tx, ref, id)
		return err
	})
	if err != nil {
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return next, nil
}

func incrementCounter(tx *firestore.Transaction, ref *firestore.DocumentRef, id string) (int64, error) {
	now := time.Now().UTC()

	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		doc := counterDocument{CurrentValue: 1, UpdatedAt: now}
		if err := tx.Create(ref, doc); err != nil {
			return 0, err
		}
		return doc.CurrentValue, nil
	}
	if err != nil {
		return 0, err
	}

	var doc counterDocument
	if err := snap.DataTo(&doc); err != nil {
		return 0, fmt.Errorf("counters decode %s: %w", id, err)
	}

	doc.CurrentValue++
	doc.UpdatedAt = now
	if err := tx.Set(ref, doc); err != nil {
		return 0, err
	}
	return doc.CurrentValue, nil
}
