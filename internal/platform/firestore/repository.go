package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// The helpers below route each operation through the context transaction
// when one is present, so repository code reads the same whether it runs
// standalone or underneath a unit of work.

// GetDoc reads a single document.
func GetDoc(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	if tx, ok := TransactionFrom(ctx); ok {
		snap, err := tx.Get(ref)
		if err != nil {
			return nil, WrapError("get", err)
		}
		return snap, nil
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return nil, WrapError("get", err)
	}
	return snap, nil
}

// SetDoc upserts a document.
func SetDoc(ctx context.Context, ref *firestore.DocumentRef, data any) error {
	if tx, ok := TransactionFrom(ctx); ok {
		return WrapError("set", tx.Set(ref, data))
	}
	_, err := ref.Set(ctx, data)
	return WrapError("set", err)
}

// CreateDoc creates a document, failing when it already exists.
func CreateDoc(ctx context.Context, ref *firestore.DocumentRef, data any) error {
	if tx, ok := TransactionFrom(ctx); ok {
		return WrapError("create", tx.Create(ref, data))
	}
	_, err := ref.Create(ctx, data)
	return WrapError("create", err)
}

// DeleteDoc removes a document.
func DeleteDoc(ctx context.Context, ref *firestore.DocumentRef) error {
	if tx, ok := TransactionFrom(ctx); ok {
		return WrapError("delete", tx.Delete(ref))
	}
	_, err := ref.Delete(ctx)
	return WrapError("delete", err)
}

// QueryDocs runs the query to completion and returns the raw snapshots.
func QueryDocs(ctx context.Context, query firestore.Query) ([]*firestore.DocumentSnapshot, error) {
	var iter *firestore.DocumentIterator
	if tx, ok := TransactionFrom(ctx); ok {
		iter = tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	var snaps []*firestore.DocumentSnapshot
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return snaps, nil
		}
		if err != nil {
			return nil, WrapError("query", err)
		}
		snaps = append(snaps, snap)
	}
}
