package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document is a decoded Firestore document with its metadata timestamps.
type Document[D any] struct {
	ID         string
	Data       D
	UpdateTime time.Time
}

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection gives typed, transaction-aware access to one Firestore collection. When the context
// carries a transaction, reads use it and writes are queued until the transaction commits.
type Collection[D any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a Collection to the provider.
func NewCollection[D any](provider *Provider, name string) *Collection[D] {
	return &Collection[D]{provider: provider, name: strings.TrimSpace(name)}
}

// Name returns the collection name.
func (c *Collection[D]) Name() string { return c.name }

// Provider returns the provider the collection is bound to.
func (c *Collection[D]) Provider() *Provider { return c.provider }

// Ref returns the collection reference.
func (c *Collection[D]) Ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, WrapError(c.op("collection"), errors.New("firestore: provider is nil"))
	}
	if c.name == "" {
		return nil, WrapError(c.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

// Doc returns the document reference for id.
func (c *Collection[D]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// Get loads and decodes the document.
func (c *Collection[D]) Get(ctx context.Context, id string) (Document[D], error) {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return Document[D]{}, err
	}

	var snap *firestore.DocumentSnapshot
	if tx, ok := TransactionFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return Document[D]{}, WrapError(c.op("get"), err)
	}
	return c.decode(snap)
}

// Query runs a collection query and decodes every result.
func (c *Collection[D]) Query(ctx context.Context, build QueryBuilder) ([]Document[D], error) {
	coll, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}

	var iter *firestore.DocumentIterator
	if tx, ok := TransactionFromContext(ctx); ok {
		iter = tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	var docs []Document[D]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		doc, err := c.decode(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Create writes a new document and fails with a conflict when it already exists.
func (c *Collection[D]) Create(ctx context.Context, id string, data D) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, ok := TransactionFromContext(ctx); ok {
		return QueueWrite(ctx, func(tx *firestore.Transaction) error { return tx.Create(ref, data) })
	}
	_, err = ref.Create(ctx, data)
	return WrapError(c.op("create"), err)
}

// Set overwrites the document.
func (c *Collection[D]) Set(ctx context.Context, id string, data D) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, ok := TransactionFromContext(ctx); ok {
		return QueueWrite(ctx, func(tx *firestore.Transaction) error { return tx.Set(ref, data) })
	}
	_, err = ref.Set(ctx, data)
	return WrapError(c.op("set"), err)
}

// Update applies field updates to an existing document.
func (c *Collection[D]) Update(ctx context.Context, id string, updates []firestore.Update) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if _, ok := TransactionFromContext(ctx); ok {
		return QueueWrite(ctx, func(tx *firestore.Transaction) error { return tx.Update(ref, updates) })
	}
	_, err = ref.Update(ctx, updates)
	return WrapError(c.op("update"), err)
}

// InTx runs fn in the transaction carried by ctx, or in a new one.
func (c *Collection[D]) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if c == nil || c.provider == nil {
		return WrapError(c.op("transaction"), errors.New("firestore: provider is nil"))
	}
	return c.provider.RunInTx(ctx, fn)
}

func (c *Collection[D]) decode(snap *firestore.DocumentSnapshot) (Document[D], error) {
	var data D
	if err := snap.DataTo(&data); err != nil {
		return Document[D]{}, fmt.Errorf("firestore: decode %s/%s: %w", c.name, snap.Ref.ID, err)
	}
	return Document[D]{ID: snap.Ref.ID, Data: data, UpdateTime: snap.UpdateTime}, nil
}

func (c *Collection[D]) op(action string) string {
	name := "firestore"
	if c != nil && c.name != "" {
		name = c.name
	}
	return name + "." + strings.ToLower(action)
}
