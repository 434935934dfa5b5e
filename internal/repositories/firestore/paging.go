package firestore

import (
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/platform/pagination"
)

const createdAtField = "createdAt"

// pageSpec is a decoded newest-first page request.
type pageSpec struct {
	size  int
	after []any
}

func decodePage(pager domain.Pagination) (pageSpec, error) {
	size := pager.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}
	if size > pagination.DefaultMaxPageSize {
		size = pagination.DefaultMaxPageSize
	}
	spec := pageSpec{size: size}

	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return pageSpec{}, err
	}
	if !cursor.IsZero() {
		spec.after = []any{cursor.CreatedAt, cursor.ID}
	}
	return spec, nil
}

// apply orders the query newest first and positions it after the cursor. One extra item is
// fetched so trimPage can detect the next page.
func (p pageSpec) apply(query firestore.Query) firestore.Query {
	query = query.OrderBy(createdAtField, firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	if len(p.after) > 0 {
		query = query.StartAfter(p.after...)
	}
	return query.Limit(p.size + 1)
}

// trimPage cuts the over-fetched item and encodes the cursor of the last returned item.
func trimPage[T any](items []T, size int, key func(T) (time.Time, string)) (domain.CursorPage[T], error) {
	if len(items) <= size {
		return domain.CursorPage[T]{Items: items}, nil
	}
	items = items[:size]
	at, id := key(items[len(items)-1])
	return domain.CursorPage[T]{Items: items, NextPageToken: pagination.EncodeToken(pagination.Cursor{CreatedAt: at, ID: id})}, nil
}

func trimmedOrEmpty(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	return values
}
