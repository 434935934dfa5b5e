package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"unicode"

	domain "github.com/voltmart/storefront/internal/domain"
)

const (
	DefaultPageSize    = 50
	DefaultMaxPageSize = 100

	maxFilterValueLength = 128
	filterSeparator      = "=="
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidFilter    = errors.New("pagination: invalid filter")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Options describe what a listing endpoint accepts.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	// FilterFields are the fields allowed in ?filter=field==value. Empty disables filtering.
	FilterFields []string
}

func (o Options) bounds() (def, limit int) {
	limit = o.MaxPageSize
	if limit <= 0 {
		limit = DefaultMaxPageSize
	}
	def = o.DefaultPageSize
	if def <= 0 {
		def = DefaultPageSize
	}
	return min(def, limit), limit
}

// Params is a validated listing request.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
	Filters   map[string]string
}

// Pagination converts the params into the repository paging input.
func (p Params) Pagination() domain.Pagination {
	return domain.Pagination{PageSize: p.PageSize, PageToken: p.PageToken}
}

func (p Params) Filter(field string) (string, bool) {
	value, ok := p.Filters[field]
	return value, ok
}

// FromRequest parses the query string of r.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse validates pageSize, pageToken and repeated filter values. Oversized page sizes are clamped
// rather than rejected.
func Parse(values url.Values, opts Options) (Params, error) {
	var (
		params Params
		err    error
	)
	if params.PageSize, err = pageSize(values.Get("pageSize"), opts); err != nil {
		return Params{}, err
	}
	if token := strings.TrimSpace(values.Get("pageToken")); token != "" {
		if params.Cursor, err = DecodeToken(token); err != nil {
			return Params{}, err
		}
		params.PageToken = token
	}
	if params.Filters, err = filters(values["filter"], opts.FilterFields); err != nil {
		return Params{}, err
	}
	return params, nil
}

func pageSize(raw string, opts Options) (int, error) {
	def, limit := opts.bounds()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidPageSize, raw)
	case n < 1:
		return 0, fmt.Errorf("%w: must be at least 1", ErrInvalidPageSize)
	}
	return min(n, limit), nil
}

func filters(raw []string, allowed []string) (map[string]string, error) {
	var out map[string]string
	for _, expr := range raw {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		if len(allowed) == 0 {
			return nil, fmt.Errorf("%w: filtering not supported", ErrInvalidFilter)
		}
		field, value, ok := strings.Cut(expr, filterSeparator)
		field, value = strings.TrimSpace(field), cleanFilterValue(value)
		if !ok || field == "" || value == "" {
			return nil, fmt.Errorf("%w: expected field==value, got %q", ErrInvalidFilter, expr)
		}
		if !slices.Contains(allowed, field) {
			return nil, fmt.Errorf("%w: field %q is not allowed", ErrInvalidFilter, field)
		}
		if out == nil {
			out = make(map[string]string, len(raw))
		}
		if _, dup := out[field]; dup {
			return nil, fmt.Errorf("%w: field %q given twice", ErrInvalidFilter, field)
		}
		out[field] = value
	}
	return out, nil
}

// cleanFilterValue strips surrounding quotes and control characters and caps the length.
func cleanFilterValue(value string) string {
	value = strings.Trim(strings.TrimSpace(value), `"'`)
	value = strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value))
	if len(value) > maxFilterValueLength {
		value = value[:maxFilterValueLength]
	}
	return value
}
