package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const tokenVersion = "v1"

// Cursor positions a newest-first listing after the item with this creation time and id.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool {
	return c.ID == "" && c.CreatedAt.IsZero()
}

// After reports whether an item sorts after the cursor in newest-first, id-descending order.
func (c Cursor) After(createdAt time.Time, id string) bool {
	return createdAt.Before(c.CreatedAt) || (createdAt.Equal(c.CreatedAt) && id < c.ID)
}

type tokenPayload struct {
	V  string `json:"v"`
	T  string `json:"t"`
	ID string `json:"id"`
}

// EncodeToken renders cursor as an opaque URL-safe token. The zero cursor yields "".
func EncodeToken(cursor Cursor) string {
	if cursor.IsZero() {
		return ""
	}
	data, _ := json.Marshal(tokenPayload{
		V:  tokenVersion,
		T:  cursor.CreatedAt.UTC().Format(time.RFC3339Nano),
		ID: cursor.ID,
	})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeToken reverses EncodeToken. An empty token decodes to the zero cursor.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var payload tokenPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if payload.V != tokenVersion || payload.ID == "" {
		return Cursor{}, fmt.Errorf("%w: unsupported token", ErrInvalidPageToken)
	}
	at, err := time.Parse(time.RFC3339Nano, payload.T)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: bad timestamp", ErrInvalidPageToken)
	}
	return Cursor{CreatedAt: at, ID: payload.ID}, nil
}
