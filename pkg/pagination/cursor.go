// Package pagination encodes the opaque row cursors returned by preview_rows.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

// Cursor is the pre-encoding form of a page token. Short field names keep
// the token small. It is serialized to minified JSON and encoded with
// URL-safe base64.
//
// Fields:
//   - v:   cursor schema version
//   - p:   canonical dataset path
//   - s:   sheet name
//   - off: row offset into the (filtered) frame
//   - ps:  page size in rows
//   - mt:  file modification time (unix nanoseconds) when the cursor was issued
//   - c:   optional category column the rows were filtered on
//   - fv:  optional category values kept by the filter
//   - fh:  filter hash over c and fv; see FilterHash
//   - iat: issued-at timestamp (unix seconds)
type Cursor struct {
	V   int      `json:"v"`
	P   string   `json:"p"`
	S   string   `json:"s"`
	Off int      `json:"off"`
	Ps  int      `json:"ps"`
	Mt  int64    `json:"mt"`
	C   string   `json:"c,omitempty"`
	Fv  []string `json:"fv,omitempty"`
	Fh  string   `json:"fh,omitempty"`
	Iat int64    `json:"iat"`
}

// EncodeCursor serializes and encodes the cursor as URL-safe base64 (without padding).
func EncodeCursor(c Cursor) (string, error) {
	if err := validate(&c); err != nil {
		return "", err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor decodes a token produced by EncodeCursor. Every failure wraps
// mcperr.ErrCursorInvalid.
func DecodeCursor(token string) (*Cursor, error) {
	t := strings.TrimSpace(token)
	if t == "" {
		return nil, fmt.Errorf("cursor: empty token: %w", mcperr.ErrCursorInvalid)
	}
	data, err := base64.RawURLEncoding.DecodeString(t)
	if err != nil {
		return nil, fmt.Errorf("cursor: invalid base64: %w", mcperr.ErrCursorInvalid)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("cursor: invalid json: %w", mcperr.ErrCursorInvalid)
	}
	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Stale reports whether the dataset changed since the cursor was issued.
func (c *Cursor) Stale(modTime time.Time) bool {
	return c.Mt != modTime.UnixNano()
}

func validate(c *Cursor) error {
	if c.V <= 0 {
		c.V = 1
	}
	if c.Iat == 0 {
		c.Iat = time.Now().Unix()
	}
	if strings.TrimSpace(c.P) == "" {
		return fmt.Errorf("cursor: p (path) required: %w", mcperr.ErrCursorInvalid)
	}
	if strings.TrimSpace(c.S) == "" {
		return fmt.Errorf("cursor: s (sheet) required: %w", mcperr.ErrCursorInvalid)
	}
	if c.Off < 0 {
		return fmt.Errorf("cursor: off must be >= 0: %w", mcperr.ErrCursorInvalid)
	}
	if c.Ps <= 0 {
		return fmt.Errorf("cursor: ps must be > 0: %w", mcperr.ErrCursorInvalid)
	}
	if c.Fh != FilterHash(c.C, c.Fv) {
		return fmt.Errorf("cursor: filter hash mismatch: %w", mcperr.ErrCursorInvalid)
	}
	return nil
}

// NextOffset computes the next offset after returning n rows.
func NextOffset(curr, n int) int {
	if curr < 0 {
		curr = 0
	}
	if n <= 0 {
		return curr
	}
	return curr + n
}

// FilterHash fingerprints a category filter so a cursor cannot be replayed
// against a different filter. An empty filter hashes to "".
func FilterHash(column string, values []string) string {
	if column == "" && len(values) == 0 {
		return ""
	}
	key := column + "\x00" + strings.Join(values, "\x1f")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()[:13]
}
