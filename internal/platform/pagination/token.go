package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const tokenVersion = 1

// Cursor is the resume point carried by a page token. A cursor only makes sense
// for the sort and listing scope that produced it.
type Cursor struct {
	Sort  string
	Scope string
	After []any
}

type tokenPayload struct {
	Version int    `json:"v"`
	Sort    string `json:"s"`
	Scope   string `json:"c,omitempty"`
	After   []any  `json:"a"`
}

func (c Cursor) Empty() bool {
	return len(c.After) == 0
}

// Check rejects a cursor issued for another sort or, when scope is non-empty, another listing.
func (c Cursor) Check(sort, scope string) error {
	if c.Sort != sort {
		return fmt.Errorf("%w: token was issued for sort %q", ErrInvalidPageToken, c.Sort)
	}
	if scope != "" && c.Scope != scope {
		return fmt.Errorf("%w: token was issued for another listing", ErrInvalidPageToken)
	}
	return nil
}

// EncodeToken renders cursor as an opaque URL-safe token. An empty cursor has no token.
func EncodeToken(cursor Cursor) (string, error) {
	if cursor.Empty() {
		return "", nil
	}
	data, err := json.Marshal(tokenPayload{
		Version: tokenVersion,
		Sort:    cursor.Sort,
		Scope:   cursor.Scope,
		After:   cursor.After,
	})
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if payload.Version != tokenVersion {
		return Cursor{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidPageToken, payload.Version)
	}
	if len(payload.After) == 0 {
		return Cursor{}, fmt.Errorf("%w: missing position", ErrInvalidPageToken)
	}
	return Cursor{Sort: payload.Sort, Scope: payload.Scope, After: payload.After}, nil
}
