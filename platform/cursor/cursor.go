// Package cursor provides opaque pagination cursors.
// This is part of the platform layer and contains no business logic.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// Page is the payload carried by a pagination cursor: the sort timestamp and
// the id of the last item on the previous page.
type Page struct {
	At time.Time `json:"at"`
	ID string    `json:"id"`
}

// Encode serializes a page marker into a URL-safe opaque string.
func Encode(p Page) string {
	raw, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses an opaque cursor string. Returns false for empty or malformed
// cursors; callers treat that as "first page".
func Decode(s string) (Page, bool) {
	if s == "" {
		return Page{}, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Page{}, false
	}
	var p Page
	if err := json.Unmarshal(raw, &p); err != nil {
		return Page{}, false
	}
	if p.At.IsZero() && p.ID == "" {
		return Page{}, false
	}
	return p, true
}
