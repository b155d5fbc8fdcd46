package repository

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/chainscope/chainscope/internal/models"
)

// Cursor carries the sort-key values of the last row of a page. It is opaque
// to clients; the encoded form is base64url of the JSON tuple.
type Cursor struct {
	Fund      int64  `json:"f"`
	Deployed  int64  `json:"d"`
	FirstSeen int64  `json:"s"`
	Address   string `json:"a"`
}

// CursorFor derives the next-page cursor from the last row of a page. NULL
// fund and deployed map to -1, matching the sentinel the pagination
// predicates compare against.
func CursorFor(addr *models.Address, sort SortKey) *Cursor {
	c := &Cursor{Fund: -1, Deployed: -1, Address: addr.Address}
	if addr.Fund != nil {
		c.Fund = *addr.Fund
	}
	if addr.Deployed != nil {
		c.Deployed = *addr.Deployed
	}
	if sort == SortFirstSeen {
		c.FirstSeen = addr.FirstSeen
	}
	return c
}

// Encode serializes the cursor to its opaque wire form.
func (c *Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses an opaque cursor string.
func DecodeCursor(s string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	return &c, nil
}
