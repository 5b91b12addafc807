// Package cursor encodes and decodes Relay-style connection cursors.
// Cursors are opaque base64 strings wrapping the zero-based offset of an
// edge in its connection.
package cursor

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const prefix = "arrayconnection:"

// Encode builds the cursor for the edge at offset.
func Encode(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(prefix + strconv.Itoa(offset)))
}

// Decode returns the offset carried by raw.
func Decode(raw string) (int, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor: %w", err)
	}
	rest, ok := strings.CutPrefix(string(data), prefix)
	if !ok {
		return 0, fmt.Errorf("invalid cursor format: expected offset cursor")
	}
	offset, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor offset %q", rest)
	}
	if offset < 0 {
		return 0, fmt.Errorf("invalid cursor: negative offset %d", offset)
	}
	return offset, nil
}

// Start returns the offset of the first edge after the cursor. An empty
// cursor starts at zero.
func Start(after string) (int, error) {
	if after == "" {
		return 0, nil
	}
	offset, err := Decode(after)
	if err != nil {
		return 0, err
	}
	return offset + 1, nil
}

// PageInfo is the Relay page info of one connection slice.
type PageInfo struct {
	StartCursor     string
	EndCursor       string
	HasNextPage     bool
	HasPreviousPage bool
}

// Page computes page info for count edges starting at offset within a
// connection of total edges.
func Page(offset, count, total int) PageInfo {
	info := PageInfo{
		HasPreviousPage: offset > 0,
		HasNextPage:     offset+count < total,
	}
	if count > 0 {
		info.StartCursor = Encode(offset)
		info.EndCursor = Encode(offset + count - 1)
	}
	return info
}
