// Package cursor encodes the composite continuation token handed to API clients.
//
// A merged cursor is a comma separated list of "shardId:value" segments. Each value
// is the query-escaped shard cursor, optionally followed by "@N" when N entities of
// the page starting at that cursor were already emitted, or the reserved token
// "!completed" once the shard is exhausted. Neither '!' nor '@' survives query
// escaping, so reserved syntax never collides with a shard cursor.
package cursor

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	segmentSep = ","
	idSep      = ":"
	skipSep    = "@"

	// CompletedToken marks an exhausted shard.
	CompletedToken = "!completed"
)

// ShardState is the pagination state of one shard.
type ShardState struct {
	Cursor    string
	Skip      int
	Completed bool
}

// Merged maps shard id to shard state. A missing id means "start from the beginning".
type Merged map[string]ShardState

// MalformedCursorError reports a cursor that cannot be decoded.
type MalformedCursorError struct {
	Cursor string
	Reason string
}

func (e *MalformedCursorError) Error() string {
	return fmt.Sprintf("malformed cursor %q: %s", e.Cursor, e.Reason)
}

// Decode parses a merged cursor. An empty string yields an empty map.
func Decode(s string) (Merged, error) {
	m := make(Merged)
	if s == "" {
		return m, nil
	}

	for _, seg := range strings.Split(s, segmentSep) {
		id, value, ok := strings.Cut(seg, idSep)
		if !ok {
			return nil, &MalformedCursorError{Cursor: s, Reason: fmt.Sprintf("segment %q has no shard id", seg)}
		}
		if id == "" {
			return nil, &MalformedCursorError{Cursor: s, Reason: "empty shard id"}
		}
		if _, dup := m[id]; dup {
			return nil, &MalformedCursorError{Cursor: s, Reason: fmt.Sprintf("duplicate shard %q", id)}
		}

		state, err := decodeValue(value)
		if err != nil {
			return nil, &MalformedCursorError{Cursor: s, Reason: fmt.Sprintf("shard %q: %v", id, err)}
		}
		m[id] = state
	}
	return m, nil
}

func decodeValue(value string) (ShardState, error) {
	if value == CompletedToken {
		return ShardState{Completed: true}, nil
	}
	if strings.HasPrefix(value, "!") {
		return ShardState{}, fmt.Errorf("unknown token %q", value)
	}

	raw, skipPart, hasSkip := strings.Cut(value, skipSep)
	var state ShardState
	if hasSkip {
		n, err := strconv.Atoi(skipPart)
		if err != nil || n <= 0 {
			return ShardState{}, fmt.Errorf("invalid skip %q", skipPart)
		}
		state.Skip = n
	}

	c, err := url.QueryUnescape(raw)
	if err != nil {
		return ShardState{}, fmt.Errorf("unescape: %w", err)
	}
	state.Cursor = c
	return state, nil
}

// Encode renders m in its wire form with segments sorted by shard id.
// A completed state encodes as the completion token alone; its cursor and skip are dropped.
func Encode(m Merged) string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteString(segmentSep)
		}
		b.WriteString(id)
		b.WriteString(idSep)
		st := m[id]
		if st.Completed {
			b.WriteString(CompletedToken)
			continue
		}
		b.WriteString(url.QueryEscape(st.Cursor))
		if st.Skip > 0 {
			b.WriteString(skipSep)
			b.WriteString(strconv.Itoa(st.Skip))
		}
	}
	return b.String()
}

// AllCompleted reports whether every listed shard is completed.
func (m Merged) AllCompleted(shards []string) bool {
	for _, id := range shards {
		if !m[id].Completed {
			return false
		}
	}
	return true
}

// Clone returns a copy of m.
func (m Merged) Clone() Merged {
	c := make(Merged, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
