package api

import "github.com/rickgao/union-data/internal/model"

// Dialect names the pagination parameters of one backend.
type Dialect struct {
	CursorParam string
	SizeParam   string
	SortParam   string

	// CursorField is the response field holding the next cursor.
	CursorField string

	SortAsc  string
	SortDesc string

	// MaxSize caps the page size sent upstream; 0 means no cap.
	MaxSize int
}

var (
	// DialectContinuation is spoken by the EVM, Flow and Tezos indexers.
	DialectContinuation = Dialect{
		CursorParam: "continuation",
		SizeParam:   "size",
		SortParam:   "sort",
		CursorField: "continuation",
		SortAsc:     "EARLIEST_FIRST",
		SortDesc:    "LATEST_FIRST",
		MaxSize:     1000,
	}

	// DialectCursor is spoken by the Solana indexer.
	DialectCursor = Dialect{
		CursorParam: "cursor",
		SizeParam:   "limit",
		SortParam:   "sortDirection",
		CursorField: "cursor",
		SortAsc:     "ASC",
		SortDesc:    "DESC",
		MaxSize:     500,
	}
)

// DialectFor returns the default dialect for chain.
func DialectFor(chain model.Blockchain) Dialect {
	if chain == model.Solana {
		return DialectCursor
	}
	return DialectContinuation
}

func (d Dialect) sortValue(s model.SortOrder) string {
	if s == model.SortAsc {
		return d.SortAsc
	}
	return d.SortDesc
}

func (d Dialect) clampSize(size int) int {
	if d.MaxSize > 0 && size > d.MaxSize {
		return d.MaxSize
	}
	return size
}

// DialectByName resolves a configured dialect name. An empty name yields ok=false.
func DialectByName(name string) (Dialect, bool) {
	switch name {
	case "continuation":
		return DialectContinuation, true
	case "cursor":
		return DialectCursor, true
	default:
		return Dialect{}, false
	}
}
