package rpc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hrygo/engram/store"
)

const (
	defaultLimit = 50
	minLimit     = 1
	maxLimit     = 100

	minPriority = 1
	maxPriority = 10
)

// searchParams is the wire shape of searchMemories. Limit is a pointer so
// an absent limit (default 50) can be told apart from an explicit zero
// (clamped to 1).
type searchParams struct {
	Query     string   `json:"query"`
	Tags      []string `json:"tags"`
	Category  string   `json:"category"`
	DateFrom  string   `json:"dateFrom"`
	DateTo    string   `json:"dateTo"`
	SortBy    string   `json:"sortBy"`
	SortOrder string   `json:"sortOrder"`
	Limit     *int     `json:"limit"`
	Offset    int      `json:"offset"`
}

type getMemoryParams struct {
	ID string `json:"id"`
}

// decodeParams unmarshals raw params into v. Absent params leave v at its
// zero value; malformed params are an invalid-params error.
func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &Error{Code: CodeInvalidParams, Message: "malformed params: " + err.Error()}
	}
	return nil
}

// toFind normalizes the wire params into a store find: defaults applied,
// limit and offset clamped, enums validated, date bounds parsed.
func (p *searchParams) toFind() (*store.FindMemoryChunk, error) {
	find := &store.FindMemoryChunk{
		Query:     p.Query,
		Tags:      p.Tags,
		Category:  p.Category,
		SortBy:    store.SortByDate,
		SortOrder: store.SortOrderDesc,
		Limit:     defaultLimit,
		Offset:    max(p.Offset, 0),
	}

	if p.SortBy != "" {
		switch sortBy := store.SortBy(p.SortBy); sortBy {
		case store.SortByRelevance, store.SortByDate, store.SortByAccess, store.SortByPriority:
			find.SortBy = sortBy
		default:
			return nil, invalidParams("sortBy", fmt.Sprintf("unknown sort key %q", p.SortBy))
		}
	}
	if p.SortOrder != "" {
		switch order := store.SortOrder(p.SortOrder); order {
		case store.SortOrderAsc, store.SortOrderDesc:
			find.SortOrder = order
		default:
			return nil, invalidParams("sortOrder", fmt.Sprintf("unknown sort order %q", p.SortOrder))
		}
	}
	if p.Limit != nil {
		find.Limit = clampInt(*p.Limit, minLimit, maxLimit)
	}

	if p.DateFrom != "" {
		t, err := parseDate(p.DateFrom)
		if err != nil {
			return nil, invalidParams("dateFrom", err.Error())
		}
		find.CreatedAfter = &t
	}
	if p.DateTo != "" {
		t, err := parseDate(p.DateTo)
		if err != nil {
			return nil, invalidParams("dateTo", err.Error())
		}
		find.CreatedBefore = &t
	}

	return find, nil
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, want RFC 3339 or YYYY-MM-DD", value)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampPriority clamps a supplied priority into range. Zero means the
// caller did not supply one; the detector applies the default.
func clampPriority(priority int) int {
	if priority == 0 {
		return 0
	}
	return clampInt(priority, minPriority, maxPriority)
}
