package store

import "time"

// MemoryChunk is a single stored unit of memorized text. Chunks are created
// by the memorize pipeline and addressed by an opaque storage-assigned ID.
type MemoryChunk struct {
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	Metadata       MemoryMetadata `json:"metadata"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	AccessCount    int            `json:"accessCount"`
	LastAccessedAt time.Time      `json:"lastAccessedAt"`
}

// MemoryMetadata carries the descriptive fields attached to a chunk.
// Tags are stored lowercase and deduplicated.
type MemoryMetadata struct {
	Tags       []string `json:"tags"`
	Context    string   `json:"context,omitempty"`
	Source     string   `json:"source,omitempty"`
	Priority   int      `json:"priority"`
	Category   string   `json:"category,omitempty"`
	RelatedIDs []string `json:"relatedIds"`
}

// SortBy enumerates the supported search orderings.
type SortBy string

const (
	SortByRelevance SortBy = "relevance"
	SortByDate      SortBy = "date"
	SortByAccess    SortBy = "access"
	SortByPriority  SortBy = "priority"
)

// SortOrder is the direction of a search ordering.
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// FindMemoryChunk specifies the conditions for searching memory chunks.
// All supplied filters are AND-combined. Zero values mean "no filter";
// nil time bounds leave that side of the date range open.
type FindMemoryChunk struct {
	// Query matches against text, tags and context. How it matches
	// (substring, full-text, vector) is up to the backend.
	Query string
	// Tags keeps chunks carrying at least one of the given tags.
	Tags []string
	// Category is an exact match.
	Category string
	// CreatedAfter and CreatedBefore bound CreatedAt inclusively.
	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	SortBy    SortBy
	SortOrder SortOrder
	Limit     int
	Offset    int
}

// UpdateMemoryChunk specifies a partial patch of a memory chunk.
// Nil fields are left untouched.
type UpdateMemoryChunk struct {
	ID         string
	Text       *string
	Tags       *[]string
	Context    *string
	Source     *string
	Priority   *int
	Category   *string
	RelatedIDs *[]string
}

// DeleteMemoryChunk specifies the chunk to delete.
type DeleteMemoryChunk struct {
	ID string
}

// SearchResult is a page of matching chunks plus the pre-pagination total.
type SearchResult struct {
	Chunks  []*MemoryChunk `json:"memories"`
	Total   int            `json:"total"`
	HasMore bool           `json:"hasMore"`
}

// Stats summarizes the stored corpus.
type Stats struct {
	TotalMemories   int        `json:"totalMemories"`
	TotalTags       int        `json:"totalTags"`
	TotalCategories int        `json:"totalCategories"`
	OldestMemory    *time.Time `json:"oldestMemory"`
	NewestMemory    *time.Time `json:"newestMemory"`
}
