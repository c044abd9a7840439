package models

import "time"

// CacheEntry stores a cached lookup result.
type CacheEntry struct {
	Scope     string        `json:"scope"`
	Key       string        `json:"key"`
	Value     []byte        `json:"value"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Backend string `json:"backend"`
	Entries int64  `json:"entries"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
}

// WebResult is the outcome of one web search sub-query. Failed sub-queries
// carry an inline "Error: ..." response and Failed set.
type WebResult struct {
	Query    string `json:"query"`
	Response string `json:"response"`
	Failed   bool   `json:"failed,omitempty"`
}
