package models

// Source identifies which backend produced a candidate.
type Source string

const (
	SourceVector  Source = "vector"
	SourceKeyword Source = "keyword"
	// SourceMetadata marks candidates produced by the metadata matcher.
	SourceMetadata Source = "metadata"
)

// Candidate is one raw hit from a backend adapter.
type Candidate struct {
	Record
	Source   Source  `json:"source"`
	RawScore float64 `json:"raw_score"`
}

// FusedResult is a candidate after normalization, weighting and merging.
type FusedResult struct {
	Record
	FusedScore     float64
	OriginalScore  float64
	RerankScore    *float64
	SearchProvider string
	Sources        []Source
}

// Result is the canonical response record.
type Result struct {
	ID             string                 `json:"id"`
	Score          float64                `json:"score"`
	OriginalScore  float64                `json:"original_score"`
	RerankScore    *float64               `json:"rerank_score,omitempty"`
	Metadata       map[string]interface{} `json:"metadata"`
	Content        string                 `json:"content"`
	SearchProvider string                 `json:"search_provider"`
	Collection     string                 `json:"collection"`
	DocID          string                 `json:"doc_id"`
	ChunkID        *string                `json:"chunk_id"`
	ChunkNumber    *int                   `json:"chunk_number"`
	TotalChunks    *int                   `json:"total_chunks"`
}

// SearchResponse is the response for query, rag and metadata search requests.
type SearchResponse struct {
	Query    string   `json:"query"`
	Results  []Result `json:"results"`
	Note     string   `json:"note,omitempty"`
	Reranked string   `json:"reranked,omitempty"`
	TookMS   int64    `json:"took_ms"`
}

// InfoResponse describes the running engine for diagnostics.
type InfoResponse struct {
	Name        string                 `json:"name"`
	Version     string                 `json:"version"`
	Description string                 `json:"description"`
	Models      map[string]string      `json:"models"`
	Collections []string               `json:"collections"`
	Weights     interface{}            `json:"weights"`
	Search      map[string]interface{} `json:"search"`
}

// CollectionStatus reports the record and index counts of one collection.
type CollectionStatus struct {
	Records      int64  `json:"records"`
	KeywordDocs  uint64 `json:"keyword_docs"`
	Vectors      int    `json:"vectors"`
	KeywordReady bool   `json:"keyword_ready"`
	VectorReady  bool   `json:"vector_ready"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Collections     map[string]CollectionStatus `json:"collections"`
	VectorIndexType string                      `json:"vector_index_type"`
	Reranker        string                      `json:"reranker"`
	DiskUsageBytes  *int64                      `json:"disk_usage_bytes,omitempty"`
	DiskUsage       interface{}                 `json:"disk_usage,omitempty"`
}
