// Package cli formats search, info, and status output for the kensaku command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const contentPreviewRunes = 200

// ParseOutputFormat maps a flag value onto an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteSearchResults writes a search response to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for i := range response.Results {
			r := &response.Results[i]
			fmt.Fprintf(w, "%.4f\t%s\t%s\t%s\n", r.Score, r.Collection, r.ID, TruncateWords(singleLine(r.Content), 12))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms", len(response.Results), response.TookMS)
	if response.Reranked != "" {
		fmt.Fprintf(w, " (reranking: %s)", response.Reranked)
	}
	fmt.Fprintln(w)
	if response.Note != "" {
		fmt.Fprintf(w, "Note: %s\n", response.Note)
	}
	fmt.Fprintln(w)
	for i := range response.Results {
		writeOneResult(w, i+1, &response.Results[i])
	}
}

func writeOneResult(w io.Writer, rank int, r *models.Result) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%s] Rank: %d | Score: %.4f (Fused: %.4f", r.Collection, rank, r.Score, r.OriginalScore)
	if r.RerankScore != nil {
		fmt.Fprintf(w, ", Rerank: %.4f", *r.RerankScore)
	}
	fmt.Fprintf(w, ") via %s\n", r.SearchProvider)
	fmt.Fprintf(w, "Doc: %s", r.DocID)
	if r.ChunkNumber != nil && r.TotalChunks != nil {
		fmt.Fprintf(w, " | Chunk %d of %d", *r.ChunkNumber+1, *r.TotalChunks)
	} else if r.ChunkID != nil {
		fmt.Fprintf(w, " | Chunk %s", *r.ChunkID)
	}
	fmt.Fprintln(w)
	if title := firstMetadata(r.Metadata, "subject", "title"); title != "" {
		fmt.Fprintf(w, "Title: %s\n", title)
	}
	if src := firstMetadata(r.Metadata, "source_url", "url"); src != "" {
		fmt.Fprintf(w, "URL: %s\n", src)
	}
	fmt.Fprintf(w, "\n%s\n", utils.Truncate(r.Content, contentPreviewRunes))
	fmt.Fprintln(w)
}

func firstMetadata(meta map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := meta[k]; ok {
			if s := models.ValueString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// WriteInfo writes the engine description returned by /api/info.
func WriteInfo(w io.Writer, info *models.InfoResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, info)
	}
	fmt.Fprintf(w, "%s %s\n%s\n\n", info.Name, info.Version, info.Description)
	fmt.Fprintf(w, "collections:     %s\n", strings.Join(info.Collections, ", "))
	fmt.Fprintf(w, "embedding model: %s\n", info.Models["embedding"])
	if rr := info.Models["reranking"]; rr != "" {
		fmt.Fprintf(w, "rerank model:    %s\n", rr)
	} else {
		fmt.Fprintln(w, "rerank model:    (disabled)")
	}
	if len(info.Search) > 0 {
		fmt.Fprintln(w, "\n# search defaults")
		for _, k := range sortedKeys(info.Search) {
			fmt.Fprintf(w, "%-16s %v\n", k+":", info.Search[k])
		}
	}
	return nil
}

// WriteStatus writes the index and storage status returned by /api/status.
func WriteStatus(w io.Writer, status *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	names := make([]string, 0, len(status.Collections))
	for c := range status.Collections {
		names = append(names, c)
	}
	sort.Strings(names)
	for _, c := range names {
		st := status.Collections[c]
		fmt.Fprintf(w, "%-10s records: %-8d keyword: %-8s vectors: %s\n",
			c, st.Records, readyCount(st.KeywordReady, int64(st.KeywordDocs)), readyCount(st.VectorReady, int64(st.Vectors)))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "vector_index_type:  %s\n", status.VectorIndexType)
	fmt.Fprintf(w, "reranker:           %s\n", status.Reranker)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # storage + indices on disk\n", *status.DiskUsageBytes)
	}
	return nil
}

func readyCount(ready bool, n int64) string {
	if !ready {
		return "down"
	}
	return fmt.Sprintf("%d", n)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
