package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/kensaku/internal/models"
)

// bleveDoc is the indexed form of a record. Title and author unify the
// per-collection field names so one query shape serves every collection.
type bleveDoc struct {
	DocID   string `json:"doc_id"`
	Content string `json:"content"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	URL     string `json:"url"`
	Domain  string `json:"domain"`
}

func toBleveDoc(rec *models.Record) bleveDoc {
	return bleveDoc{
		DocID:   rec.DocID,
		Content: rec.Content,
		Title:   firstNonEmpty(rec.MetadataString("title"), rec.MetadataString("subject")),
		Author:  firstNonEmpty(rec.MetadataString("author"), rec.MetadataString("from")),
		URL:     firstNonEmpty(rec.MetadataString("source_url"), rec.MetadataString("url")),
		Domain:  rec.MetadataString("domain"),
	}
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func newIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer lowercases and tokenizes without stemming, so fuzzy
	// expansion works on surface forms.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("author", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("doc_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("url", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("domain", keywordFieldMapping)
	im.AddDocumentMapping("record", docMapping)
	im.DefaultType = "record"
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = standard.Name
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates
// an in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := newIndexMapping()

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes a record under its ID.
func (b *BleveIndex) Index(ctx context.Context, rec *models.Record) error {
	return b.index.Index(rec.ID, toBleveDoc(rec))
}

// Search runs a match query (or fuzzy term expansion) and returns up to limit results.
// With TitleBoost > 1, title and content are queried separately and added, title weighted.
// No matches is an empty slice, not an error.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	titleBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 2
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}
	if limit <= 0 {
		return []*KeywordResult{}, nil
	}

	if titleBoost <= 1.0 {
		return b.searchSingle(ctx, buildQuery(query, fuzzyEnabled, fuzziness, ""), limit)
	}
	return b.searchWithTitleBoost(ctx, query, limit, titleBoost, fuzzyEnabled, fuzziness)
}

func (b *BleveIndex) searchSingle(ctx context.Context, q blevequery.Query, limit int) ([]*KeywordResult, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// searchWithTitleBoost merges score = titleScore*titleBoost + contentScore.
func (b *BleveIndex) searchWithTitleBoost(ctx context.Context, query string, limit int, titleBoost float64, fuzzyEnabled bool, fuzziness int) ([]*KeywordResult, error) {
	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}
	titleHits, err := b.searchSingle(ctx, buildQuery(query, fuzzyEnabled, fuzziness, "title"), reqSize)
	if err != nil {
		return nil, err
	}
	contentHits, err := b.searchSingle(ctx, buildQuery(query, fuzzyEnabled, fuzziness, "content"), reqSize)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64)
	for _, h := range titleHits {
		scores[h.ID] += h.Score * titleBoost
	}
	for _, h := range contentHits {
		scores[h.ID] += h.Score
	}

	out := make([]*KeywordResult, 0, len(scores))
	for id, score := range scores {
		out = append(out, &KeywordResult{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms, filtering out empty strings.
func tokenizeQuery(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, `.,;:!?"'()[]{}`)
		if w != "" {
			terms = append(terms, w)
		}
	}
	return terms
}

// buildQuery returns a MatchQuery, or when fuzzy a disjunction of one FuzzyQuery per
// term. If field is empty the query runs against the default (composite) field.
func buildQuery(queryStr string, fuzzy bool, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if !fuzzy || len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}

	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes a record from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of records in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
