package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Params configures a search.
type Params struct {
	Query string

	// Filters
	GenreSlugs []string // OR across slugs
	MinYear    int
	MaxYear    int

	Limit  int
	Offset int

	// SortBy is "relevance" (default), "name" or "recent".
	SortBy string
}

// Result is one page of matching book ids.
type Result struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"took_ms"`
	Hits   []Hit  `json:"hits"`
}

// Hit is a single matching book.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Name  string  `json:"name"`
}

// Search executes a query.
func (s *BookIndex) Search(ctx context.Context, params Params) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	addSorting(req, params)
	req.Fields = []string{"name"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	out := &Result{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if n, ok := h.Fields["name"].(string); ok {
			hit.Name = n
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

// SearchBooks returns the ids of the books matching query by relevance, and
// the total number of matches.
func (s *BookIndex) SearchBooks(ctx context.Context, q string, offset, limit int) ([]string, int, error) {
	res, err := s.Search(ctx, Params{Query: q, Offset: offset, Limit: limit})
	if err != nil {
		return nil, 0, err
	}
	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.ID
	}
	return ids, int(res.Total), nil
}

// buildSearchQuery constructs the Bleve query from params.
//
// Titles weigh most, then authors and genres, then the description. A fuzzy
// title match tolerates one typo and a prefix match supports search-as-you-type.
func buildSearchQuery(params Params) query.Query {
	var queries []query.Query

	if text := strings.TrimSpace(params.Query); text != "" {
		lower := strings.ToLower(text)

		nameMatch := bleve.NewMatchQuery(text)
		nameMatch.SetField("name")
		nameMatch.SetBoost(3.0)

		authorMatch := bleve.NewMatchQuery(text)
		authorMatch.SetField("authors")
		authorMatch.SetBoost(2.0)

		genreMatch := bleve.NewMatchQuery(text)
		genreMatch.SetField("genres")
		genreMatch.SetBoost(1.5)

		descMatch := bleve.NewMatchQuery(text)
		descMatch.SetField("description")
		descMatch.SetBoost(0.5)

		fuzzy := bleve.NewFuzzyQuery(lower)
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("name")
		fuzzy.SetBoost(0.8)

		textQueries := []query.Query{nameMatch, authorMatch, genreMatch, descMatch, fuzzy}

		if len(lower) >= 2 && !strings.ContainsRune(lower, ' ') {
			prefix := bleve.NewPrefixQuery(lower)
			prefix.SetField("name")
			prefix.SetBoost(0.5)
			textQueries = append(textQueries, prefix)
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	if len(params.GenreSlugs) > 0 {
		genreQueries := make([]query.Query, len(params.GenreSlugs))
		for i, slug := range params.GenreSlugs {
			tq := bleve.NewTermQuery(slug)
			tq.SetField("genre_slugs")
			genreQueries[i] = tq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(genreQueries...))
	}

	if params.MinYear > 0 || params.MaxYear > 0 {
		lo := float64(params.MinYear)
		hi := float64(params.MaxYear)
		if params.MaxYear == 0 {
			hi = 10000
		}
		inclusive := true
		rangeQuery := bleve.NewNumericRangeInclusiveQuery(&lo, &hi, &inclusive, &inclusive)
		rangeQuery.SetField("publish_year")
		queries = append(queries, rangeQuery)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}

func addSorting(req *bleve.SearchRequest, params Params) {
	switch params.SortBy {
	case "name":
		req.SortBy([]string{"name", "created_at"})
	case "recent":
		req.SortBy([]string{"-created_at"})
	default:
		// Ties keep catalog order.
		req.SortBy([]string{"-_score", "created_at", "_id"})
	}
}
