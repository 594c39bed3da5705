package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// bookFields lists the text fields of a BookDocument and how each is analyzed.
// Author names use the simple analyzer so "Herbert" does not stem; genre slugs
// and ids are keywords for exact filters.
var bookFields = []struct {
	name     string
	analyzer string
	store    bool
	vectors  bool
}{
	{name: "name", analyzer: en.AnalyzerName, store: true, vectors: true},
	{name: "description", analyzer: en.AnalyzerName}, // long, never returned
	{name: "authors", analyzer: simple.Name, store: true},
	{name: "genres", analyzer: en.AnalyzerName, store: true},
	{name: "genre_slugs", analyzer: keyword.Name, store: true},
	{name: "id", analyzer: keyword.Name},
}

// bookNumericFields are stored numbers usable in range queries.
var bookNumericFields = []string{"publish_year", "created_at"}

// buildIndexMapping creates the Bleve mapping for book documents.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()
	for _, f := range bookFields {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = f.analyzer
		fm.Store = f.store
		fm.IncludeTermVectors = f.vectors
		docMapping.AddFieldMappingsAt(f.name, fm)
	}
	for _, name := range bookNumericFields {
		fm := bleve.NewNumericFieldMapping()
		fm.Store = true
		docMapping.AddFieldMappingsAt(name, fm)
	}

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}
