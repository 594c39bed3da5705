// Package search provides full-text search over the book catalog using Bleve.
// The index only answers with book ids; callers load the books themselves so
// results always reflect committed state.
package search

import (
	"strings"

	"github.com/libris/libris-server/internal/domain"
	"github.com/libris/libris-server/internal/normalize"
)

// BookDocument is what the index stores for a book.
//
// Author and genre names are denormalized into the document so one query can
// match a title, its authors and its genres.
type BookDocument struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Authors     string   `json:"authors,omitempty"`
	Genres      string   `json:"genres,omitempty"`
	GenreSlugs  []string `json:"genre_slugs,omitempty"`
	PublishYear int      `json:"publish_year,omitempty"`

	CreatedAt int64 `json:"created_at"` // Unix millis
}

// ToMap converts the document to a map whose keys match the index mapping.
func (d *BookDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":         d.ID,
		"name":       d.Name,
		"created_at": d.CreatedAt,
	}
	if d.Description != "" {
		m["description"] = d.Description
	}
	if d.Authors != "" {
		m["authors"] = d.Authors
	}
	if d.Genres != "" {
		m["genres"] = d.Genres
	}
	if len(d.GenreSlugs) > 0 {
		m["genre_slugs"] = d.GenreSlugs
	}
	if d.PublishYear > 0 {
		m["publish_year"] = d.PublishYear
	}
	return m
}

// BookToDocument converts a book with its authors and genres loaded.
func BookToDocument(b *domain.Book) *BookDocument {
	authors := make([]string, len(b.Authors))
	for i, a := range b.Authors {
		authors[i] = a.Username
	}
	genres := make([]string, len(b.Genres))
	slugs := make([]string, len(b.Genres))
	for i, g := range b.Genres {
		genres[i] = g.Name
		slugs[i] = g.Slug
	}

	doc := &BookDocument{
		ID:          b.ID,
		Name:        b.Name,
		Description: normalize.PlainText(b.Description),
		Authors:     strings.Join(authors, " | "),
		Genres:      strings.Join(genres, " | "),
		GenreSlugs:  slugs,
		CreatedAt:   b.CreatedAt.UnixMilli(),
	}
	if b.PublishedAt != nil {
		doc.PublishYear = b.PublishedAt.Year()
	}
	return doc
}
