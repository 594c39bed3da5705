package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	domainerrors "github.com/libris/libris-server/internal/errors"
	"github.com/libris/libris-server/internal/genre"
	"github.com/libris/libris-server/internal/service"
)

// genreBatchSize is the most names CreateGenres accepts in one call.
const genreBatchSize = 100

// Fixture is a catalog to load with the seed command.
type Fixture struct {
	Genres  []string        `yaml:"genres"`
	Authors []FixtureAuthor `yaml:"authors"`
	Readers []FixtureReader `yaml:"readers"`
	Books   []FixtureBook   `yaml:"books"`
}

// FixtureAuthor is a catalog author.
type FixtureAuthor struct {
	Username  string     `yaml:"username"`
	Biography string     `yaml:"biography"`
	Birthday  *time.Time `yaml:"birthday"`
}

// FixtureReader is a reader account. Exactly one of Password and PasswordHash is set.
type FixtureReader struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	Email        string `yaml:"email"`
	Info         string `yaml:"info"`
	CanGetMore   *int   `yaml:"can_get_more"`
}

// FixtureBook is a book referring to authors and genres by name.
type FixtureBook struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	PublishedAt *time.Time `yaml:"published_at"`
	Copies      int        `yaml:"copies"`
	Authors     []string   `yaml:"authors"`
	Genres      []string   `yaml:"genres"`
}

// SeedSummary counts what a seed run wrote and skipped.
type SeedSummary struct {
	GenresCreated  int `json:"genres_created"`
	GenresSkipped  int `json:"genres_skipped"`
	AuthorsCreated int `json:"authors_created"`
	AuthorsSkipped int `json:"authors_skipped"`
	ReadersCreated int `json:"readers_created"`
	ReadersSkipped int `json:"readers_skipped"`
	BooksCreated   int `json:"books_created"`
}

// LoadFixture reads a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, r := range f.Readers {
		if (r.Password == "") == (r.PasswordHash == "") {
			return nil, fmt.Errorf("reader %d (%q): set exactly one of password and password_hash", i, r.Username)
		}
	}
	return &f, nil
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	var defaultGenres bool

	cmd := &cobra.Command{
		Use:   "seed [fixture.yaml]",
		Short: "Load genres, authors, readers, and books from a YAML fixture",
		Long: `Load a catalog fixture. Entries are written in order: genres, authors,
readers, then books, so books may refer to anything defined above them.

Existing genres, authors with the same username, and existing readers are
skipped, so a fixture can be applied more than once. Books are always added.

With --default-genres the starter genre list is created first.`,
		Example: `  libctl seed --default-genres
  libctl seed catalog.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd.OutOrStdout())

			if len(args) == 0 && !defaultGenres {
				return &ExitError{Code: ExitCommandError, Message: "nothing to seed: pass a fixture file or --default-genres"}
			}
			fixture := &Fixture{}
			if len(args) == 1 {
				f, err := LoadFixture(args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "load fixture", err)
				}
				fixture = f
			}
			if defaultGenres {
				fixture.Genres = append(genre.Defaults(), fixture.Genres...)
			}

			a, err := openApp(opts, cmd.ErrOrStderr())
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			defer a.Close()

			summary, err := a.seed(cmd.Context(), fixture)
			if err != nil {
				return out.Failure(err)
			}

			return out.Success(summary, func(w io.Writer) {
				fmt.Fprintf(w, "Genres:  %d created, %d skipped\n", summary.GenresCreated, summary.GenresSkipped)
				fmt.Fprintf(w, "Authors: %d created, %d skipped\n", summary.AuthorsCreated, summary.AuthorsSkipped)
				fmt.Fprintf(w, "Readers: %d created, %d skipped\n", summary.ReadersCreated, summary.ReadersSkipped)
				fmt.Fprintf(w, "Books:   %d created\n", summary.BooksCreated)
			})
		},
	}

	cmd.Flags().BoolVar(&defaultGenres, "default-genres", false, "also create the starter genre list")

	return cmd
}

func (a *app) seed(ctx context.Context, f *Fixture) (*SeedSummary, error) {
	catalog, err := a.catalog()
	if err != nil {
		return nil, err
	}
	readers, err := a.readers()
	if err != nil {
		return nil, err
	}
	authService, err := a.auth()
	if err != nil {
		return nil, err
	}

	summary := &SeedSummary{}

	for batch := range slices.Chunk(f.Genres, genreBatchSize) {
		result, err := catalog.CreateGenres(ctx, operator, service.CreateGenresRequest{Names: batch})
		if err != nil && !domainerrors.Is(err, domainerrors.ErrDuplicateGenre) {
			return nil, fmt.Errorf("genres: %w", err)
		}
		summary.GenresCreated += len(result.Created)
		summary.GenresSkipped += len(result.Duplicates)
	}

	existing, err := catalog.ListAuthors(ctx, operator)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(existing))
	for _, au := range existing {
		known[au.Username] = true
	}
	for _, fa := range f.Authors {
		if known[fa.Username] {
			summary.AuthorsSkipped++
			continue
		}
		if _, err := catalog.CreateAuthor(ctx, operator, service.CreateAuthorRequest{
			Username:  fa.Username,
			Biography: fa.Biography,
			Birthday:  fa.Birthday,
		}); err != nil {
			return nil, fmt.Errorf("author %q: %w", fa.Username, err)
		}
		known[fa.Username] = true
		summary.AuthorsCreated++
	}

	for _, fr := range f.Readers {
		created, err := a.seedReader(ctx, authService, readers, fr)
		if err != nil {
			return nil, fmt.Errorf("reader %q: %w", fr.Username, err)
		}
		if created {
			summary.ReadersCreated++
		} else {
			summary.ReadersSkipped++
		}
	}

	for _, fb := range f.Books {
		if _, err := catalog.CreateBook(ctx, operator, service.CreateBookRequest{
			Name:           fb.Name,
			Description:    fb.Description,
			PublishedAt:    fb.PublishedAt,
			CountAvailable: fb.Copies,
			AuthorNames:    fb.Authors,
			GenreNames:     fb.Genres,
		}); err != nil {
			return nil, fmt.Errorf("book %q: %w", fb.Name, err)
		}
		summary.BooksCreated++
	}

	a.log.Info("Seed complete",
		"genres", summary.GenresCreated,
		"authors", summary.AuthorsCreated,
		"readers", summary.ReadersCreated,
		"books", summary.BooksCreated,
	)
	return summary, nil
}

// seedReader creates one reader and reports false when the username is taken.
func (a *app) seedReader(ctx context.Context, authService *service.AuthService, readers *service.ReaderService, fr FixtureReader) (bool, error) {
	if fr.PasswordHash != "" {
		_, err := authService.ImportReader(ctx, operator, service.ImportReaderRequest{
			Username:     fr.Username,
			PasswordHash: fr.PasswordHash,
			Email:        fr.Email,
			Info:         fr.Info,
			CanGetMore:   fr.CanGetMore,
		})
		return skipExisting(err)
	}

	p, err := authService.Register(ctx, service.RegisterRequest{
		Username: fr.Username,
		Password: fr.Password,
		Role:     "reader",
		Email:    fr.Email,
		Info:     fr.Info,
	})
	if created, err := skipExisting(err); !created {
		return false, err
	}
	if fr.CanGetMore != nil {
		if _, err := readers.SetReaderQuota(ctx, operator, p.ID(), service.SetQuotaRequest{CanGetMore: *fr.CanGetMore}); err != nil {
			return false, err
		}
	}
	return true, nil
}

func skipExisting(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case domainerrors.Is(err, domainerrors.ErrAlreadyExists):
		return false, nil
	default:
		return false, err
	}
}
