// Package genre holds the default genre list offered to a new library.
package genre

// Group is a shelf section and the genres filed under it.
type Group struct {
	Section string
	Genres  []string
}

// DefaultGroups is the starter taxonomy. Genres are flat in the catalog;
// sections only order the list. Libraries can add their own after setup.
var DefaultGroups = []Group{
	{
		Section: "Fiction",
		Genres: []string{
			"Fiction",
			"Literary Fiction",
			"Classics",
			"Historical Fiction",
			"Fantasy",
			"Science Fiction",
			"Mystery",
			"Thriller",
			"Horror",
			"Romance",
			"Adventure",
			"Short Stories",
			"Poetry",
			"Drama",
		},
	},
	{
		Section: "Nonfiction",
		Genres: []string{
			"Nonfiction",
			"Biography",
			"Memoir",
			"History",
			"Philosophy",
			"Religion",
			"Psychology",
			"Science",
			"Mathematics",
			"Technology",
			"Business",
			"Politics",
			"Travel",
			"Cooking",
			"Art",
			"Music",
			"Self-Help",
			"Reference",
		},
	},
	{
		Section: "Young Readers",
		Genres: []string{
			"Children's",
			"Picture Books",
			"Middle Grade",
			"Young Adult",
		},
	},
}

// Defaults returns every default genre name in section order.
func Defaults() []string {
	var names []string
	for _, g := range DefaultGroups {
		names = append(names, g.Genres...)
	}
	return names
}
