// Package model defines the domain types used across the application.
package model

// Source is a configured RSS feed with the category labels users can pick from.
type Source struct {
	Name       string   `yaml:"name"`
	URL        string   `yaml:"url"`
	Categories []string `yaml:"categories"`
}

// HasCategory reports whether label is one of the source's categories.
func (s Source) HasCategory(label string) bool {
	for _, c := range s.Categories {
		if c == label {
			return true
		}
	}
	return false
}

// Catalog is the ordered list of configured sources, in declaration order.
type Catalog []Source

// Lookup returns the source with the given name.
func (c Catalog) Lookup(name string) (Source, bool) {
	for _, s := range c {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// Index returns the position of the named source, or -1.
func (c Catalog) Index(name string) int {
	for i, s := range c {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Entry is a single article yielded by fetching a source.
// Link identifies the entry globally across all sources.
type Entry struct {
	Link    string
	Title   string
	Summary string
	Source  string
}

// Preferences is a user's complete subscription: the selected sources and,
// for each of them, the selected category labels.
type Preferences struct {
	Sources    []string
	Categories map[string][]string
}
