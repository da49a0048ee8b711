// Package preference implements the interactive flow users go through to pick
// sources and categories: an in-memory session per user, the state machine
// that mutates it, and the menus rendered for every state.
package preference

import "fmt"

// Kind identifies a user action in the preference flow.
type Kind int

// Supported action kinds.
const (
	KindToggleSource Kind = iota + 1
	KindToggleCategory
	KindSelectAll
	KindClearAll
	KindConfigureCategories
	KindBackToSources
	KindSaveAll
)

func (k Kind) String() string {
	switch k {
	case KindToggleSource:
		return "toggle_source"
	case KindToggleCategory:
		return "toggle_category"
	case KindSelectAll:
		return "select_all"
	case KindClearAll:
		return "clear_all"
	case KindConfigureCategories:
		return "configure_categories"
	case KindBackToSources:
		return "back_to_sources"
	case KindSaveAll:
		return "save_all"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Action is a single button press. Only the fields relevant to Kind are set;
// build values with the constructors below.
type Action struct {
	Kind     Kind
	Source   string
	Category string
}

// ToggleSource flips membership of a source in the selection.
func ToggleSource(source string) Action {
	return Action{Kind: KindToggleSource, Source: source}
}

// ToggleCategory flips one category of the open source.
func ToggleCategory(source, category string) Action {
	return Action{Kind: KindToggleCategory, Source: source, Category: category}
}

// SelectAll selects every category of the open source.
func SelectAll(source string) Action {
	return Action{Kind: KindSelectAll, Source: source}
}

// ClearAll deselects every category of the open source.
func ClearAll(source string) Action {
	return Action{Kind: KindClearAll, Source: source}
}

// ConfigureCategories moves from the source list to the category list.
func ConfigureCategories() Action {
	return Action{Kind: KindConfigureCategories}
}

// BackToSources returns from the category list to the source list.
func BackToSources() Action {
	return Action{Kind: KindBackToSources}
}

// SaveAll commits the session to the subscription store.
func SaveAll() Action {
	return Action{Kind: KindSaveAll}
}
