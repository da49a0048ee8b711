package preference

import (
	"fmt"
	"strings"

	"newsbot/internal/model"
)

const (
	markOn  = "✅"
	markOff = "⬜"
)

// Button is one inline button of a menu.
type Button struct {
	Label  string
	Action Action
}

// Menu is the transport-neutral rendering of a session.
type Menu struct {
	Text string
	Rows [][]Button
}

// Render draws the menu for the session's current state. The result depends
// only on the catalog and the session contents.
func Render(catalog model.Catalog, sess *Session) Menu {
	switch sess.State {
	case StateCategories:
		if src, ok := catalog.Lookup(sess.Open); ok {
			return renderCategories(src, sess)
		}
		return renderSources(catalog, sess)
	case StateSaved:
		return Menu{Text: "Preferences saved.\n\n" + FormatPreferences(sess.Preferences(catalog))}
	default:
		return renderSources(catalog, sess)
	}
}

func renderSources(catalog model.Catalog, sess *Session) Menu {
	m := Menu{Text: "Choose the sources you want to follow, then configure their categories."}
	for _, src := range catalog {
		m.Rows = append(m.Rows, []Button{{
			Label:  mark(sess.Sources[src.Name]) + " " + src.Name,
			Action: ToggleSource(src.Name),
		}})
	}
	m.Rows = append(m.Rows, []Button{
		{Label: "⚙️ Configure categories", Action: ConfigureCategories()},
		{Label: "💾 Save", Action: SaveAll()},
	})
	return m
}

func renderCategories(src model.Source, sess *Session) Menu {
	m := Menu{Text: fmt.Sprintf("Categories for %s.\nOnly articles mentioning a selected category are delivered.", src.Name)}
	for _, c := range src.Categories {
		m.Rows = append(m.Rows, []Button{{
			Label:  mark(sess.Categories[src.Name][c]) + " " + c,
			Action: ToggleCategory(src.Name, c),
		}})
	}
	m.Rows = append(m.Rows,
		[]Button{
			{Label: "Select all", Action: SelectAll(src.Name)},
			{Label: "Clear all", Action: ClearAll(src.Name)},
		},
		[]Button{
			{Label: "⬅️ Back", Action: BackToSources()},
			{Label: "💾 Save", Action: SaveAll()},
		},
	)
	return m
}

// FormatPreferences describes a subscription as plain text.
func FormatPreferences(prefs model.Preferences) string {
	if len(prefs.Sources) == 0 {
		return "You are not subscribed to any source. Use /start to pick some."
	}
	var b strings.Builder
	b.WriteString("Your subscriptions:\n")
	for _, source := range prefs.Sources {
		cats := prefs.Categories[source]
		if len(cats) == 0 {
			fmt.Fprintf(&b, "\n• %s: no categories, nothing will be delivered", source)
			continue
		}
		fmt.Fprintf(&b, "\n• %s: %s", source, strings.Join(cats, ", "))
	}
	b.WriteString("\n\nUse /settings to change them.")
	return b.String()
}

func mark(on bool) string {
	if on {
		return markOn
	}
	return markOff
}
