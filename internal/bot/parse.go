package bot

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"newsbot/internal/model"
	"newsbot/internal/preference"
)

// Callback data prefixes. Sources and categories are referenced by their
// catalog index to stay under Telegram's 64-byte callback data limit.
const (
	cbToggleSource   = "ts"
	cbToggleCategory = "tc"
	cbSelectAll      = "sa"
	cbClearAll       = "ca"
	cbConfigure      = "cfg"
	cbBack           = "back"
	cbSave           = "save"
)

// EncodeAction turns an action into callback data.
func EncodeAction(catalog model.Catalog, a preference.Action) string {
	src := catalog.Index(a.Source)
	switch a.Kind {
	case preference.KindToggleSource:
		return fmt.Sprintf("%s:%d", cbToggleSource, src)
	case preference.KindToggleCategory:
		cat := -1
		if src >= 0 {
			cat = slices.Index(catalog[src].Categories, a.Category)
		}
		return fmt.Sprintf("%s:%d:%d", cbToggleCategory, src, cat)
	case preference.KindSelectAll:
		return fmt.Sprintf("%s:%d", cbSelectAll, src)
	case preference.KindClearAll:
		return fmt.Sprintf("%s:%d", cbClearAll, src)
	case preference.KindConfigureCategories:
		return cbConfigure
	case preference.KindBackToSources:
		return cbBack
	case preference.KindSaveAll:
		return cbSave
	}
	return ""
}

// ParseCallback turns callback data back into an action.
func ParseCallback(catalog model.Catalog, data string) (preference.Action, error) {
	parts := strings.Split(data, ":")

	switch parts[0] {
	case cbConfigure, cbBack, cbSave:
		if len(parts) != 1 {
			return preference.Action{}, fmt.Errorf("unexpected arguments in %q", data)
		}
		switch parts[0] {
		case cbConfigure:
			return preference.ConfigureCategories(), nil
		case cbBack:
			return preference.BackToSources(), nil
		default:
			return preference.SaveAll(), nil
		}

	case cbToggleSource, cbSelectAll, cbClearAll:
		if len(parts) != 2 {
			return preference.Action{}, fmt.Errorf("malformed callback %q", data)
		}
		src, err := sourceAt(catalog, parts[1])
		if err != nil {
			return preference.Action{}, err
		}
		switch parts[0] {
		case cbToggleSource:
			return preference.ToggleSource(src.Name), nil
		case cbSelectAll:
			return preference.SelectAll(src.Name), nil
		default:
			return preference.ClearAll(src.Name), nil
		}

	case cbToggleCategory:
		if len(parts) != 3 {
			return preference.Action{}, fmt.Errorf("malformed callback %q", data)
		}
		src, err := sourceAt(catalog, parts[1])
		if err != nil {
			return preference.Action{}, err
		}
		i, err := strconv.Atoi(parts[2])
		if err != nil || i < 0 || i >= len(src.Categories) {
			return preference.Action{}, fmt.Errorf("invalid category index %q for %q", parts[2], src.Name)
		}
		return preference.ToggleCategory(src.Name, src.Categories[i]), nil
	}

	return preference.Action{}, fmt.Errorf("unknown callback %q", data)
}

func sourceAt(catalog model.Catalog, s string) (model.Source, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 || i >= len(catalog) {
		return model.Source{}, fmt.Errorf("invalid source index %q", s)
	}
	return catalog[i], nil
}
