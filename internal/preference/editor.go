package preference

import (
	"context"
	"fmt"

	"newsbot/internal/model"
)

const (
	noticeNoSources = "Select at least one source first."
	noticeOutdated  = "This menu is outdated."
	noticeSaveFail  = "Could not save your preferences, please try again."
)

// Store is the part of the subscription store the editor needs.
type Store interface {
	EnsureUser(ctx context.Context, userID int64) error
	Sources(ctx context.Context, userID int64) ([]string, error)
	Categories(ctx context.Context, userID int64, source string) ([]string, error)
	ReplacePreferences(ctx context.Context, userID int64, prefs model.Preferences) error
}

// Reply is what the transport shows after an action: the re-rendered menu and
// an optional short notice.
type Reply struct {
	Menu   Menu
	Notice string
}

// Editor drives the preference flow for every user.
type Editor struct {
	catalog  model.Catalog
	store    Store
	sessions *Sessions
}

// NewEditor creates an Editor over the given catalog, store, and sessions.
func NewEditor(catalog model.Catalog, store Store, sessions *Sessions) *Editor {
	return &Editor{catalog: catalog, store: store, sessions: sessions}
}

// Start begins a fresh flow with nothing selected.
func (e *Editor) Start(ctx context.Context, userID int64) (Reply, error) {
	if err := e.store.EnsureUser(ctx, userID); err != nil {
		return Reply{}, err
	}
	sess := newSession()
	e.sessions.Put(userID, sess)
	return Reply{Menu: Render(e.catalog, sess)}, nil
}

// Settings begins a flow pre-populated with the user's stored preferences.
func (e *Editor) Settings(ctx context.Context, userID int64) (Reply, error) {
	if err := e.store.EnsureUser(ctx, userID); err != nil {
		return Reply{}, err
	}
	sess, err := e.load(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	e.sessions.Put(userID, sess)
	return Reply{Menu: Render(e.catalog, sess)}, nil
}

// Handle applies one action to the user's session. Without a live session,
// one is rebuilt from the stored preferences first.
func (e *Editor) Handle(ctx context.Context, userID int64, a Action) (Reply, error) {
	sess, err := e.acquire(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	defer sess.mu.Unlock()

	switch sess.State {
	case StateSources:
		return e.handleSources(ctx, userID, sess, a)
	case StateCategories:
		return e.handleCategories(ctx, userID, sess, a)
	}
	return e.outdated(sess), nil
}

func (e *Editor) handleSources(ctx context.Context, userID int64, sess *Session, a Action) (Reply, error) {
	switch a.Kind {
	case KindToggleSource:
		if _, ok := e.catalog.Lookup(a.Source); !ok {
			return e.outdated(sess), nil
		}
		sess.Sources[a.Source] = !sess.Sources[a.Source]
	case KindConfigureCategories:
		selected := sess.SelectedSources(e.catalog)
		if len(selected) == 0 {
			return Reply{Menu: Render(e.catalog, sess), Notice: noticeNoSources}, nil
		}
		sess.Open = selected[0]
		sess.State = StateCategories
	case KindSaveAll:
		return e.save(ctx, userID, sess)
	default:
		return e.outdated(sess), nil
	}
	return Reply{Menu: Render(e.catalog, sess)}, nil
}

func (e *Editor) handleCategories(ctx context.Context, userID int64, sess *Session, a Action) (Reply, error) {
	switch a.Kind {
	case KindToggleCategory, KindSelectAll, KindClearAll:
		src, ok := e.catalog.Lookup(sess.Open)
		if !ok || a.Source != sess.Open {
			return e.outdated(sess), nil
		}
		switch a.Kind {
		case KindToggleCategory:
			if !src.HasCategory(a.Category) {
				return e.outdated(sess), nil
			}
			sess.setCategory(src.Name, a.Category, !sess.Categories[src.Name][a.Category])
		case KindSelectAll:
			for _, c := range src.Categories {
				sess.setCategory(src.Name, c, true)
			}
		case KindClearAll:
			sess.Categories[src.Name] = make(map[string]bool)
		}
	case KindBackToSources:
		sess.State = StateSources
		sess.Open = ""
	case KindSaveAll:
		return e.save(ctx, userID, sess)
	default:
		return e.outdated(sess), nil
	}
	return Reply{Menu: Render(e.catalog, sess)}, nil
}

func (e *Editor) save(ctx context.Context, userID int64, sess *Session) (Reply, error) {
	if err := e.store.ReplacePreferences(ctx, userID, sess.Preferences(e.catalog)); err != nil {
		return Reply{Menu: Render(e.catalog, sess), Notice: noticeSaveFail}, fmt.Errorf("save preferences: %w", err)
	}
	sess.State = StateSaved
	sess.Open = ""
	e.sessions.Discard(userID, sess)
	return Reply{Menu: Render(e.catalog, sess)}, nil
}

func (e *Editor) outdated(sess *Session) Reply {
	return Reply{Menu: Render(e.catalog, sess), Notice: noticeOutdated}
}

// acquire returns the user's live session, locked. The lock is taken only on
// a session that is still installed, so a concurrent save or restart of the
// flow is never edited after being replaced.
func (e *Editor) acquire(ctx context.Context, userID int64) (*Session, error) {
	for {
		sess, ok := e.sessions.Get(userID)
		if !ok {
			loaded, err := e.load(ctx, userID)
			if err != nil {
				return nil, err
			}
			sess = e.sessions.PutIfAbsent(userID, loaded)
		}
		sess.mu.Lock()
		if cur, ok := e.sessions.Get(userID); ok && cur == sess {
			return sess, nil
		}
		sess.mu.Unlock()
	}
}

// load builds a session from the stored preferences, dropping sources and
// labels that are no longer configured.
func (e *Editor) load(ctx context.Context, userID int64) (*Session, error) {
	sources, err := e.store.Sources(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	sess := newSession()
	for _, name := range sources {
		src, ok := e.catalog.Lookup(name)
		if !ok {
			continue
		}
		sess.Sources[name] = true

		cats, err := e.store.Categories(ctx, userID, name)
		if err != nil {
			return nil, fmt.Errorf("load categories for %q: %w", name, err)
		}
		for _, c := range cats {
			if src.HasCategory(c) {
				sess.setCategory(name, c, true)
			}
		}
	}
	return sess, nil
}
