package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"newsbot/internal/fetcher"
	"newsbot/internal/model"
	"newsbot/internal/storage"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

type mockNotifier struct {
	mu       sync.Mutex
	messages []sentMessage
	failFor  map[int64]bool
	attempts int
}

func (m *mockNotifier) Send(_ context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.failFor[chatID] {
		return errors.New("bot was blocked by the user")
	}
	m.messages = append(m.messages, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *mockNotifier) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

type mockFetcher struct {
	mu    sync.Mutex
	feeds map[string][]model.Entry
	errs  map[string]error
	calls int
}

func (m *mockFetcher) Fetch(_ context.Context, url string) ([]model.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.errs[url]; err != nil {
		return nil, err
	}
	return m.feeds[url], nil
}

type mockHTTP struct {
	body string
}

func (m *mockHTTP) Do(_ *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

var demoSource = model.Source{
	Name:       "Demo",
	URL:        "https://demo.example.com/rss",
	Categories: []string{"EV", "Reviews"},
}

var autosSource = model.Source{
	Name:       "Autos",
	URL:        "https://autos.example.com/rss",
	Categories: []string{"Trucks"},
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestScheduler(store Store, catalog model.Catalog, f Fetcher, n Notifier) *Scheduler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := NewWithFetcher(store, catalog, f, n, log)
	sched.SetSendDelay(0)
	return sched
}

func subscribe(t *testing.T, store *storage.SQLite, userID int64, cats map[string][]string) {
	t.Helper()
	var sources []string
	for s := range cats {
		sources = append(sources, s)
	}
	if err := store.ReplacePreferences(context.Background(), userID, model.Preferences{
		Sources:    sources,
		Categories: cats,
	}); err != nil {
		t.Fatalf("subscribe %d: %v", userID, err)
	}
}

func isRecorded(t *testing.T, store *storage.SQLite, link string) bool {
	t.Helper()
	ok, err := store.HasEntry(context.Background(), link)
	if err != nil {
		t.Fatalf("has entry: %v", err)
	}
	return ok
}

func TestCycleDeliversMatchingEntryOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	subscribe(t, store, 1, map[string][]string{"Demo": {"EV"}})

	f := &mockFetcher{feeds: map[string][]model.Entry{
		demoSource.URL: {{Link: "L1", Title: "New EV launch", Summary: "details"}},
	}}
	n := &mockNotifier{}
	sched := newTestScheduler(store, model.Catalog{demoSource}, f, n)

	stats := sched.RunCycle(ctx)

	msgs := n.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(1), msgs[0].ChatID); diff != "" {
		t.Errorf("chatID mismatch (-want +got):\n%s", diff)
	}
	for _, want := range []string{"L1", "New EV launch", "Demo"} {
		if !strings.Contains(msgs[0].Text, want) {
			t.Errorf("message %q missing %q", msgs[0].Text, want)
		}
	}
	if !isRecorded(t, store, "L1") {
		t.Error("expected L1 to be recorded")
	}
	if diff := cmp.Diff(CycleStats{Sources: 1, Entries: 1, New: 1, Sent: 1}, stats); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}

	// Same feed again: nothing new.
	sched.RunCycle(ctx)
	if diff := cmp.Diff(1, len(n.getMessages())); diff != "" {
		t.Errorf("second cycle sent again (-want +got):\n%s", diff)
	}
}

func TestCycleRecordsWithoutMatchingCategories(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	subscribe(t, store, 1, map[string][]string{"Demo": nil})

	f := &mockFetcher{feeds: map[string][]model.Entry{
		demoSource.URL: {{Link: "L1", Title: "New EV launch", Summary: "details"}},
	}}
	n := &mockNotifier{}
	sched := newTestScheduler(store, model.Catalog{demoSource}, f, n)

	sched.RunCycle(ctx)

	if diff := cmp.Diff(0, n.attempts); diff != "" {
		t.Errorf("expected no sends (-want +got):\n%s", diff)
	}
	if !isRecorded(t, store, "L1") {
		t.Error("expected L1 to be recorded even without a match")
	}
}

func TestCycleSkipsRecordedEntries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	subscribe(t, store, 1, map[string][]string{"Demo": {"EV"}})
	if err := store.RecordEntry(ctx, "L1"); err != nil {
		t.Fatalf("record: %v", err)
	}

	f := &mockFetcher{feeds: map[string][]model.Entry{
		demoSource.URL: {
			{Link: "L1", Title: "New EV launch"},
			{Link: "L2", Title: "Another EV story"},
		},
	}}
	n := &mockNotifier{}
	sched := newTestScheduler(store, model.Catalog{demoSource}, f, n)

	sched.RunCycle(ctx)

	msgs := n.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count (-want +got):\n%s", diff)
	}
	if !strings.Contains(msgs[0].Text, "L2") {
		t.Errorf("expected L2 to be delivered, got %q", msgs[0].Text)
	}
}

func TestCycleIsNotRetroactive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	f := &mockFetcher{feeds: map[string][]model.Entry{
		demoSource.URL: {{Link: "L1", Title: "New EV launch"}},
	}}
	n := &mockNotifier{}
	sched := newTestScheduler(store, model.Catalog{demoSource}, f, n)

	sched.RunCycle(ctx)
	subscribe(t, store, 1, map[string][]string{"Demo": {"EV"}})
	sched.RunCycle(ctx)

	if diff := cmp.Diff(0, n.attempts); diff != "" {
		t.Errorf("late subscriber should not receive old entry (-want +got):\n%s", diff)
	}
}

func TestCycleFetchErrorDoesNotStopOtherSources(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	subscribe(t, store, 1, map[string][]string{"Demo": {"EV"}, "Autos": {"Trucks"}})

	f := &mockFetcher{
		errs: map[string]error{demoSource.URL: errors.New("connection refused")},
		feeds: map[string][]model.Entry{
			demoSource.URL:  {{Link: "D1", Title: "EV news"}},
			autosSource.URL: {{Link: "A1", Title: "Trucks of the year"}},
		},
	}
	n := &mockNotifier{}
	sched := newTestScheduler(store, model.Catalog{demoSource, autosSource}, f, n)

	stats := sched.RunCycle(ctx)

	msgs := n.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count (-want +got):\n%s", diff)
	}
	if !strings.Contains(msgs[0].Text, "A1") {
		t.Errorf("expected A1 to be delivered, got %q", msgs[0].Text)
	}
	if !isRecorded(t, store, "A1") {
		t.Error("expected A1 to be recorded")
	}
	if isRecorded(t, store, "D1") {
		t.Error("entries of a failed source must not be recorded")
	}
	if diff := cmp.Diff(CycleStats{Sources: 2, Failed: 1, Entries: 1, New: 1, Sent: 1}, stats); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}

	// The failed source is retried on the next cycle.
	delete(f.errs, demoSource.URL)
	sched.RunCycle(ctx)
	if diff := cmp.Diff(2, len(n.getMessages())); diff != "" {
		t.Errorf("retry should deliver D1 (-want +got):\n%s", diff)
	}
}

func TestCycleSendFailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	subscribe(t, store, 1, map[string][]string{"Demo": {"EV"}})
	subscribe(t, store, 2, map[string][]string{"Demo": {"EV"}})

	f := &mockFetcher{feeds: map[string][]model.Entry{
		demoSource.URL: {{Link: "L1", Title: "New EV launch"}},
	}}
	n := &mockNotifier{failFor: map[int64]bool{1: true}}
	sched := newTestScheduler(store, model.Catalog{demoSource}, f, n)

	stats := sched.RunCycle(ctx)

	msgs := n.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(2), msgs[0].ChatID); diff != "" {
		t.Errorf("recipient (-want +got):\n%s", diff)
	}
	if !isRecorded(t, store, "L1") {
		t.Error("expected L1 to be recorded despite a failed send")
	}
	if diff := cmp.Diff(1, stats.SendFailures); diff != "" {
		t.Errorf("send failures (-want +got):\n%s", diff)
	}

	sched.RunCycle(ctx)
	if diff := cmp.Diff(2, n.attempts); diff != "" {
		t.Errorf("failed send must not be retried (-want +got):\n%s", diff)
	}
}

func TestCycleOnlyNotifiesSubscribersOfTheSource(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	subscribe(t, store, 1, map[string][]string{"Autos": {"EV"}})
	subscribe(t, store, 2, map[string][]string{"Demo": {"EV"}})
	if err := store.EnsureUser(ctx, 3); err != nil {
		t.Fatalf("ensure user: %v", err)
	}

	f := &mockFetcher{feeds: map[string][]model.Entry{
		demoSource.URL: {{Link: "L1", Title: "New EV launch"}},
	}}
	n := &mockNotifier{}
	sched := newTestScheduler(store, model.Catalog{demoSource, autosSource}, f, n)

	sched.RunCycle(ctx)

	want := []int64{2}
	var got []int64
	for _, m := range n.getMessages() {
		got = append(got, m.ChatID)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("recipients (-want +got):\n%s", diff)
	}
}

func TestCycleDuplicateLinkInFeed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	subscribe(t, store, 1, map[string][]string{"Demo": {"EV"}})

	f := &mockFetcher{feeds: map[string][]model.Entry{
		demoSource.URL: {
			{Link: "L1", Title: "New EV launch"},
			{Link: "L1", Title: "New EV launch (updated)"},
		},
	}}
	n := &mockNotifier{}
	sched := newTestScheduler(store, model.Catalog{demoSource}, f, n)

	sched.RunCycle(ctx)

	if diff := cmp.Diff(1, len(n.getMessages())); diff != "" {
		t.Errorf("duplicate link delivered twice (-want +got):\n%s", diff)
	}
}

func TestCycleWithFeedFixture(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	data, err := os.ReadFile("../../testdata/sample.xml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	subscribe(t, store, 100, map[string][]string{"Demo": {"Reviews"}})
	subscribe(t, store, 200, map[string][]string{"Demo": {"autonomous"}})

	n := &mockNotifier{}
	sched := newTestScheduler(store, model.Catalog{demoSource}, fetcher.New(&mockHTTP{body: string(data)}), n)

	stats := sched.RunCycle(ctx)

	want := []sentMessage{
		{ChatID: 100, Text: "📰 Weekend road test\n\nOur reviews of three family SUVs.\n\nSource: Demo\nRead more: https://demo.example.com/road-test"},
		{ChatID: 200, Text: "📰 Autonomous trucks hit the highway\n\nPilot programme expands, with EV tractors in the fleet.\n\nSource: Demo\nRead more: item-4"},
	}
	if diff := cmp.Diff(want, n.getMessages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(4, stats.New); diff != "" {
		t.Errorf("new entries (-want +got):\n%s", diff)
	}
	for _, link := range []string{"https://demo.example.com/ev-launch", "https://demo.example.com/steel", "item-4"} {
		if !isRecorded(t, store, link) {
			t.Errorf("expected %s to be recorded", link)
		}
	}
}

type failingStore struct {
	*storage.SQLite
	failHas bool
}

func (f *failingStore) HasEntry(ctx context.Context, link string) (bool, error) {
	if f.failHas {
		return false, errors.New("database is locked")
	}
	return f.SQLite.HasEntry(ctx, link)
}

func TestCycleStoreErrorAbortsSourceOnly(t *testing.T) {
	ctx := context.Background()
	base := newTestStore(t)
	subscribe(t, base, 1, map[string][]string{"Demo": {"EV"}})
	store := &failingStore{SQLite: base, failHas: true}

	f := &mockFetcher{feeds: map[string][]model.Entry{
		demoSource.URL: {{Link: "L1", Title: "New EV launch"}},
	}}
	n := &mockNotifier{}
	sched := newTestScheduler(store, model.Catalog{demoSource, autosSource}, f, n)

	stats := sched.RunCycle(ctx)

	if diff := cmp.Diff(0, n.attempts); diff != "" {
		t.Errorf("no send expected (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(CycleStats{Sources: 2, Failed: 1, Entries: 1}, stats); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}

	store.failHas = false
	sched.RunCycle(ctx)
	if diff := cmp.Diff(1, len(n.getMessages())); diff != "" {
		t.Errorf("entry should be delivered once the store recovers (-want +got):\n%s", diff)
	}
}

func TestCycleCancelledContext(t *testing.T) {
	store := newTestStore(t)
	f := &mockFetcher{}
	n := &mockNotifier{}
	sched := newTestScheduler(store, model.Catalog{demoSource}, f, n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats := sched.RunCycle(ctx)
	if diff := cmp.Diff(0, f.calls); diff != "" {
		t.Errorf("no fetch expected when context cancelled (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(CycleStats{}, stats); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}
}

func TestRunPollsRepeatedly(t *testing.T) {
	store := newTestStore(t)
	f := &mockFetcher{}
	n := &mockNotifier{}
	sched := newTestScheduler(store, model.Catalog{demoSource}, f, n)
	sched.SetStartDelay(time.Millisecond)
	sched.SetInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}

	f.mu.Lock()
	calls := f.calls
	f.mu.Unlock()
	if calls < 2 {
		t.Errorf("expected several cycles, got %d fetches", calls)
	}
}

type panickyFetcher struct{}

func (panickyFetcher) Fetch(context.Context, string) ([]model.Entry, error) {
	panic("boom")
}

func TestRunRecoversFromPanic(t *testing.T) {
	store := newTestStore(t)
	sched := newTestScheduler(store, model.Catalog{demoSource}, panickyFetcher{}, &mockNotifier{})
	sched.SetStartDelay(time.Millisecond)
	sched.SetInterval(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not survive a panicking cycle")
	}
}
