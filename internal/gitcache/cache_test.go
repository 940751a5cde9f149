package gitcache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeFetcher writes a single SKILL.md into dest and counts calls.
type fakeFetcher struct {
	calls   atomic.Int64
	content string
	err     error

	// When set, Fetch signals started and blocks until release is closed.
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref, dest string) error {
	f.calls.Add(1)
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	if f.err != nil {
		return f.err
	}
	content := f.content
	if content == "" {
		content = "# fetched\n"
	}
	return os.WriteFile(filepath.Join(dest, "SKILL.md"), []byte(content), 0644)
}

func newTestCache(t *testing.T, ttl time.Duration, fetcher Fetcher) *Cache {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "git-cache"), ttl, fetcher)
}

// ageEntry rewrites the entry metadata so the fetch looks old.
func ageEntry(t *testing.T, c *Cache, ref string, age time.Duration) {
	t.Helper()
	metaPath := filepath.Join(c.entryDir(NormalizeRef(ref)), entryMetaFile)
	meta, err := readMeta(metaPath)
	if err != nil {
		t.Fatalf("failed to read entry meta: %v", err)
	}
	meta.FetchedAt = time.Now().Add(-age)
	data, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("failed to marshal meta: %v", err)
	}
	if err := os.WriteFile(metaPath, data, 0644); err != nil {
		t.Fatalf("failed to rewrite meta: %v", err)
	}
}

func TestFetchWithinTTLReturnsCachedCopy(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := newTestCache(t, time.Minute, fetcher)

	first, err := c.Fetch(context.Background(), "owner/repo")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	second, err := c.Fetch(context.Background(), "owner/repo")
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}

	if first != second {
		t.Errorf("Fetch() paths differ within TTL: %s vs %s", first, second)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetcher called %d times within TTL, want 1", got)
	}
}

func TestFetchAfterTTLRefetchesOnce(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := newTestCache(t, time.Minute, fetcher)

	if _, err := c.Fetch(context.Background(), "owner/repo"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	ageEntry(t, c, "owner/repo", 2*time.Minute)

	if _, err := c.Fetch(context.Background(), "owner/repo"); err != nil {
		t.Fatalf("stale Fetch() error = %v", err)
	}
	if got := fetcher.calls.Load(); got != 2 {
		t.Errorf("fetcher called %d times after TTL expiry, want 2", got)
	}
}

func TestFetchFailureKeepsPreviousEntry(t *testing.T) {
	fetcher := &fakeFetcher{content: "# v1\n"}
	c := newTestCache(t, time.Minute, fetcher)

	workDir, err := c.Fetch(context.Background(), "owner/repo")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	ageEntry(t, c, "owner/repo", 2*time.Minute)

	fetcher.err = errors.New("network down")
	_, err = c.Fetch(context.Background(), "owner/repo")
	if !errors.Is(err, &CacheError{Type: ErrTypeFetch}) {
		t.Fatalf("Fetch() error = %v, want fetch failure", err)
	}

	data, err := os.ReadFile(filepath.Join(workDir, "SKILL.md"))
	if err != nil {
		t.Fatalf("previous working copy gone after failed fetch: %v", err)
	}
	if string(data) != "# v1\n" {
		t.Errorf("previous working copy content = %q, want %q", data, "# v1\n")
	}
}

func TestConcurrentFetchesCollapse(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := newTestCache(t, time.Minute, fetcher)

	const callers = 8
	var wg sync.WaitGroup
	paths := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = c.Fetch(context.Background(), "owner/repo")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("Fetch()[%d] error = %v", i, errs[i])
		}
		if paths[i] != paths[0] {
			t.Errorf("Fetch()[%d] = %s, want %s", i, paths[i], paths[0])
		}
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetcher called %d times for concurrent callers, want 1", got)
	}
}

func TestCleanupBoundaryInclusiveKeep(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := newTestCache(t, time.Minute, fetcher)

	if _, err := c.Fetch(context.Background(), "owner/kept"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if _, err := c.Fetch(context.Background(), "owner/removed"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	const days = 7
	ageEntry(t, c, "owner/kept", days*24*time.Hour)
	ageEntry(t, c, "owner/removed", days*24*time.Hour+time.Hour)

	removed, err := c.Cleanup(days)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Cleanup() removed %d entries, want 1", removed)
	}

	if _, err := os.Stat(c.entryDir(NormalizeRef("owner/kept"))); err != nil {
		t.Error("Cleanup() removed an entry aged exactly cleanupDays")
	}
	if _, err := os.Stat(c.entryDir(NormalizeRef("owner/removed"))); !os.IsNotExist(err) {
		t.Error("Cleanup() kept an entry older than cleanupDays")
	}
}

func TestClearRemovesEverything(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := newTestCache(t, time.Minute, fetcher)

	for _, ref := range []string{"owner/a", "owner/b", "owner/c"} {
		if _, err := c.Fetch(context.Background(), ref); err != nil {
			t.Fatalf("Fetch(%s) error = %v", ref, err)
		}
	}

	removed, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("Clear() removed %d entries, want 3", removed)
	}
}

func TestClearSkipsInflightEntry(t *testing.T) {
	fetcher := &fakeFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := newTestCache(t, time.Minute, fetcher)

	// A first fetch populates the entry, then goes stale.
	fastFetcher := &fakeFetcher{}
	c.fetcher = fastFetcher
	workDir, err := c.Fetch(context.Background(), "owner/repo")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	ageEntry(t, c, "owner/repo", 2*time.Minute)
	c.fetcher = fetcher

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Fetch(context.Background(), "owner/repo")
	}()
	<-fetcher.started

	removed, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("Clear() removed %d entries during in-flight fetch, want 0", removed)
	}
	if _, err := os.Stat(workDir); err != nil {
		t.Error("Clear() removed the working copy of an in-flight ref")
	}

	close(fetcher.release)
	<-done
}

func TestClearSkipsFirstFetchInFlight(t *testing.T) {
	fetcher := &fakeFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := newTestCache(t, time.Minute, fetcher)

	// No prior entry exists for the ref, so there is no metadata on
	// disk while the fetch runs.
	type result struct {
		workDir string
		err     error
	}
	done := make(chan result, 1)
	go func() {
		workDir, err := c.Fetch(context.Background(), "owner/repo")
		done <- result{workDir, err}
	}()
	<-fetcher.started

	removed, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("Clear() removed %d entries during a first fetch, want 0", removed)
	}

	close(fetcher.release)
	got := <-done
	if got.err != nil {
		t.Fatalf("Fetch() error after concurrent Clear() = %v", got.err)
	}
	if _, err := os.ReadFile(filepath.Join(got.workDir, "SKILL.md")); err != nil {
		t.Errorf("working copy missing after concurrent Clear(): %v", err)
	}
}

func TestNormalizeRef(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://github.com/Owner/Repo.git", "https://github.com/owner/repo"},
		{"  owner/repo/ ", "owner/repo"},
		{"owner/repo", "owner/repo"},
	}
	for _, tt := range tests {
		if got := NormalizeRef(tt.in); got != tt.want {
			t.Errorf("NormalizeRef(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
