package github

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Clone cache defaults.
const (
	DefaultCacheTTL      = 2 * time.Hour
	DefaultCacheMaxBytes = 2 << 30 // 2 GiB
)

// gitRunner abstracts git invocation so tests can substitute a fake.
type gitRunner interface {
	clone(ctx context.Context, url, dir string) error
	pull(ctx context.Context, dir string) error
}

type execGit struct{}

func (execGit) clone(ctx context.Context, url, dir string) error {
	return runGit(ctx, "", "clone", "--depth", "1", url, dir)
}

func (execGit) pull(ctx context.Context, dir string) error {
	return runGit(ctx, dir, "pull", "--ff-only")
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %s", args[0], strings.TrimSpace(string(out)))
	}
	return nil
}

// repoMeta tracks freshness and recency for one cached working copy.
type repoMeta struct {
	fetchedAt  time.Time
	lastAccess time.Time
}

// cloneCache keeps shallow working copies under a size- and age-bounded
// directory. A per-repository lock serializes clone/pull for that repo;
// different repos proceed in parallel. Eviction is LRU by access within
// the byte budget, never evicting the copy just handed out.
type cloneCache struct {
	dir      string
	ttl      time.Duration
	maxBytes int64
	git      gitRunner
	now      func() time.Time

	mu    sync.Mutex
	meta  map[string]*repoMeta  // key: owner/repo
	locks map[string]*sync.Mutex
}

func newCloneCache(dir string, ttl time.Duration, maxBytes int64) *cloneCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxBytes <= 0 {
		maxBytes = DefaultCacheMaxBytes
	}
	return &cloneCache{
		dir:      dir,
		ttl:      ttl,
		maxBytes: maxBytes,
		git:      execGit{},
		now:      time.Now,
		meta:     make(map[string]*repoMeta),
		locks:    make(map[string]*sync.Mutex),
	}
}

// checkout returns a working-copy path for the repo, cloning or refreshing
// as needed.
func (c *cloneCache) checkout(ctx context.Context, owner, repo string) (string, error) {
	key := owner + "/" + repo
	lock := c.repoLock(key)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Join(c.dir, owner, repo)
	now := c.now()

	c.mu.Lock()
	m := c.meta[key]
	c.mu.Unlock()

	switch {
	case m == nil || !dirExists(dir):
		if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
			return "", err
		}
		// A leftover directory from a previous process is re-cloned rather
		// than trusted: its freshness is unknown.
		_ = os.RemoveAll(dir)
		if err := c.git.clone(ctx, fmt.Sprintf("https://github.com/%s/%s.git", owner, repo), dir); err != nil {
			return "", err
		}
		m = &repoMeta{fetchedAt: now}

	case now.Sub(m.fetchedAt) > c.ttl:
		if err := c.git.pull(ctx, dir); err != nil {
			return "", err
		}
		m.fetchedAt = now
	}

	m.lastAccess = now
	c.mu.Lock()
	c.meta[key] = m
	c.mu.Unlock()

	c.evict(key)
	return dir, nil
}

// evict removes least-recently-accessed working copies until the cache fits
// the byte budget. keep is never evicted.
func (c *cloneCache) evict(keep string) {
	c.mu.Lock()
	keys := make([]string, 0, len(c.meta))
	for k := range c.meta {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.meta[keys[i]].lastAccess.Before(c.meta[keys[j]].lastAccess)
	})
	c.mu.Unlock()

	for _, key := range keys {
		if c.totalSize() <= c.maxBytes {
			return
		}
		if key == keep {
			continue
		}
		dir := filepath.Join(c.dir, filepath.FromSlash(key))
		_ = os.RemoveAll(dir)
		c.mu.Lock()
		delete(c.meta, key)
		c.mu.Unlock()
	}
}

func (c *cloneCache) totalSize() int64 {
	var total int64
	_ = filepath.WalkDir(c.dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, ierr := d.Info(); ierr == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

func (c *cloneCache) repoLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[key] = lock
	}
	return lock
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
