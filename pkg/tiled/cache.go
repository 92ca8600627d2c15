package tiled

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// TilesetCache memoizes parsed external tileset files by path. One lock
// covers both lookup and insert, so a concurrent miss on the same path
// cannot double-parse. Cached entries are never mutated; callers copy out
// the reference-local fields (FirstGID, Source) instead.
type TilesetCache struct {
	mu      sync.Mutex
	entries map[string]*Tileset
	hits    int
	misses  int

	logger *zap.Logger

	watchOnce sync.Once
	watchStop chan struct{}
	watcher   *fsnotify.Watcher
}

// NewTilesetCache creates an empty cache. A nil logger disables logging.
func NewTilesetCache(logger *zap.Logger) *TilesetCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TilesetCache{
		entries: make(map[string]*Tileset),
		logger:  logger,
	}
}

// GetTileset returns the shared tileset definition for path, parsing and
// inserting it on first access. A parse failure is returned to the caller
// and nothing is inserted.
func (c *TilesetCache) GetTileset(path string) (*Tileset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts, ok := c.entries[path]; ok {
		c.hits++
		return ts, nil
	}
	c.misses++

	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tileset %s: %w", path, err)
	}

	ts, err := ParseTileset(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing tileset %s: %w", path, err)
	}

	c.entries[path] = ts
	c.logger.Debug("tileset cached", zap.String("path", path), zap.Int("tiles", ts.TileCount))
	return ts, nil
}

// Evict removes one entry so the next access reparses the file.
func (c *TilesetCache) Evict(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[path]; ok {
		delete(c.entries, path)
		c.logger.Info("tileset evicted", zap.String("path", path))
	}
}

// Clear empties the cache and resets the counters.
func (c *TilesetCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Tileset)
	c.hits = 0
	c.misses = 0
}

// Len returns the number of cached tilesets.
func (c *TilesetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache hit/miss counters.
func (c *TilesetCache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Watch evicts cached tilesets when their files change on disk, so edits
// made in the map editor take effect on the next load. Events are debounced
// because editors fire several writes per save. Call the returned function
// to stop watching.
func (c *TilesetCache) Watch(dirs ...string) (stop func() error, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("starting tileset watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	c.watcher = w
	c.watchStop = make(chan struct{})
	go c.watchLoop()

	return func() error {
		var err error
		c.watchOnce.Do(func() {
			close(c.watchStop)
			err = w.Close()
		})
		return err
	}, nil
}

func (c *TilesetCache) watchLoop() {
	last := make(map[string]time.Time)
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !isTilesetFile(event.Name) {
				continue
			}
			now := time.Now()
			if t, ok := last[event.Name]; ok && now.Sub(t) < 100*time.Millisecond {
				continue
			}
			last[event.Name] = now

			c.Evict(event.Name)
			if abs, err := filepath.Abs(event.Name); err == nil {
				c.Evict(abs)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("tileset watcher error", zap.Error(err))
		case <-c.watchStop:
			return
		}
	}
}

func isTilesetFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx", ".tsj", ".xml", ".json":
		return true
	}
	return false
}
