package tiled

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Parse errors.
var (
	ErrUnknownOrientation = errors.New("unknown map orientation")
	ErrUnknownFormat      = errors.New("unknown document format")
	ErrTileCountMismatch  = errors.New("decoded tile count does not match declared dimensions")
	ErrGroupTooDeep       = errors.New("group layer nesting exceeds maximum depth")
	ErrTilesetOverlap     = errors.New("tileset firstgid ranges overlap")
)

// Format identifies the on-disk document syntax.
type Format int

// Supported document formats.
const (
	FormatXML  Format = iota // .tmx / .tsx / .xml
	FormatJSON               // .tmj / .tsj / .json
)

// DetectFormat guesses the document format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tmx", ".tsx", ".xml":
		return FormatXML, nil
	case ".tmj", ".tsj", ".json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
}

// DefaultMaxGroupDepth bounds group layer recursion so a pathological
// document cannot exhaust the stack.
const DefaultMaxGroupDepth = 16

// Options configures parsing. The zero value is usable.
type Options struct {
	// Logger receives lenient-decode warnings and resolution notices.
	// Defaults to a no-op logger.
	Logger *zap.Logger

	// Cache resolves external tileset references. When nil a private cache
	// is created per parse call.
	Cache *TilesetCache

	// BaseDir anchors relative external tileset paths. LoadMapFile fills
	// it from the map path.
	BaseDir string

	// MaxDecompressedBytes caps compressed payload expansion.
	// DefaultMaxDecompressedBytes when <= 0.
	MaxDecompressedBytes int64

	// MaxGroupDepth bounds group layer nesting. DefaultMaxGroupDepth
	// when <= 0.
	MaxGroupDepth int
}

func (o *Options) logger() *zap.Logger {
	if o == nil || o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *Options) maxBytes() int64 {
	if o == nil || o.MaxDecompressedBytes <= 0 {
		return DefaultMaxDecompressedBytes
	}
	return o.MaxDecompressedBytes
}

func (o *Options) maxDepth() int {
	if o == nil || o.MaxGroupDepth <= 0 {
		return DefaultMaxGroupDepth
	}
	return o.MaxGroupDepth
}

func (o *Options) cache() *TilesetCache {
	if o == nil || o.Cache == nil {
		return NewTilesetCache(nil)
	}
	return o.Cache
}

// LoadMapFile reads and parses a map document, resolving external tileset
// references relative to the map's directory.
func LoadMapFile(path string, opts *Options) (*Map, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map file: %w", err)
	}

	var local Options
	if opts != nil {
		local = *opts
	}
	if local.BaseDir == "" {
		local.BaseDir = filepath.Dir(path)
	}

	m, err := ParseMap(data, format, &local)
	if err != nil {
		return nil, fmt.Errorf("parsing map %s: %w", path, err)
	}
	return m, nil
}

// ParseMap parses a map document from raw bytes, then resolves external
// tilesets and validates gid ranges.
func ParseMap(data []byte, format Format, opts *Options) (*Map, error) {
	var (
		m   *Map
		err error
	)
	switch format {
	case FormatXML:
		m, err = parseMapXML(data, opts)
	case FormatJSON:
		m, err = parseMapJSON(data, opts)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, int(format))
	}
	if err != nil {
		return nil, err
	}

	if err := resolveTilesets(m, opts); err != nil {
		return nil, err
	}
	if err := validateTilesetRanges(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseTileset parses a standalone tileset document (.tsx/.tsj).
func ParseTileset(data []byte, format Format) (*Tileset, error) {
	switch format {
	case FormatXML:
		return parseTilesetXML(data)
	case FormatJSON:
		return parseTilesetJSON(data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, int(format))
	}
}

// resolveTilesets fills every external tileset reference from the cache.
// FirstGID and Source belong to the reference, not the shared file, and are
// preserved; every other field is copied from the cached definition.
func resolveTilesets(m *Map, opts *Options) error {
	cache := opts.cache()
	var baseDir string
	if opts != nil {
		baseDir = opts.BaseDir
	}

	for _, ts := range m.Tilesets {
		if ts.Source == "" {
			continue
		}

		path := ts.Source
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}

		shared, err := cache.GetTileset(path)
		if err != nil {
			return fmt.Errorf("resolving tileset %s: %w", ts.Source, err)
		}

		firstGID, source := ts.FirstGID, ts.Source
		*ts = *shared
		ts.FirstGID = firstGID
		ts.Source = source
	}
	return nil
}

// validateTilesetRanges rejects maps whose resolved tileset gid ranges
// overlap; gid lookup would be ambiguous.
func validateTilesetRanges(m *Map) error {
	if len(m.Tilesets) < 2 {
		return nil
	}

	sorted := make([]*Tileset, len(m.Tilesets))
	copy(sorted, m.Tilesets)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FirstGID < sorted[j].FirstGID
	})

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.TileCount > 0 && cur.FirstGID <= prev.LastGID() {
			return fmt.Errorf("%w: %q [%d..%d] and %q starting at %d",
				ErrTilesetOverlap, prev.Name, prev.FirstGID, prev.LastGID(), cur.Name, cur.FirstGID)
		}
	}
	return nil
}

// validateDenseLayer enforces the dense tile-count invariant shared by both
// readers. All later coordinate math assumes exact sizing.
func validateDenseLayer(name string, width, height, got int) error {
	if got != width*height {
		return fmt.Errorf("%w: layer %q expected %d tiles (%dx%d), got %d",
			ErrTileCountMismatch, name, width*height, width, height, got)
	}
	return nil
}
