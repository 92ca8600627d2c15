package tiled

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"village.tmx", FormatXML},
		{"terrain.tsx", FormatXML},
		{"legacy.XML", FormatXML},
		{"village.tmj", FormatJSON},
		{"terrain.tsj", FormatJSON},
		{"map.json", FormatJSON},
	}

	for _, tt := range tests {
		got, err := DetectFormat(tt.path)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected format %d, got %d", tt.path, tt.want, got)
		}
	}

	if _, err := DetectFormat("map.bin"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

// writeTestTileset drops a minimal external tileset file into dir.
func writeTestTileset(t *testing.T, dir, name string, tileCount int) string {
	t.Helper()
	src := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<tileset name="shared" tilewidth="16" tileheight="16" tilecount="%d" columns="4">
 <image source="shared.png" width="64" height="64"/>
</tileset>`, tileCount)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatalf("failed to write tileset: %v", err)
	}
	return path
}

func TestLoadMapFileExternalTileset(t *testing.T) {
	dir := t.TempDir()
	writeTestTileset(t, dir, "shared.tsx", 16)

	mapSrc := `<map orientation="orthogonal" width="1" height="1" tilewidth="16" tileheight="16">
 <tileset firstgid="37" source="shared.tsx"/>
 <layer id="1" name="ground" width="1" height="1"><data encoding="csv">37</data></layer>
</map>`
	mapPath := filepath.Join(dir, "level.tmx")
	if err := os.WriteFile(mapPath, []byte(mapSrc), 0644); err != nil {
		t.Fatalf("failed to write map: %v", err)
	}

	m, err := LoadMapFile(mapPath, nil)
	if err != nil {
		t.Fatalf("failed to load map: %v", err)
	}

	if len(m.Tilesets) != 1 {
		t.Fatalf("expected 1 tileset, got %d", len(m.Tilesets))
	}
	ts := m.Tilesets[0]

	// FirstGID and Source belong to the reference and must survive the
	// copy from the shared definition
	if ts.FirstGID != 37 {
		t.Errorf("expected firstgid 37, got %d", ts.FirstGID)
	}
	if ts.Source != "shared.tsx" {
		t.Errorf("expected source shared.tsx, got %q", ts.Source)
	}
	if ts.Name != "shared" || ts.TileCount != 16 || ts.Image != "shared.png" {
		t.Errorf("shared fields not resolved: %+v", ts)
	}

	if got := m.TilesetForTile(40); got != ts {
		t.Errorf("expected gid 40 to resolve to the tileset, got %v", got)
	}
	if got := m.TilesetForTile(36); got != nil {
		t.Errorf("expected gid 36 to resolve to nothing, got %v", got)
	}
}

func TestLoadMapFileMissingTileset(t *testing.T) {
	dir := t.TempDir()
	mapSrc := `<map orientation="orthogonal" width="1" height="1" tilewidth="16" tileheight="16">
 <tileset firstgid="1" source="missing.tsx"/>
</map>`
	mapPath := filepath.Join(dir, "level.tmx")
	if err := os.WriteFile(mapPath, []byte(mapSrc), 0644); err != nil {
		t.Fatalf("failed to write map: %v", err)
	}

	if _, err := LoadMapFile(mapPath, nil); err == nil {
		t.Error("expected error for missing external tileset, got nil")
	}
}

func TestParseMapTilesetOverlap(t *testing.T) {
	src := `<map orientation="orthogonal" width="1" height="1" tilewidth="16" tileheight="16">
 <tileset firstgid="1" name="a" tilewidth="16" tileheight="16" tilecount="64" columns="8"/>
 <tileset firstgid="32" name="b" tilewidth="16" tileheight="16" tilecount="8" columns="8"/>
</map>`
	_, err := ParseMap([]byte(src), FormatXML, nil)
	if !errors.Is(err, ErrTilesetOverlap) {
		t.Errorf("expected ErrTilesetOverlap, got %v", err)
	}
}

func TestParseMapTilesetAdjacent(t *testing.T) {
	// firstgid exactly one past the previous range is legal
	src := `<map orientation="orthogonal" width="1" height="1" tilewidth="16" tileheight="16">
 <tileset firstgid="1" name="a" tilewidth="16" tileheight="16" tilecount="64" columns="8"/>
 <tileset firstgid="65" name="b" tilewidth="16" tileheight="16" tilecount="8" columns="8"/>
</map>`
	m, err := ParseMap([]byte(src), FormatXML, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Tilesets) != 2 {
		t.Fatalf("expected 2 tilesets, got %d", len(m.Tilesets))
	}
}

func TestLoadMapFileSharedCache(t *testing.T) {
	dir := t.TempDir()
	writeTestTileset(t, dir, "shared.tsx", 16)

	mapSrc := `<map orientation="orthogonal" width="1" height="1" tilewidth="16" tileheight="16">
 <tileset firstgid="1" source="shared.tsx"/>
</map>`
	for _, name := range []string{"a.tmx", "b.tmx"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(mapSrc), 0644); err != nil {
			t.Fatalf("failed to write map: %v", err)
		}
	}

	opts := &Options{Cache: NewTilesetCache(nil)}
	for _, name := range []string{"a.tmx", "b.tmx"} {
		if _, err := LoadMapFile(filepath.Join(dir, name), opts); err != nil {
			t.Fatalf("failed to load %s: %v", name, err)
		}
	}

	hits, misses := opts.Cache.Stats()
	if misses != 1 {
		t.Errorf("expected 1 miss for 2 maps, got %d", misses)
	}
	if hits != 1 {
		t.Errorf("expected 1 hit for 2 maps, got %d", hits)
	}
}
