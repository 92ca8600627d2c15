// Package tiled parses Tiled map editor documents into one canonical
// in-memory model. Both on-disk syntaxes (TMX/XML and TMJ/JSON) produce the
// same tree, so consumers never see format differences. The model is built
// once by a parse call and is read-only afterwards.
package tiled

import (
	"fmt"
	"strconv"

	"github.com/Faultbox/tileforge/pkg/gamemath"
)

// Orientation is the map projection declared in the document header.
type Orientation int

// Supported orientations.
const (
	Orthogonal Orientation = iota
	Isometric
	Staggered
	Hexagonal
)

// String returns the orientation name as written in map files.
func (o Orientation) String() string {
	switch o {
	case Orthogonal:
		return "orthogonal"
	case Isometric:
		return "isometric"
	case Staggered:
		return "staggered"
	case Hexagonal:
		return "hexagonal"
	default:
		return fmt.Sprintf("Unknown(%d)", int(o))
	}
}

func parseOrientation(s string) (Orientation, error) {
	switch s {
	case "orthogonal", "":
		return Orthogonal, nil
	case "isometric":
		return Isometric, nil
	case "staggered":
		return Staggered, nil
	case "hexagonal":
		return Hexagonal, nil
	default:
		return Orthogonal, fmt.Errorf("%w: %q", ErrUnknownOrientation, s)
	}
}

// PropertyType is the declared type of a custom property.
type PropertyType string

// Property types supported by the editor.
const (
	PropString PropertyType = "string"
	PropInt    PropertyType = "int"
	PropFloat  PropertyType = "float"
	PropBool   PropertyType = "bool"
	PropColor  PropertyType = "color"
	PropFile   PropertyType = "file"
	PropObject PropertyType = "object" // numeric reference to another object
)

// Property is one typed key/value pair. The value is kept in its canonical
// string form; typed access goes through the Properties getters.
type Property struct {
	Name  string
	Type  PropertyType
	Value string
}

// Properties is an ordered property list. Order follows the source document
// so conversions stay deterministic.
type Properties []Property

// Get returns the raw value of the named property.
func (p Properties) Get(name string) (string, bool) {
	for i := range p {
		if p[i].Name == name {
			return p[i].Value, true
		}
	}
	return "", false
}

// GetString returns the named property as a string, or "" if absent.
func (p Properties) GetString(name string) string {
	v, _ := p.Get(name)
	return v
}

// GetInt returns the named property as an int, or 0 on absence or parse
// failure.
func (p Properties) GetInt(name string) int {
	v, ok := p.Get(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// GetFloat returns the named property as a float64, or 0 on absence or
// parse failure.
func (p Properties) GetFloat(name string) float64 {
	v, ok := p.Get(name)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

// GetBool returns the named property as a bool, or false on absence or
// parse failure.
func (p Properties) GetBool(name string) bool {
	v, ok := p.Get(name)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// GetObjectRef returns the named object-reference property as an object id,
// or 0 if the property is absent, not object-typed, or malformed.
func (p Properties) GetObjectRef(name string) int {
	for i := range p {
		if p[i].Name != name || p[i].Type != PropObject {
			continue
		}
		id, err := strconv.Atoi(p[i].Value)
		if err != nil {
			return 0
		}
		return id
	}
	return 0
}

// ObjectShape is the geometric kind of an authored object.
type ObjectShape int

// Object shapes.
const (
	ShapeRectangle ObjectShape = iota
	ShapePoint
	ShapeEllipse
	ShapePolygon
	ShapePolyline
	ShapeText
)

// String returns a human-readable shape name.
func (s ObjectShape) String() string {
	switch s {
	case ShapeRectangle:
		return "rectangle"
	case ShapePoint:
		return "point"
	case ShapeEllipse:
		return "ellipse"
	case ShapePolygon:
		return "polygon"
	case ShapePolyline:
		return "polyline"
	case ShapeText:
		return "text"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Object is one authored map entity.
type Object struct {
	ID         int
	Name       string
	Type       string
	X, Y       float64
	Width      float64
	Height     float64
	Rotation   float64
	GID        GID // nonzero for tile objects (anchored bottom-left)
	Visible    bool
	Shape      ObjectShape
	Points     []gamemath.Vec2 // polygon/polyline vertices, relative to X/Y
	Text       string          // text payload for ShapeText
	Properties Properties
}

// LayerKind discriminates the layer node variants.
type LayerKind int

// Layer kinds.
const (
	TileLayerKind LayerKind = iota
	ObjectLayerKind
	ImageLayerKind
	GroupLayerKind
)

// String returns a human-readable layer kind name.
func (k LayerKind) String() string {
	switch k {
	case TileLayerKind:
		return "tile"
	case ObjectLayerKind:
		return "object"
	case ImageLayerKind:
		return "image"
	case GroupLayerKind:
		return "group"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Chunk is an independently-positioned rectangular tile block, used when
// the map is infinite. Construction enforces len(Tiles) == Width*Height.
type Chunk struct {
	X, Y   int // origin in tile coordinates
	Width  int
	Height int
	Tiles  []GID
}

func newChunk(x, y, width, height int, tiles []GID) (Chunk, error) {
	if len(tiles) != width*height {
		return Chunk{}, fmt.Errorf("%w: chunk at (%d,%d) expected %d tiles (%dx%d), got %d",
			ErrTileCountMismatch, x, y, width*height, width, height, len(tiles))
	}
	return Chunk{X: x, Y: y, Width: width, Height: height, Tiles: tiles}, nil
}

// Layer is one node of the layer tree. Only the fields relevant to its Kind
// are populated.
type Layer struct {
	ID         int
	Name       string
	Kind       LayerKind
	Visible    bool
	Opacity    float64
	OffsetX    float64
	OffsetY    float64
	TintColor  string
	Properties Properties

	// TileLayerKind
	Width  int
	Height int
	Tiles  []GID   // dense grid, row-major; empty when the map is infinite
	Chunks []Chunk // infinite maps only

	// ObjectLayerKind
	Objects []*Object

	// ImageLayerKind
	Image     string
	ParallaxX float64
	ParallaxY float64
	RepeatX   bool
	RepeatY   bool

	// GroupLayerKind
	Layers []*Layer
}

// Frame is one step of a tile animation.
type Frame struct {
	TileID     uint32
	DurationMS int
}

// TilesetTile carries per-tile metadata from a tileset definition.
// Objects holds the tile's authored collision shapes, if any.
type TilesetTile struct {
	ID         uint32
	Properties Properties
	Animation  []Frame
	Objects    []*Object
}

// Tileset is either an embedded definition or, before resolution, an
// external reference carrying only FirstGID and Source.
type Tileset struct {
	FirstGID uint32
	Source   string // external definition path; empty once resolved or when embedded

	Name        string
	TileWidth   int
	TileHeight  int
	TileCount   int
	Columns     int
	Spacing     int
	Margin      int
	OffsetX     int // tile drawing offset in pixels
	OffsetY     int
	Image       string
	ImageWidth  int
	ImageHeight int
	Tiles       []TilesetTile
	Properties  Properties
}

// LastGID returns the highest gid covered by this tileset. Only meaningful
// once the tileset is resolved (TileCount known).
func (t *Tileset) LastGID() uint32 {
	if t.TileCount == 0 {
		return t.FirstGID
	}
	return t.FirstGID + uint32(t.TileCount) - 1
}

// Contains reports whether the stripped tile id falls inside this tileset's
// gid range.
func (t *Tileset) Contains(tileID uint32) bool {
	return tileID >= t.FirstGID && tileID <= t.LastGID()
}

// TilesetTile returns the per-tile metadata for a local tile id, or nil.
func (t *Tileset) TilesetTile(localID uint32) *TilesetTile {
	for i := range t.Tiles {
		if t.Tiles[i].ID == localID {
			return &t.Tiles[i]
		}
	}
	return nil
}

// Map is the canonical tree root.
type Map struct {
	Version         string
	Orientation     Orientation
	RenderOrder     string
	Width           int // in tiles
	Height          int
	TileWidth       int // in pixels
	TileHeight      int
	Infinite        bool
	BackgroundColor string
	NextLayerID     int
	NextObjectID    int
	Tilesets        []*Tileset
	Layers          []*Layer // top-level layers in document order
	Properties      Properties
}

// TilesetForTile returns the tileset covering the given stripped tile id,
// or nil when no tileset claims it.
func (m *Map) TilesetForTile(tileID uint32) *Tileset {
	for _, ts := range m.Tilesets {
		if ts.Contains(tileID) {
			return ts
		}
	}
	return nil
}
