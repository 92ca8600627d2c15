// Package level converts a parsed map document into the level description
// record consumed by the world loader. The conversion is a pure function of
// its input: the same tree always produces the same record.
package level

import (
	"github.com/Faultbox/tileforge/pkg/gamemath"
	"github.com/Faultbox/tileforge/pkg/tiled"
)

// MapConfig echoes the map header.
type MapConfig struct {
	Width           int              `json:"width"`
	Height          int              `json:"height"`
	TileWidth       int              `json:"tileWidth"`
	TileHeight      int              `json:"tileHeight"`
	WorldWidth      int              `json:"worldWidth"`
	WorldHeight     int              `json:"worldHeight"`
	Orientation     string           `json:"orientation"`
	RenderOrder     string           `json:"renderOrder"`
	Infinite        bool             `json:"infinite"`
	BackgroundColor string           `json:"backgroundColor,omitempty"`
	Properties      tiled.Properties `json:"properties,omitempty"`
}

// VisualLayer is a parallax-capable background/foreground image layer.
type VisualLayer struct {
	Name      string  `json:"name"`
	Image     string  `json:"image"`
	ParallaxX float64 `json:"parallaxX"`
	ParallaxY float64 `json:"parallaxY"`
	RepeatX   bool    `json:"repeatX"`
	RepeatY   bool    `json:"repeatY"`
	OffsetX   float64 `json:"offsetX"`
	OffsetY   float64 `json:"offsetY"`
	Opacity   float64 `json:"opacity"`
	Tint      string  `json:"tint,omitempty"`
	Visible   bool    `json:"visible"`
}

// ChunkGrid is one chunk of an infinite tile layer with the gid split
// applied.
type ChunkGrid struct {
	X       int      `json:"x"`
	Y       int      `json:"y"`
	Width   int      `json:"width"`
	Height  int      `json:"height"`
	Indices []uint32 `json:"indices"`
	Flips   []byte   `json:"flips"`
}

// TileGrid is a renderable tile layer. Each cell's gid is split into a
// stripped tile index and a packed flip-flag byte, stored separately.
// Dense layers fill Indices/Flips; infinite layers fill Chunks.
type TileGrid struct {
	Name    string      `json:"name"`
	Width   int         `json:"width"`
	Height  int         `json:"height"`
	OffsetX float64     `json:"offsetX"`
	OffsetY float64     `json:"offsetY"`
	Opacity float64     `json:"opacity"`
	Visible bool        `json:"visible"`
	Indices []uint32    `json:"indices,omitempty"`
	Flips   []byte      `json:"flips,omitempty"`
	Chunks  []ChunkGrid `json:"chunks,omitempty"`
}

// CollisionGrid is the binary walkability grid rasterized from
// collision-named tile layers. For infinite maps the origin is the minimum
// chunk corner in cells.
type CollisionGrid struct {
	OriginX int    `json:"originX"`
	OriginY int    `json:"originY"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Solid   []bool `json:"solid"`
}

// At reports whether the cell at map coordinates (x, y) is solid.
// Out-of-range cells are open.
func (g *CollisionGrid) At(x, y int) bool {
	x -= g.OriginX
	y -= g.OriginY
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return false
	}
	return g.Solid[y*g.Width+x]
}

// Sector is a named polygon region used for gameplay zoning.
type Sector struct {
	Name       string           `json:"name"`
	Points     []gamemath.Vec2  `json:"points"`
	Properties tiled.Properties `json:"properties,omitempty"`
}

// CollisionShape is an axis-aligned collision rectangle authored as an
// explicitly collision-typed object.
type CollisionShape struct {
	ID     int     `json:"id"`
	Name   string  `json:"name,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Entity describes one authored game object.
type Entity struct {
	ID         int              `json:"id"`
	Name       string           `json:"name,omitempty"`
	Type       string           `json:"type,omitempty"`
	Position   gamemath.Vec2    `json:"position"`
	Size       gamemath.Vec2    `json:"size"`
	Rotation   float64          `json:"rotation"`
	Waypoints  []gamemath.Vec2  `json:"waypoints,omitempty"` // patrol paths only
	Properties tiled.Properties `json:"properties,omitempty"`
}

// ObjectLink is a directed, typed relationship between two authored
// objects. An unresolved target keeps its raw id with an empty name.
type ObjectLink struct {
	SourceID   int    `json:"sourceId"`
	TargetID   int    `json:"targetId"`
	TargetName string `json:"targetName"`
	Type       string `json:"type"`
}

// ResourceCatalog lists every external path the map references, each list
// deduplicated and sorted.
type ResourceCatalog struct {
	Tilesets []string `json:"tilesets"`
	Images   []string `json:"images"`
	Audio    []string `json:"audio"`
}

// Definition is the complete level description handed to the world loader.
// Ownership passes entirely to the caller.
type Definition struct {
	Config          MapConfig        `json:"config"`
	VisualLayers    []VisualLayer    `json:"visualLayers"`
	TileLayers      []TileGrid       `json:"tileLayers"`
	Collision       CollisionGrid    `json:"collision"`
	Sectors         []Sector         `json:"sectors"`
	CollisionShapes []CollisionShape `json:"collisionShapes"`
	Static          []Entity         `json:"static"`
	Dynamic         []Entity         `json:"dynamic"`
	PatrolPaths     []Entity         `json:"patrolPaths"`
	AmbientSounds   []Entity         `json:"ambientSounds"`
	Links           []ObjectLink     `json:"links"`
	Resources       ResourceCatalog  `json:"resources"`
}
