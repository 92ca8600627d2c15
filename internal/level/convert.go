package level

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/tileforge/pkg/gamemath"
	"github.com/Faultbox/tileforge/pkg/tiled"
)

// Conversion errors.
var (
	ErrNilMap              = errors.New("nil map")
	ErrBadCollisionPattern = errors.New("invalid collision layer pattern")
	ErrLayerTreeTooDeep    = errors.New("layer tree exceeds maximum depth")
)

// DefaultCollisionLayerPattern matches the tile layers rasterized into the
// collision grid.
const DefaultCollisionLayerPattern = `(?i)^collision`

// DefaultRelationshipKeys are the property names scanned for object links.
var DefaultRelationshipKeys = []string{"target", "link", "leader", "trigger"}

// Options configures a conversion. The zero value uses the defaults above.
type Options struct {
	// CollisionLayerPattern is a regular expression selecting collision
	// tile layers by name.
	CollisionLayerPattern string

	// Categories overrides the shared classification table.
	Categories *CategoryTable

	// RelationshipKeys overrides the property names scanned for links.
	RelationshipKeys []string

	// Logger receives phase diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// flatLayer is a leaf of the layer tree with group offsets, opacity, and
// visibility folded in.
type flatLayer struct {
	layer   *tiled.Layer
	offsetX float64
	offsetY float64
	opacity float64
	visible bool
}

type linkSource struct {
	id    int
	props tiled.Properties
}

type converter struct {
	m           *tiled.Map
	def         *Definition
	collisionRe *regexp.Regexp
	table       *CategoryTable
	relKeys     map[string]struct{}
	log         *zap.Logger

	flat    []flatLayer
	names   map[int]string
	sources []linkSource
}

// Convert runs the six conversion phases over a parsed map and returns a
// fresh level definition. Any phase failure aborts the whole call; there is
// never a partial record.
func Convert(m *tiled.Map, opts *Options) (*Definition, error) {
	if m == nil {
		return nil, ErrNilMap
	}
	if opts == nil {
		opts = &Options{}
	}

	pattern := opts.CollisionLayerPattern
	if pattern == "" {
		pattern = DefaultCollisionLayerPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadCollisionPattern, pattern, err)
	}

	table := opts.Categories
	if table == nil {
		table = DefaultCategoryTable()
	}

	keys := opts.RelationshipKeys
	if keys == nil {
		keys = DefaultRelationshipKeys
	}
	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	c := &converter{
		m:           m,
		def:         &Definition{},
		collisionRe: re,
		table:       table,
		relKeys:     keySet,
		log:         log,
		names:       make(map[int]string),
	}

	c.flat, err = flattenLayers(m.Layers, 0, 0, 1, true, 1, nil)
	if err != nil {
		return nil, err
	}

	c.buildConfig()
	c.buildVisualLayers()
	if err := c.buildSpatial(); err != nil {
		return nil, err
	}
	c.buildEntities()
	c.buildLinks()
	c.buildResources()

	log.Debug("map converted",
		zap.Int("tileLayers", len(c.def.TileLayers)),
		zap.Int("entities", len(c.sources)),
		zap.Int("links", len(c.def.Links)))
	return c.def, nil
}

// flattenLayers walks the layer tree depth-first in document order,
// accumulating group offsets, opacity, and visibility onto the leaves.
func flattenLayers(layers []*tiled.Layer, offX, offY, opacity float64, visible bool, depth int, out []flatLayer) ([]flatLayer, error) {
	if depth > tiled.DefaultMaxGroupDepth {
		return nil, fmt.Errorf("%w: %d", ErrLayerTreeTooDeep, depth)
	}

	for _, l := range layers {
		ox := offX + l.OffsetX
		oy := offY + l.OffsetY
		op := opacity * l.Opacity
		vis := visible && l.Visible

		if l.Kind == tiled.GroupLayerKind {
			var err error
			out, err = flattenLayers(l.Layers, ox, oy, op, vis, depth+1, out)
			if err != nil {
				return nil, err
			}
			continue
		}
		out = append(out, flatLayer{layer: l, offsetX: ox, offsetY: oy, opacity: op, visible: vis})
	}
	return out, nil
}

// Phase 1: map configuration and metadata.
func (c *converter) buildConfig() {
	m := c.m
	c.def.Config = MapConfig{
		Width:           m.Width,
		Height:          m.Height,
		TileWidth:       m.TileWidth,
		TileHeight:      m.TileHeight,
		WorldWidth:      m.Width * m.TileWidth,
		WorldHeight:     m.Height * m.TileHeight,
		Orientation:     m.Orientation.String(),
		RenderOrder:     m.RenderOrder,
		Infinite:        m.Infinite,
		BackgroundColor: m.BackgroundColor,
		Properties:      m.Properties,
	}
}

// Phase 2: visual layers, in layer stacking order.
func (c *converter) buildVisualLayers() {
	for _, fl := range c.flat {
		switch fl.layer.Kind {
		case tiled.ImageLayerKind:
			l := fl.layer
			c.def.VisualLayers = append(c.def.VisualLayers, VisualLayer{
				Name:      l.Name,
				Image:     l.Image,
				ParallaxX: l.ParallaxX,
				ParallaxY: l.ParallaxY,
				RepeatX:   l.RepeatX,
				RepeatY:   l.RepeatY,
				OffsetX:   fl.offsetX,
				OffsetY:   fl.offsetY,
				Opacity:   fl.opacity,
				Tint:      l.TintColor,
				Visible:   fl.visible,
			})

		case tiled.TileLayerKind:
			if c.isCollisionLayer(fl.layer) {
				continue // rasterized in phase 3
			}
			c.def.TileLayers = append(c.def.TileLayers, c.buildTileGrid(fl))
		}
	}
}

func (c *converter) isCollisionLayer(l *tiled.Layer) bool {
	return c.collisionRe.MatchString(l.Name)
}

func (c *converter) buildTileGrid(fl flatLayer) TileGrid {
	l := fl.layer
	grid := TileGrid{
		Name:    l.Name,
		Width:   l.Width,
		Height:  l.Height,
		OffsetX: fl.offsetX,
		OffsetY: fl.offsetY,
		Opacity: fl.opacity,
		Visible: fl.visible,
	}

	if len(l.Chunks) > 0 {
		for _, ch := range l.Chunks {
			indices, flips := splitGIDs(ch.Tiles)
			grid.Chunks = append(grid.Chunks, ChunkGrid{
				X: ch.X, Y: ch.Y, Width: ch.Width, Height: ch.Height,
				Indices: indices, Flips: flips,
			})
		}
		return grid
	}

	grid.Indices, grid.Flips = splitGIDs(l.Tiles)
	return grid
}

// splitGIDs separates each cell into its stripped tile index and packed
// flip byte.
func splitGIDs(gids []tiled.GID) ([]uint32, []byte) {
	indices := make([]uint32, len(gids))
	flips := make([]byte, len(gids))
	for i, g := range gids {
		indices[i] = g.TileID()
		flips[i] = g.FlipByte()
	}
	return indices, flips
}

// Phase 3: spatial structures.
func (c *converter) buildSpatial() error {
	if err := c.rasterizeCollision(); err != nil {
		return err
	}

	for _, fl := range c.flat {
		if fl.layer.Kind != tiled.ObjectLayerKind {
			continue
		}
		for _, o := range fl.layer.Objects {
			switch {
			case o.Shape == tiled.ShapePolygon:
				c.def.Sectors = append(c.def.Sectors, Sector{
					Name:       o.Name,
					Points:     absolutePoints(o, fl),
					Properties: o.Properties,
				})
			case o.Shape == tiled.ShapeRectangle && o.Type == c.table.CollisionType:
				c.def.CollisionShapes = append(c.def.CollisionShapes, CollisionShape{
					ID:     o.ID,
					Name:   o.Name,
					X:      o.X + fl.offsetX,
					Y:      o.Y + fl.offsetY,
					Width:  o.Width,
					Height: o.Height,
				})
			}
		}
	}
	return nil
}

func (c *converter) collisionLayers() []flatLayer {
	var out []flatLayer
	for _, fl := range c.flat {
		if fl.layer.Kind == tiled.TileLayerKind && c.isCollisionLayer(fl.layer) {
			out = append(out, fl)
		}
	}
	return out
}

// rasterizeCollision merges every collision tile layer into one binary
// grid; any nonzero tile index marks the cell opaque.
func (c *converter) rasterizeCollision() error {
	layers := c.collisionLayers()
	if len(layers) == 0 {
		return nil
	}

	grid := CollisionGrid{}
	if c.m.Infinite {
		minX, minY, maxX, maxY, ok := chunkBounds(layers)
		if !ok {
			return nil
		}
		grid.OriginX = minX
		grid.OriginY = minY
		grid.Width = maxX - minX
		grid.Height = maxY - minY
	} else {
		grid.Width = c.m.Width
		grid.Height = c.m.Height
	}
	grid.Solid = make([]bool, grid.Width*grid.Height)

	mark := func(x, y int, g tiled.GID) {
		if g.TileID() == 0 {
			return
		}
		x -= grid.OriginX
		y -= grid.OriginY
		if x < 0 || y < 0 || x >= grid.Width || y >= grid.Height {
			return
		}
		grid.Solid[y*grid.Width+x] = true
	}

	for _, fl := range layers {
		l := fl.layer
		if len(l.Chunks) > 0 {
			for _, ch := range l.Chunks {
				for i, g := range ch.Tiles {
					mark(ch.X+i%ch.Width, ch.Y+i/ch.Width, g)
				}
			}
			continue
		}
		for i, g := range l.Tiles {
			mark(i%l.Width, i/l.Width, g)
		}
	}

	c.def.Collision = grid
	return nil
}

func chunkBounds(layers []flatLayer) (minX, minY, maxX, maxY int, ok bool) {
	first := true
	for _, fl := range layers {
		for _, ch := range fl.layer.Chunks {
			if first {
				minX, minY = ch.X, ch.Y
				maxX, maxY = ch.X+ch.Width, ch.Y+ch.Height
				first = false
				continue
			}
			minX = min(minX, ch.X)
			minY = min(minY, ch.Y)
			maxX = max(maxX, ch.X+ch.Width)
			maxY = max(maxY, ch.Y+ch.Height)
		}
	}
	return minX, minY, maxX, maxY, !first
}

// Phase 4: game objects. Every object not consumed as a spatial structure
// becomes an entity descriptor in exactly one category bucket.
func (c *converter) buildEntities() {
	for _, fl := range c.flat {
		if fl.layer.Kind != tiled.ObjectLayerKind {
			continue
		}
		for _, o := range fl.layer.Objects {
			if o.Shape == tiled.ShapePolygon {
				continue
			}
			if o.Shape == tiled.ShapeRectangle && o.Type == c.table.CollisionType {
				continue
			}

			ent := Entity{
				ID:         o.ID,
				Name:       o.Name,
				Type:       o.Type,
				Position:   c.entityPosition(o, fl),
				Size:       gamemath.Vec2{X: o.Width, Y: o.Height},
				Rotation:   o.Rotation,
				Properties: o.Properties,
			}

			cat := c.table.Categorize(o)
			if cat == CategoryPatrolPath {
				ent.Waypoints = absolutePoints(o, fl)
			}

			switch cat {
			case CategoryDynamic:
				c.def.Dynamic = append(c.def.Dynamic, ent)
			case CategoryPatrolPath:
				c.def.PatrolPaths = append(c.def.PatrolPaths, ent)
			case CategoryAmbientSound:
				c.def.AmbientSounds = append(c.def.AmbientSounds, ent)
			default:
				c.def.Static = append(c.def.Static, ent)
			}

			c.names[o.ID] = o.Name
			c.sources = append(c.sources, linkSource{id: o.ID, props: o.Properties})
		}
	}
}

// entityPosition folds in the layer offset, flips tile objects from their
// bottom-left anchor to top-left, and projects isometric maps into screen
// space.
func (c *converter) entityPosition(o *tiled.Object, fl flatLayer) gamemath.Vec2 {
	x := o.X + fl.offsetX
	y := o.Y + fl.offsetY
	if o.GID != 0 {
		y -= o.Height
	}

	if c.m.Orientation == tiled.Isometric && c.m.TileHeight > 0 {
		th := float64(c.m.TileHeight)
		px, py := gamemath.WorldToIso(x/th, y/th, float64(c.m.TileWidth), th)
		return gamemath.Vec2{X: px, Y: py}
	}
	return gamemath.Vec2{X: x, Y: y}
}

// absolutePoints shifts an object's relative vertex list into map space.
func absolutePoints(o *tiled.Object, fl flatLayer) []gamemath.Vec2 {
	origin := gamemath.Vec2{X: o.X + fl.offsetX, Y: o.Y + fl.offsetY}
	out := make([]gamemath.Vec2, len(o.Points))
	for i, p := range o.Points {
		out[i] = origin.Add(p)
	}
	return out
}

// Phase 5: relationships. Object-reference properties under designated
// keys become directed links; an unresolved target id is kept with an
// empty name rather than dropped.
func (c *converter) buildLinks() {
	for _, src := range c.sources {
		for _, p := range src.props {
			if p.Type != tiled.PropObject {
				continue
			}
			if _, ok := c.relKeys[p.Name]; !ok {
				continue
			}
			targetID, err := strconv.Atoi(p.Value)
			if err != nil {
				c.log.Warn("skipping malformed object reference",
					zap.Int("source", src.id), zap.String("key", p.Name), zap.String("value", p.Value))
				continue
			}
			if targetID == 0 {
				continue // editor writes 0 for "no object"
			}
			c.def.Links = append(c.def.Links, ObjectLink{
				SourceID:   src.id,
				TargetID:   targetID,
				TargetName: c.names[targetID],
				Type:       p.Name,
			})
		}
	}
}

// Phase 6: resource catalog.
func (c *converter) buildResources() {
	var tilesets, images, audio []string

	addFile := func(path string) {
		if path == "" {
			return
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".wav", ".ogg", ".mp3", ".flac":
			audio = append(audio, path)
		case ".png", ".jpg", ".jpeg", ".bmp", ".gif":
			images = append(images, path)
		}
	}
	addProps := func(props tiled.Properties) {
		for _, p := range props {
			if p.Type == tiled.PropFile {
				addFile(p.Value)
			}
		}
	}

	addProps(c.m.Properties)

	for _, ts := range c.m.Tilesets {
		if ts.Source != "" {
			tilesets = append(tilesets, ts.Source)
		}
		if ts.Image != "" {
			images = append(images, ts.Image)
		}
		addProps(ts.Properties)
		for _, tt := range ts.Tiles {
			addProps(tt.Properties)
		}
	}

	for _, fl := range c.flat {
		l := fl.layer
		if l.Kind == tiled.ImageLayerKind && l.Image != "" {
			images = append(images, l.Image)
		}
		addProps(l.Properties)
		for _, o := range l.Objects {
			addProps(o.Properties)
		}
	}

	c.def.Resources = ResourceCatalog{
		Tilesets: sortUnique(tilesets),
		Images:   sortUnique(images),
		Audio:    sortUnique(audio),
	}
}

func sortUnique(paths []string) []string {
	if len(paths) == 0 {
		return []string{}
	}
	sort.Strings(paths)
	out := paths[:1]
	for _, p := range paths[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}
