package tiled

import (
	"errors"
	"strings"
	"testing"
)

// parseTestMapXML parses an inline TMX document with default options.
func parseTestMapXML(t *testing.T, src string) *Map {
	t.Helper()
	m, err := ParseMap([]byte(src), FormatXML, nil)
	if err != nil {
		t.Fatalf("failed to parse map: %v", err)
	}
	return m
}

func TestParseMapXMLBasic(t *testing.T) {
	m := parseTestMapXML(t, `<?xml version="1.0" encoding="UTF-8"?>
<map version="1.10" orientation="isometric" renderorder="right-down"
     width="4" height="4" tilewidth="64" tileheight="32" infinite="0"
     nextlayerid="2" nextobjectid="1">
 <properties>
  <property name="music" type="file" value="audio/theme.ogg"/>
  <property name="darkness" type="float" value="0.25"/>
 </properties>
 <tileset firstgid="1" name="terrain" tilewidth="64" tileheight="32" tilecount="64" columns="8">
  <image source="terrain.png" width="512" height="256"/>
 </tileset>
 <layer id="1" name="ground" width="4" height="4">
  <data encoding="csv">
1,2,3,4,
5,6,7,8,
9,10,11,12,
13,14,15,16
  </data>
 </layer>
</map>`)

	if m.Version != "1.10" {
		t.Errorf("expected version 1.10, got %s", m.Version)
	}
	if m.Orientation != Isometric {
		t.Errorf("expected isometric orientation, got %s", m.Orientation)
	}
	if m.Width != 4 || m.Height != 4 {
		t.Errorf("expected 4x4 map, got %dx%d", m.Width, m.Height)
	}
	if m.TileWidth != 64 || m.TileHeight != 32 {
		t.Errorf("expected 64x32 tiles, got %dx%d", m.TileWidth, m.TileHeight)
	}

	if m.Properties.GetString("music") != "audio/theme.ogg" {
		t.Errorf("expected music property, got %q", m.Properties.GetString("music"))
	}
	if m.Properties.GetFloat("darkness") != 0.25 {
		t.Errorf("expected darkness 0.25, got %f", m.Properties.GetFloat("darkness"))
	}

	if len(m.Tilesets) != 1 {
		t.Fatalf("expected 1 tileset, got %d", len(m.Tilesets))
	}
	ts := m.Tilesets[0]
	if ts.Name != "terrain" || ts.FirstGID != 1 || ts.TileCount != 64 {
		t.Errorf("unexpected tileset: %+v", ts)
	}
	if ts.Image != "terrain.png" || ts.ImageWidth != 512 {
		t.Errorf("unexpected tileset image: %q %dx%d", ts.Image, ts.ImageWidth, ts.ImageHeight)
	}

	if len(m.Layers) != 1 {
		t.Fatalf("expected 1 layer, got %d", len(m.Layers))
	}
	l := m.Layers[0]
	if l.Kind != TileLayerKind || l.Name != "ground" {
		t.Errorf("unexpected layer: kind=%s name=%q", l.Kind, l.Name)
	}
	if len(l.Tiles) != 16 {
		t.Fatalf("expected 16 tiles, got %d", len(l.Tiles))
	}
	if l.Tiles[0] != 1 || l.Tiles[15] != 16 {
		t.Errorf("unexpected corner gids: %d, %d", l.Tiles[0], l.Tiles[15])
	}
	if !l.Visible || l.Opacity != 1 {
		t.Errorf("expected default visible/opacity, got %v/%f", l.Visible, l.Opacity)
	}
}

func TestParseMapXMLSizeMismatch(t *testing.T) {
	_, err := ParseMap([]byte(`<map orientation="orthogonal" width="4" height="4" tilewidth="16" tileheight="16">
 <layer id="1" name="ground" width="4" height="4">
  <data encoding="csv">1,2,3</data>
 </layer>
</map>`), FormatXML, nil)
	if !errors.Is(err, ErrTileCountMismatch) {
		t.Errorf("expected ErrTileCountMismatch, got %v", err)
	}
}

func TestParseMapXMLObjects(t *testing.T) {
	m := parseTestMapXML(t, `<map orientation="orthogonal" width="8" height="8" tilewidth="16" tileheight="16">
 <objectgroup id="2" name="entities">
  <object id="1" name="spawn" type="player" x="32" y="48" width="16" height="16">
   <properties>
    <property name="hp" type="int" value="100"/>
    <property name="leader" type="object" value="3"/>
   </properties>
  </object>
  <object id="2" name="marker" x="10" y="20">
   <point/>
  </object>
  <object id="3" name="zone" x="0" y="0" width="40" height="20">
   <ellipse/>
  </object>
  <object id="4" name="hull" x="5" y="5">
   <polygon points="0,0 32,0 32,32"/>
  </object>
  <object id="5" name="route" type="way" x="0" y="0">
   <polyline points="0,0 16,0 16,16"/>
  </object>
  <object id="6" name="sign" x="1" y="1" width="64" height="16">
   <text>Welcome home</text>
  </object>
 </objectgroup>
</map>`)

	if len(m.Layers) != 1 || m.Layers[0].Kind != ObjectLayerKind {
		t.Fatalf("expected one object layer, got %+v", m.Layers)
	}
	objs := m.Layers[0].Objects
	if len(objs) != 6 {
		t.Fatalf("expected 6 objects, got %d", len(objs))
	}

	spawn := objs[0]
	if spawn.Shape != ShapeRectangle || spawn.Type != "player" || spawn.X != 32 || spawn.Y != 48 {
		t.Errorf("unexpected spawn object: %+v", spawn)
	}
	if spawn.Properties.GetInt("hp") != 100 {
		t.Errorf("expected hp 100, got %d", spawn.Properties.GetInt("hp"))
	}
	if spawn.Properties.GetObjectRef("leader") != 3 {
		t.Errorf("expected leader ref 3, got %d", spawn.Properties.GetObjectRef("leader"))
	}

	if objs[1].Shape != ShapePoint {
		t.Errorf("expected point shape, got %s", objs[1].Shape)
	}
	if objs[2].Shape != ShapeEllipse {
		t.Errorf("expected ellipse shape, got %s", objs[2].Shape)
	}

	hull := objs[3]
	if hull.Shape != ShapePolygon || len(hull.Points) != 3 {
		t.Fatalf("unexpected polygon: %+v", hull)
	}
	if hull.Points[1].X != 32 || hull.Points[1].Y != 0 {
		t.Errorf("unexpected polygon vertex: %+v", hull.Points[1])
	}

	route := objs[4]
	if route.Shape != ShapePolyline || len(route.Points) != 3 {
		t.Fatalf("unexpected polyline: %+v", route)
	}

	sign := objs[5]
	if sign.Shape != ShapeText || sign.Text != "Welcome home" {
		t.Errorf("unexpected text object: %+v", sign)
	}
}

func TestParseMapXMLObjectClassAttr(t *testing.T) {
	// Editor 1.9 writes class= instead of type=
	m := parseTestMapXML(t, `<map orientation="orthogonal" width="1" height="1" tilewidth="16" tileheight="16">
 <objectgroup id="1" name="entities">
  <object id="1" name="g" class="guard" x="0" y="0"/>
 </objectgroup>
</map>`)

	if got := m.Layers[0].Objects[0].Type; got != "guard" {
		t.Errorf("expected type 'guard' from class attribute, got %q", got)
	}
}

func TestParseMapXMLMalformedPoints(t *testing.T) {
	_, err := ParseMap([]byte(`<map orientation="orthogonal" width="1" height="1" tilewidth="16" tileheight="16">
 <objectgroup id="1" name="entities">
  <object id="1" x="0" y="0">
   <polygon points="0,0 banana 3,3"/>
  </object>
 </objectgroup>
</map>`), FormatXML, nil)
	if !errors.Is(err, ErrMalformedPoints) {
		t.Errorf("expected ErrMalformedPoints, got %v", err)
	}
}

func TestParseMapXMLImageLayer(t *testing.T) {
	m := parseTestMapXML(t, `<map orientation="orthogonal" width="1" height="1" tilewidth="16" tileheight="16">
 <imagelayer id="3" name="backdrop" offsetx="-10" offsety="5" parallaxx="0.5" repeatx="1">
  <image source="sky.png" width="800" height="600"/>
 </imagelayer>
</map>`)

	l := m.Layers[0]
	if l.Kind != ImageLayerKind || l.Image != "sky.png" {
		t.Fatalf("unexpected image layer: %+v", l)
	}
	if l.OffsetX != -10 || l.OffsetY != 5 {
		t.Errorf("unexpected offsets: %f, %f", l.OffsetX, l.OffsetY)
	}
	if l.ParallaxX != 0.5 || l.ParallaxY != 1 {
		t.Errorf("unexpected parallax: %f, %f", l.ParallaxX, l.ParallaxY)
	}
	if !l.RepeatX || l.RepeatY {
		t.Errorf("unexpected repeat flags: %v, %v", l.RepeatX, l.RepeatY)
	}
}

func TestParseMapXMLLayerOrder(t *testing.T) {
	// Interleaved element names must keep their document order
	m := parseTestMapXML(t, `<map orientation="orthogonal" width="1" height="1" tilewidth="16" tileheight="16">
 <layer id="1" name="under" width="1" height="1"><data encoding="csv">1</data></layer>
 <objectgroup id="2" name="things"/>
 <layer id="3" name="over" width="1" height="1"><data encoding="csv">2</data></layer>
 <imagelayer id="4" name="fog"/>
</map>`)

	want := []string{"under", "things", "over", "fog"}
	if len(m.Layers) != len(want) {
		t.Fatalf("expected %d layers, got %d", len(want), len(m.Layers))
	}
	for i, name := range want {
		if m.Layers[i].Name != name {
			t.Errorf("layer %d: expected %q, got %q", i, name, m.Layers[i].Name)
		}
	}
}

func TestParseMapXMLGroups(t *testing.T) {
	m := parseTestMapXML(t, `<map orientation="orthogonal" width="1" height="1" tilewidth="16" tileheight="16">
 <group id="1" name="world" opacity="0.5" offsetx="8">
  <layer id="2" name="ground" width="1" height="1"><data encoding="csv">1</data></layer>
  <group id="3" name="props" visible="0">
   <objectgroup id="4" name="chairs"/>
  </group>
 </group>
</map>`)

	if len(m.Layers) != 1 || m.Layers[0].Kind != GroupLayerKind {
		t.Fatalf("expected one group layer, got %+v", m.Layers)
	}
	world := m.Layers[0]
	if world.Opacity != 0.5 || world.OffsetX != 8 {
		t.Errorf("unexpected group attrs: opacity=%f offsetx=%f", world.Opacity, world.OffsetX)
	}
	if len(world.Layers) != 2 {
		t.Fatalf("expected 2 children, got %d", len(world.Layers))
	}
	if world.Layers[0].Name != "ground" || world.Layers[0].Kind != TileLayerKind {
		t.Errorf("unexpected first child: %+v", world.Layers[0])
	}
	props := world.Layers[1]
	if props.Kind != GroupLayerKind || props.Visible {
		t.Errorf("unexpected nested group: %+v", props)
	}
	if len(props.Layers) != 1 || props.Layers[0].Name != "chairs" {
		t.Errorf("unexpected nested child: %+v", props.Layers)
	}
}

func TestParseMapXMLGroupDepthLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<map orientation="orthogonal" width="1" height="1" tilewidth="16" tileheight="16">`)
	for i := 0; i < 20; i++ {
		b.WriteString(`<group name="g">`)
	}
	for i := 0; i < 20; i++ {
		b.WriteString(`</group>`)
	}
	b.WriteString(`</map>`)

	_, err := ParseMap([]byte(b.String()), FormatXML, &Options{MaxGroupDepth: 4})
	if !errors.Is(err, ErrGroupTooDeep) {
		t.Errorf("expected ErrGroupTooDeep, got %v", err)
	}
}

func TestParseMapXMLChunks(t *testing.T) {
	m := parseTestMapXML(t, `<map orientation="orthogonal" width="0" height="0" tilewidth="16" tileheight="16" infinite="1">
 <layer id="1" name="ground" width="0" height="0">
  <data encoding="csv">
   <chunk x="-16" y="0" width="4" height="4">
1,2,3,4,
5,6,7,8,
9,10,11,12,
13,14,15,16
   </chunk>
   <chunk x="0" y="0" width="4" height="4">
0,0,0,0,
0,1,1,0,
0,1,1,0,
0,0,0,0
   </chunk>
  </data>
 </layer>
</map>`)

	if !m.Infinite {
		t.Error("expected infinite map")
	}
	l := m.Layers[0]
	if len(l.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(l.Chunks))
	}
	c := l.Chunks[0]
	if c.X != -16 || c.Y != 0 || c.Width != 4 || c.Height != 4 {
		t.Errorf("unexpected chunk geometry: %+v", c)
	}
	if len(c.Tiles) != 16 || c.Tiles[0] != 1 {
		t.Errorf("unexpected chunk tiles: %v", c.Tiles)
	}
}

func TestParseMapXMLChunkSizeMismatch(t *testing.T) {
	_, err := ParseMap([]byte(`<map orientation="orthogonal" width="0" height="0" tilewidth="16" tileheight="16" infinite="1">
 <layer id="1" name="ground" width="0" height="0">
  <data encoding="csv">
   <chunk x="0" y="0" width="4" height="4">1,2,3</chunk>
  </data>
 </layer>
</map>`), FormatXML, nil)
	if !errors.Is(err, ErrTileCountMismatch) {
		t.Errorf("expected ErrTileCountMismatch, got %v", err)
	}
}

func TestParseMapXMLPlainTiles(t *testing.T) {
	// The oldest markup form: one <tile> element per cell, no encoding
	m := parseTestMapXML(t, `<map orientation="orthogonal" width="2" height="1" tilewidth="16" tileheight="16">
 <layer id="1" name="ground" width="2" height="1">
  <data>
   <tile gid="5"/>
   <tile gid="0"/>
  </data>
 </layer>
</map>`)

	l := m.Layers[0]
	if len(l.Tiles) != 2 || l.Tiles[0] != 5 || l.Tiles[1] != 0 {
		t.Errorf("unexpected tiles: %v", l.Tiles)
	}
}

func TestParseMapXMLUnknownOrientation(t *testing.T) {
	_, err := ParseMap([]byte(`<map orientation="spherical" width="1" height="1" tilewidth="16" tileheight="16"/>`), FormatXML, nil)
	if !errors.Is(err, ErrUnknownOrientation) {
		t.Errorf("expected ErrUnknownOrientation, got %v", err)
	}
}

func TestParseMapXMLMalformed(t *testing.T) {
	_, err := ParseMap([]byte(`<map orientation="orthogonal" width="not-a-number"/>`), FormatXML, nil)
	if !errors.Is(err, ErrMalformedXML) {
		t.Errorf("expected ErrMalformedXML, got %v", err)
	}

	_, err = ParseMap([]byte(`this is not xml at all`), FormatXML, nil)
	if !errors.Is(err, ErrMalformedXML) {
		t.Errorf("expected ErrMalformedXML, got %v", err)
	}
}

func TestParseTilesetXML(t *testing.T) {
	ts, err := ParseTileset([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<tileset name="props" tilewidth="32" tileheight="32" tilecount="16" columns="4" spacing="2" margin="1">
 <tileoffset x="0" y="-8"/>
 <image source="props.png" width="136" height="136"/>
 <tile id="3">
  <properties>
   <property name="solid" type="bool" value="true"/>
  </properties>
  <animation>
   <frame tileid="3" duration="100"/>
   <frame tileid="4" duration="100"/>
  </animation>
  <objectgroup>
   <object id="1" x="4" y="8" width="24" height="16"/>
  </objectgroup>
 </tile>
</tileset>`), FormatXML)
	if err != nil {
		t.Fatalf("failed to parse tileset: %v", err)
	}

	if ts.Name != "props" || ts.TileCount != 16 || ts.Columns != 4 {
		t.Errorf("unexpected tileset: %+v", ts)
	}
	if ts.Spacing != 2 || ts.Margin != 1 || ts.OffsetY != -8 {
		t.Errorf("unexpected geometry: spacing=%d margin=%d offsety=%d", ts.Spacing, ts.Margin, ts.OffsetY)
	}
	if len(ts.Tiles) != 1 {
		t.Fatalf("expected 1 special tile, got %d", len(ts.Tiles))
	}
	tile := ts.Tiles[0]
	if tile.ID != 3 || !tile.Properties.GetBool("solid") {
		t.Errorf("unexpected tile: %+v", tile)
	}
	if len(tile.Animation) != 2 || tile.Animation[1].TileID != 4 || tile.Animation[1].DurationMS != 100 {
		t.Errorf("unexpected animation: %+v", tile.Animation)
	}
	if len(tile.Objects) != 1 || tile.Objects[0].Width != 24 {
		t.Errorf("unexpected per-tile objects: %+v", tile.Objects)
	}
}

func TestParseMapXMLMultilineProperty(t *testing.T) {
	m := parseTestMapXML(t, `<map orientation="orthogonal" width="1" height="1" tilewidth="16" tileheight="16">
 <properties>
  <property name="notes">line one
line two</property>
 </properties>
</map>`)

	if got := m.Properties.GetString("notes"); got != "line one\nline two" {
		t.Errorf("unexpected multiline property: %q", got)
	}
}
