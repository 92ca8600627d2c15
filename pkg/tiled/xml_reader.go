package tiled

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Faultbox/tileforge/pkg/gamemath"
)

// XML reader errors.
var (
	ErrMalformedXML    = errors.New("malformed xml map document")
	ErrMalformedPoints = errors.New("malformed point list")
)

// Wire structs mirroring the TMX schema. Attribute/text-node quirks are
// resolved here and never reach the canonical model.

type xmlProperty struct {
	Name  string `xml:"name,attr"`
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
	Text  string `xml:",chardata"` // multiline string values use element text
}

type xmlProperties struct {
	Properties []xmlProperty `xml:"property"`
}

func (p *xmlProperties) toProperties() Properties {
	if p == nil || len(p.Properties) == 0 {
		return nil
	}
	out := make(Properties, 0, len(p.Properties))
	for _, wp := range p.Properties {
		typ := PropertyType(wp.Type)
		if wp.Type == "" {
			typ = PropString
		}
		value := wp.Value
		if value == "" && wp.Text != "" {
			value = strings.TrimSpace(wp.Text)
		}
		out = append(out, Property{Name: wp.Name, Type: typ, Value: value})
	}
	return out
}

type xmlImage struct {
	Source string `xml:"source,attr"`
	Width  int    `xml:"width,attr"`
	Height int    `xml:"height,attr"`
}

type xmlFrame struct {
	TileID   uint32 `xml:"tileid,attr"`
	Duration int    `xml:"duration,attr"`
}

type xmlTilesetTile struct {
	ID         uint32         `xml:"id,attr"`
	Properties *xmlProperties `xml:"properties"`
	Animation  *struct {
		Frames []xmlFrame `xml:"frame"`
	} `xml:"animation"`
	ObjectGroup *xmlObjectGroup `xml:"objectgroup"`
}

type xmlTileOffset struct {
	X int `xml:"x,attr"`
	Y int `xml:"y,attr"`
}

type xmlTileset struct {
	FirstGID   uint32           `xml:"firstgid,attr"`
	Source     string           `xml:"source,attr"`
	Name       string           `xml:"name,attr"`
	TileWidth  int              `xml:"tilewidth,attr"`
	TileHeight int              `xml:"tileheight,attr"`
	TileCount  int              `xml:"tilecount,attr"`
	Columns    int              `xml:"columns,attr"`
	Spacing    int              `xml:"spacing,attr"`
	Margin     int              `xml:"margin,attr"`
	TileOffset *xmlTileOffset   `xml:"tileoffset"`
	Image      *xmlImage        `xml:"image"`
	Tiles      []xmlTilesetTile `xml:"tile"`
	Properties *xmlProperties   `xml:"properties"`
}

func (t *xmlTileset) toTileset() (*Tileset, error) {
	out := &Tileset{
		FirstGID:   t.FirstGID,
		Source:     t.Source,
		Name:       t.Name,
		TileWidth:  t.TileWidth,
		TileHeight: t.TileHeight,
		TileCount:  t.TileCount,
		Columns:    t.Columns,
		Spacing:    t.Spacing,
		Margin:     t.Margin,
		Properties: t.Properties.toProperties(),
	}
	if t.TileOffset != nil {
		out.OffsetX = t.TileOffset.X
		out.OffsetY = t.TileOffset.Y
	}
	if t.Image != nil {
		out.Image = t.Image.Source
		out.ImageWidth = t.Image.Width
		out.ImageHeight = t.Image.Height
	}
	for _, wt := range t.Tiles {
		tt := TilesetTile{ID: wt.ID, Properties: wt.Properties.toProperties()}
		if wt.Animation != nil {
			for _, f := range wt.Animation.Frames {
				tt.Animation = append(tt.Animation, Frame{TileID: f.TileID, DurationMS: f.Duration})
			}
		}
		if wt.ObjectGroup != nil {
			for i := range wt.ObjectGroup.Objects {
				obj, err := wt.ObjectGroup.Objects[i].toObject()
				if err != nil {
					return nil, fmt.Errorf("tileset %q tile %d: %w", t.Name, wt.ID, err)
				}
				tt.Objects = append(tt.Objects, obj)
			}
		}
		out.Tiles = append(out.Tiles, tt)
	}
	return out, nil
}

type xmlDataTile struct {
	GID uint32 `xml:"gid,attr"`
}

type xmlChunk struct {
	X      int           `xml:"x,attr"`
	Y      int           `xml:"y,attr"`
	Width  int           `xml:"width,attr"`
	Height int           `xml:"height,attr"`
	Tiles  []xmlDataTile `xml:"tile"`
	Text   string        `xml:",chardata"`
}

type xmlData struct {
	Encoding    string        `xml:"encoding,attr"`
	Compression string        `xml:"compression,attr"`
	Chunks      []xmlChunk    `xml:"chunk"`
	Tiles       []xmlDataTile `xml:"tile"`
	Text        string        `xml:",chardata"`
}

type xmlTileLayer struct {
	ID         int            `xml:"id,attr"`
	Name       string         `xml:"name,attr"`
	Width      int            `xml:"width,attr"`
	Height     int            `xml:"height,attr"`
	Opacity    *float64       `xml:"opacity,attr"`
	Visible    *bool          `xml:"visible,attr"`
	OffsetX    float64        `xml:"offsetx,attr"`
	OffsetY    float64        `xml:"offsety,attr"`
	TintColor  string         `xml:"tintcolor,attr"`
	Properties *xmlProperties `xml:"properties"`
	Data       *xmlData       `xml:"data"`
}

type xmlPoints struct {
	Points string `xml:"points,attr"`
}

type xmlText struct {
	Value string `xml:",chardata"`
}

type xmlObject struct {
	ID         int            `xml:"id,attr"`
	Name       string         `xml:"name,attr"`
	Type       string         `xml:"type,attr"`
	Class      string         `xml:"class,attr"` // editor 1.9 renamed "type"
	GID        uint32         `xml:"gid,attr"`
	X          float64        `xml:"x,attr"`
	Y          float64        `xml:"y,attr"`
	Width      float64        `xml:"width,attr"`
	Height     float64        `xml:"height,attr"`
	Rotation   float64        `xml:"rotation,attr"`
	Visible    *bool          `xml:"visible,attr"`
	Point      *struct{}      `xml:"point"`
	Ellipse    *struct{}      `xml:"ellipse"`
	Polygon    *xmlPoints     `xml:"polygon"`
	Polyline   *xmlPoints     `xml:"polyline"`
	Text       *xmlText       `xml:"text"`
	Properties *xmlProperties `xml:"properties"`
}

func (o *xmlObject) toObject() (*Object, error) {
	obj := &Object{
		ID:         o.ID,
		Name:       o.Name,
		Type:       o.Type,
		GID:        GID(o.GID),
		X:          o.X,
		Y:          o.Y,
		Width:      o.Width,
		Height:     o.Height,
		Rotation:   o.Rotation,
		Visible:    boolOrDefault(o.Visible, true),
		Shape:      ShapeRectangle,
		Properties: o.Properties.toProperties(),
	}
	if obj.Type == "" {
		obj.Type = o.Class
	}

	switch {
	case o.Point != nil:
		obj.Shape = ShapePoint
	case o.Ellipse != nil:
		obj.Shape = ShapeEllipse
	case o.Polygon != nil:
		pts, err := parsePoints(o.Polygon.Points)
		if err != nil {
			return nil, fmt.Errorf("object %d polygon: %w", o.ID, err)
		}
		obj.Shape = ShapePolygon
		obj.Points = pts
	case o.Polyline != nil:
		pts, err := parsePoints(o.Polyline.Points)
		if err != nil {
			return nil, fmt.Errorf("object %d polyline: %w", o.ID, err)
		}
		obj.Shape = ShapePolyline
		obj.Points = pts
	case o.Text != nil:
		obj.Shape = ShapeText
		obj.Text = strings.TrimSpace(o.Text.Value)
	}
	return obj, nil
}

type xmlObjectGroup struct {
	ID         int            `xml:"id,attr"`
	Name       string         `xml:"name,attr"`
	Opacity    *float64       `xml:"opacity,attr"`
	Visible    *bool          `xml:"visible,attr"`
	OffsetX    float64        `xml:"offsetx,attr"`
	OffsetY    float64        `xml:"offsety,attr"`
	TintColor  string         `xml:"tintcolor,attr"`
	Properties *xmlProperties `xml:"properties"`
	Objects    []xmlObject    `xml:"object"`
}

type xmlImageLayer struct {
	ID         int            `xml:"id,attr"`
	Name       string         `xml:"name,attr"`
	Opacity    *float64       `xml:"opacity,attr"`
	Visible    *bool          `xml:"visible,attr"`
	OffsetX    float64        `xml:"offsetx,attr"`
	OffsetY    float64        `xml:"offsety,attr"`
	ParallaxX  *float64       `xml:"parallaxx,attr"`
	ParallaxY  *float64       `xml:"parallaxy,attr"`
	RepeatX    bool           `xml:"repeatx,attr"`
	RepeatY    bool           `xml:"repeaty,attr"`
	TintColor  string         `xml:"tintcolor,attr"`
	Image      *xmlImage      `xml:"image"`
	Properties *xmlProperties `xml:"properties"`
}

// xmlLayerNode keeps the document order of interleaved layer elements,
// which per-element slices would lose.
type xmlLayerNode struct {
	tile    *xmlTileLayer
	objects *xmlObjectGroup
	image   *xmlImageLayer
	group   *xmlGroup
}

type xmlGroup struct {
	ID         int
	Name       string
	Opacity    *float64
	Visible    *bool
	OffsetX    float64
	OffsetY    float64
	TintColor  string
	Properties xmlProperties
	Nodes      []xmlLayerNode
}

// UnmarshalXML walks the group's children in document order.
func (g *xmlGroup) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, a := range start.Attr {
		if err := g.setAttr(a); err != nil {
			return err
		}
	}

	for {
		tok, err := d.Token()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "properties" {
				if err := d.DecodeElement(&g.Properties, &t); err != nil {
					return err
				}
				continue
			}
			node, ok, err := decodeXMLLayerNode(d, t)
			if err != nil {
				return err
			}
			if ok {
				g.Nodes = append(g.Nodes, node)
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (g *xmlGroup) setAttr(a xml.Attr) error {
	var err error
	switch a.Name.Local {
	case "id":
		g.ID, err = strconv.Atoi(a.Value)
	case "name":
		g.Name = a.Value
	case "opacity":
		var f float64
		if f, err = strconv.ParseFloat(a.Value, 64); err == nil {
			g.Opacity = &f
		}
	case "visible":
		var b bool
		if b, err = strconv.ParseBool(a.Value); err == nil {
			g.Visible = &b
		}
	case "offsetx":
		g.OffsetX, err = strconv.ParseFloat(a.Value, 64)
	case "offsety":
		g.OffsetY, err = strconv.ParseFloat(a.Value, 64)
	case "tintcolor":
		g.TintColor = a.Value
	}
	if err != nil {
		return fmt.Errorf("%w: group attribute %s=%q", ErrMalformedXML, a.Name.Local, a.Value)
	}
	return nil
}

func decodeXMLLayerNode(d *xml.Decoder, start xml.StartElement) (xmlLayerNode, bool, error) {
	switch start.Name.Local {
	case "layer":
		var l xmlTileLayer
		if err := d.DecodeElement(&l, &start); err != nil {
			return xmlLayerNode{}, false, err
		}
		return xmlLayerNode{tile: &l}, true, nil
	case "objectgroup":
		var og xmlObjectGroup
		if err := d.DecodeElement(&og, &start); err != nil {
			return xmlLayerNode{}, false, err
		}
		return xmlLayerNode{objects: &og}, true, nil
	case "imagelayer":
		var il xmlImageLayer
		if err := d.DecodeElement(&il, &start); err != nil {
			return xmlLayerNode{}, false, err
		}
		return xmlLayerNode{image: &il}, true, nil
	case "group":
		var g xmlGroup
		if err := d.DecodeElement(&g, &start); err != nil {
			return xmlLayerNode{}, false, err
		}
		return xmlLayerNode{group: &g}, true, nil
	default:
		if err := d.Skip(); err != nil {
			return xmlLayerNode{}, false, err
		}
		return xmlLayerNode{}, false, nil
	}
}

type xmlMap struct {
	Version         string
	Orientation     string
	RenderOrder     string
	Width           int
	Height          int
	TileWidth       int
	TileHeight      int
	Infinite        bool
	BackgroundColor string
	NextLayerID     int
	NextObjectID    int
	Properties      xmlProperties
	Tilesets        []xmlTileset
	Nodes           []xmlLayerNode
}

// UnmarshalXML walks the map's children in document order so the layer
// stacking order survives the interleaving of element names.
func (m *xmlMap) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, a := range start.Attr {
		if err := m.setAttr(a); err != nil {
			return err
		}
	}

	for {
		tok, err := d.Token()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "properties":
				if err := d.DecodeElement(&m.Properties, &t); err != nil {
					return err
				}
			case "tileset":
				var ts xmlTileset
				if err := d.DecodeElement(&ts, &t); err != nil {
					return err
				}
				m.Tilesets = append(m.Tilesets, ts)
			default:
				node, ok, err := decodeXMLLayerNode(d, t)
				if err != nil {
					return err
				}
				if ok {
					m.Nodes = append(m.Nodes, node)
				}
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (m *xmlMap) setAttr(a xml.Attr) error {
	var err error
	switch a.Name.Local {
	case "version":
		m.Version = a.Value
	case "orientation":
		m.Orientation = a.Value
	case "renderorder":
		m.RenderOrder = a.Value
	case "width":
		m.Width, err = strconv.Atoi(a.Value)
	case "height":
		m.Height, err = strconv.Atoi(a.Value)
	case "tilewidth":
		m.TileWidth, err = strconv.Atoi(a.Value)
	case "tileheight":
		m.TileHeight, err = strconv.Atoi(a.Value)
	case "infinite":
		m.Infinite, err = strconv.ParseBool(a.Value)
	case "backgroundcolor":
		m.BackgroundColor = a.Value
	case "nextlayerid":
		m.NextLayerID, err = strconv.Atoi(a.Value)
	case "nextobjectid":
		m.NextObjectID, err = strconv.Atoi(a.Value)
	}
	if err != nil {
		return fmt.Errorf("%w: map attribute %s=%q", ErrMalformedXML, a.Name.Local, a.Value)
	}
	return nil
}

// parseMapXML reads the markup serialization into the canonical tree.
func parseMapXML(data []byte, opts *Options) (*Map, error) {
	var doc xmlMap
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
	}

	orientation, err := parseOrientation(doc.Orientation)
	if err != nil {
		return nil, err
	}

	m := &Map{
		Version:         doc.Version,
		Orientation:     orientation,
		RenderOrder:     doc.RenderOrder,
		Width:           doc.Width,
		Height:          doc.Height,
		TileWidth:       doc.TileWidth,
		TileHeight:      doc.TileHeight,
		Infinite:        doc.Infinite,
		BackgroundColor: doc.BackgroundColor,
		NextLayerID:     doc.NextLayerID,
		NextObjectID:    doc.NextObjectID,
		Properties:      doc.Properties.toProperties(),
	}
	for i := range doc.Tilesets {
		ts, err := doc.Tilesets[i].toTileset()
		if err != nil {
			return nil, err
		}
		m.Tilesets = append(m.Tilesets, ts)
	}

	m.Layers, err = xmlNodesToLayers(doc.Nodes, opts, 1)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func parseTilesetXML(data []byte) (*Tileset, error) {
	var doc xmlTileset
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
	}
	return doc.toTileset()
}

// xmlNodesToLayers converts wire layer nodes depth-first; a group node is
// complete only after all its children are.
func xmlNodesToLayers(nodes []xmlLayerNode, opts *Options, depth int) ([]*Layer, error) {
	if depth > opts.maxDepth() {
		return nil, fmt.Errorf("%w: %d", ErrGroupTooDeep, depth)
	}

	layers := make([]*Layer, 0, len(nodes))
	for _, n := range nodes {
		var (
			layer *Layer
			err   error
		)
		switch {
		case n.tile != nil:
			layer, err = n.tile.toLayer(opts)
		case n.objects != nil:
			layer, err = n.objects.toLayer()
		case n.image != nil:
			layer = n.image.toLayer()
		case n.group != nil:
			layer, err = n.group.toLayer(opts, depth)
		}
		if err != nil {
			return nil, err
		}
		if layer != nil {
			layers = append(layers, layer)
		}
	}
	return layers, nil
}

func (l *xmlTileLayer) toLayer(opts *Options) (*Layer, error) {
	layer := &Layer{
		ID:         l.ID,
		Name:       l.Name,
		Kind:       TileLayerKind,
		Visible:    boolOrDefault(l.Visible, true),
		Opacity:    floatOrDefault(l.Opacity, 1),
		OffsetX:    l.OffsetX,
		OffsetY:    l.OffsetY,
		TintColor:  l.TintColor,
		Width:      l.Width,
		Height:     l.Height,
		Properties: l.Properties.toProperties(),
	}
	if l.Data == nil {
		return nil, fmt.Errorf("%w: tile layer %q has no data element", ErrMalformedXML, l.Name)
	}

	if len(l.Data.Chunks) > 0 {
		for _, c := range l.Data.Chunks {
			gids, err := decodeXMLPayload(c.Text, c.Tiles, l.Data.Encoding, l.Data.Compression, opts)
			if err != nil {
				return nil, fmt.Errorf("layer %q chunk (%d,%d): %w", l.Name, c.X, c.Y, err)
			}
			chunk, err := newChunk(c.X, c.Y, c.Width, c.Height, gids)
			if err != nil {
				return nil, fmt.Errorf("layer %q: %w", l.Name, err)
			}
			layer.Chunks = append(layer.Chunks, chunk)
		}
		return layer, nil
	}

	gids, err := decodeXMLPayload(l.Data.Text, l.Data.Tiles, l.Data.Encoding, l.Data.Compression, opts)
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", l.Name, err)
	}
	if err := validateDenseLayer(l.Name, l.Width, l.Height, len(gids)); err != nil {
		return nil, err
	}
	layer.Tiles = gids
	return layer, nil
}

// decodeXMLPayload handles the markup-only quirk of plain <tile> child
// elements standing in for encoded text.
func decodeXMLPayload(text string, tiles []xmlDataTile, encoding, compression string, opts *Options) ([]GID, error) {
	if encoding == "" {
		if len(tiles) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
		}
		gids := make([]GID, len(tiles))
		for i, t := range tiles {
			gids[i] = GID(t.GID)
		}
		return gids, nil
	}
	return DecodeTileData(text, encoding, compression, opts.maxBytes(), opts.logger())
}

func (og *xmlObjectGroup) toLayer() (*Layer, error) {
	layer := &Layer{
		ID:         og.ID,
		Name:       og.Name,
		Kind:       ObjectLayerKind,
		Visible:    boolOrDefault(og.Visible, true),
		Opacity:    floatOrDefault(og.Opacity, 1),
		OffsetX:    og.OffsetX,
		OffsetY:    og.OffsetY,
		TintColor:  og.TintColor,
		Properties: og.Properties.toProperties(),
	}
	for i := range og.Objects {
		obj, err := og.Objects[i].toObject()
		if err != nil {
			return nil, fmt.Errorf("object group %q: %w", og.Name, err)
		}
		layer.Objects = append(layer.Objects, obj)
	}
	return layer, nil
}

func (il *xmlImageLayer) toLayer() *Layer {
	layer := &Layer{
		ID:         il.ID,
		Name:       il.Name,
		Kind:       ImageLayerKind,
		Visible:    boolOrDefault(il.Visible, true),
		Opacity:    floatOrDefault(il.Opacity, 1),
		OffsetX:    il.OffsetX,
		OffsetY:    il.OffsetY,
		TintColor:  il.TintColor,
		ParallaxX:  floatOrDefault(il.ParallaxX, 1),
		ParallaxY:  floatOrDefault(il.ParallaxY, 1),
		RepeatX:    il.RepeatX,
		RepeatY:    il.RepeatY,
		Properties: il.Properties.toProperties(),
	}
	if il.Image != nil {
		layer.Image = il.Image.Source
	}
	return layer
}

func (g *xmlGroup) toLayer(opts *Options, depth int) (*Layer, error) {
	children, err := xmlNodesToLayers(g.Nodes, opts, depth+1)
	if err != nil {
		return nil, fmt.Errorf("group %q: %w", g.Name, err)
	}
	return &Layer{
		ID:         g.ID,
		Name:       g.Name,
		Kind:       GroupLayerKind,
		Visible:    boolOrDefault(g.Visible, true),
		Opacity:    floatOrDefault(g.Opacity, 1),
		OffsetX:    g.OffsetX,
		OffsetY:    g.OffsetY,
		TintColor:  g.TintColor,
		Properties: g.Properties.toProperties(),
		Layers:     children,
	}, nil
}

// parsePoints parses the "x0,y0 x1,y1 ..." attribute form.
func parsePoints(s string) ([]gamemath.Vec2, error) {
	fields := strings.Fields(s)
	pts := make([]gamemath.Vec2, 0, len(fields))
	for _, f := range fields {
		xy := strings.SplitN(f, ",", 2)
		if len(xy) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrMalformedPoints, f)
		}
		x, err := strconv.ParseFloat(xy[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedPoints, f)
		}
		y, err := strconv.ParseFloat(xy[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedPoints, f)
		}
		pts = append(pts, gamemath.Vec2{X: x, Y: y})
	}
	return pts, nil
}

func boolOrDefault(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func floatOrDefault(f *float64, def float64) float64 {
	if f == nil {
		return def
	}
	return *f
}
