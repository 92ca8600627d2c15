package tiled

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Faultbox/tileforge/pkg/gamemath"
)

// JSON reader errors.
var (
	ErrMalformedJSON = errors.New("malformed json map document")
)

// flexString absorbs the version field being a number in old documents and
// a string in newer ones.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(bytes.TrimSpace(data))
	return nil
}

// Wire structs mirroring the JSON schema. The array-vs-string data quirk
// and untyped property values are resolved here.

type jsonProperty struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

func jsonProperties(props []jsonProperty) Properties {
	if len(props) == 0 {
		return nil
	}
	out := make(Properties, 0, len(props))
	for _, p := range props {
		typ := PropertyType(p.Type)
		if p.Type == "" {
			typ = PropString
		}
		out = append(out, Property{Name: p.Name, Type: typ, Value: jsonPropertyValue(typ, p.Value)})
	}
	return out
}

// jsonPropertyValue renders an untyped json value into the canonical
// string form shared with the markup reader.
func jsonPropertyValue(typ PropertyType, v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		switch typ {
		case PropInt, PropObject:
			return strconv.FormatInt(int64(val), 10)
		default:
			return strconv.FormatFloat(val, 'f', -1, 64)
		}
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func jsonPointsToVecs(pts []jsonPoint) []gamemath.Vec2 {
	if len(pts) == 0 {
		return nil
	}
	out := make([]gamemath.Vec2, len(pts))
	for i, p := range pts {
		out[i] = gamemath.Vec2{X: p.X, Y: p.Y}
	}
	return out
}

type jsonText struct {
	Text string `json:"text"`
}

type jsonObject struct {
	ID         int            `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Class      string         `json:"class"`
	GID        uint32         `json:"gid"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	Rotation   float64        `json:"rotation"`
	Visible    *bool          `json:"visible"`
	Point      bool           `json:"point"`
	Ellipse    bool           `json:"ellipse"`
	Polygon    []jsonPoint    `json:"polygon"`
	Polyline   []jsonPoint    `json:"polyline"`
	Text       *jsonText      `json:"text"`
	Properties []jsonProperty `json:"properties"`
}

func (o *jsonObject) toObject() *Object {
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
		Properties: jsonProperties(o.Properties),
	}
	if obj.Type == "" {
		obj.Type = o.Class
	}

	switch {
	case o.Point:
		obj.Shape = ShapePoint
	case o.Ellipse:
		obj.Shape = ShapeEllipse
	case len(o.Polygon) > 0:
		obj.Shape = ShapePolygon
		obj.Points = jsonPointsToVecs(o.Polygon)
	case len(o.Polyline) > 0:
		obj.Shape = ShapePolyline
		obj.Points = jsonPointsToVecs(o.Polyline)
	case o.Text != nil:
		obj.Shape = ShapeText
		obj.Text = o.Text.Text
	}
	return obj
}

type jsonChunk struct {
	X      int             `json:"x"`
	Y      int             `json:"y"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Data   json.RawMessage `json:"data"`
}

type jsonLayer struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	Visible     *bool           `json:"visible"`
	Opacity     *float64        `json:"opacity"`
	OffsetX     float64         `json:"offsetx"`
	OffsetY     float64         `json:"offsety"`
	TintColor   string          `json:"tintcolor"`
	Data        json.RawMessage `json:"data"`
	Encoding    string          `json:"encoding"`
	Compression string          `json:"compression"`
	Chunks      []jsonChunk     `json:"chunks"`
	Objects     []jsonObject    `json:"objects"`
	Image       string          `json:"image"`
	ParallaxX   *float64        `json:"parallaxx"`
	ParallaxY   *float64        `json:"parallaxy"`
	RepeatX     bool            `json:"repeatx"`
	RepeatY     bool            `json:"repeaty"`
	Layers      []jsonLayer     `json:"layers"`
	Properties  []jsonProperty  `json:"properties"`
}

type jsonFrame struct {
	TileID   uint32 `json:"tileid"`
	Duration int    `json:"duration"`
}

type jsonTilesetTile struct {
	ID          uint32         `json:"id"`
	Animation   []jsonFrame    `json:"animation"`
	Properties  []jsonProperty `json:"properties"`
	ObjectGroup *jsonLayer     `json:"objectgroup"`
}

type jsonTileOffset struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type jsonTileset struct {
	FirstGID    uint32            `json:"firstgid"`
	Source      string            `json:"source"`
	Name        string            `json:"name"`
	TileWidth   int               `json:"tilewidth"`
	TileHeight  int               `json:"tileheight"`
	TileCount   int               `json:"tilecount"`
	Columns     int               `json:"columns"`
	Spacing     int               `json:"spacing"`
	Margin      int               `json:"margin"`
	TileOffset  *jsonTileOffset   `json:"tileoffset"`
	Image       string            `json:"image"`
	ImageWidth  int               `json:"imagewidth"`
	ImageHeight int               `json:"imageheight"`
	Tiles       []jsonTilesetTile `json:"tiles"`
	Properties  []jsonProperty    `json:"properties"`
}

func (t *jsonTileset) toTileset() *Tileset {
	out := &Tileset{
		FirstGID:    t.FirstGID,
		Source:      t.Source,
		Name:        t.Name,
		TileWidth:   t.TileWidth,
		TileHeight:  t.TileHeight,
		TileCount:   t.TileCount,
		Columns:     t.Columns,
		Spacing:     t.Spacing,
		Margin:      t.Margin,
		Image:       t.Image,
		ImageWidth:  t.ImageWidth,
		ImageHeight: t.ImageHeight,
		Properties:  jsonProperties(t.Properties),
	}
	if t.TileOffset != nil {
		out.OffsetX = t.TileOffset.X
		out.OffsetY = t.TileOffset.Y
	}
	for _, wt := range t.Tiles {
		tt := TilesetTile{ID: wt.ID, Properties: jsonProperties(wt.Properties)}
		for _, f := range wt.Animation {
			tt.Animation = append(tt.Animation, Frame{TileID: f.TileID, DurationMS: f.Duration})
		}
		if wt.ObjectGroup != nil {
			for i := range wt.ObjectGroup.Objects {
				tt.Objects = append(tt.Objects, wt.ObjectGroup.Objects[i].toObject())
			}
		}
		out.Tiles = append(out.Tiles, tt)
	}
	return out
}

type jsonMap struct {
	Version         flexString     `json:"version"`
	Orientation     string         `json:"orientation"`
	RenderOrder     string         `json:"renderorder"`
	Width           int            `json:"width"`
	Height          int            `json:"height"`
	TileWidth       int            `json:"tilewidth"`
	TileHeight      int            `json:"tileheight"`
	Infinite        bool           `json:"infinite"`
	BackgroundColor string         `json:"backgroundcolor"`
	NextLayerID     int            `json:"nextlayerid"`
	NextObjectID    int            `json:"nextobjectid"`
	Tilesets        []jsonTileset  `json:"tilesets"`
	Layers          []jsonLayer    `json:"layers"`
	Properties      []jsonProperty `json:"properties"`
}

// parseMapJSON reads the structured-text serialization into the canonical
// tree.
func parseMapJSON(data []byte, opts *Options) (*Map, error) {
	var doc jsonMap
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	orientation, err := parseOrientation(doc.Orientation)
	if err != nil {
		return nil, err
	}

	m := &Map{
		Version:         string(doc.Version),
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
		Properties:      jsonProperties(doc.Properties),
	}
	for i := range doc.Tilesets {
		m.Tilesets = append(m.Tilesets, doc.Tilesets[i].toTileset())
	}

	m.Layers, err = jsonLayersToLayers(doc.Layers, opts, 1)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func parseTilesetJSON(data []byte) (*Tileset, error) {
	var doc jsonTileset
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return doc.toTileset(), nil
}

func jsonLayersToLayers(layers []jsonLayer, opts *Options, depth int) ([]*Layer, error) {
	if depth > opts.maxDepth() {
		return nil, fmt.Errorf("%w: %d", ErrGroupTooDeep, depth)
	}

	out := make([]*Layer, 0, len(layers))
	for i := range layers {
		layer, err := layers[i].toLayer(opts, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, layer)
	}
	return out, nil
}

func (l *jsonLayer) toLayer(opts *Options, depth int) (*Layer, error) {
	layer := &Layer{
		ID:         l.ID,
		Name:       l.Name,
		Visible:    boolOrDefault(l.Visible, true),
		Opacity:    floatOrDefault(l.Opacity, 1),
		OffsetX:    l.OffsetX,
		OffsetY:    l.OffsetY,
		TintColor:  l.TintColor,
		Properties: jsonProperties(l.Properties),
	}

	switch l.Type {
	case "tilelayer":
		layer.Kind = TileLayerKind
		layer.Width = l.Width
		layer.Height = l.Height

		if len(l.Chunks) > 0 {
			for _, c := range l.Chunks {
				gids, err := decodeJSONPayload(c.Data, l.Encoding, l.Compression, opts)
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

		gids, err := decodeJSONPayload(l.Data, l.Encoding, l.Compression, opts)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", l.Name, err)
		}
		if err := validateDenseLayer(l.Name, l.Width, l.Height, len(gids)); err != nil {
			return nil, err
		}
		layer.Tiles = gids
		return layer, nil

	case "objectgroup":
		layer.Kind = ObjectLayerKind
		for i := range l.Objects {
			layer.Objects = append(layer.Objects, l.Objects[i].toObject())
		}
		return layer, nil

	case "imagelayer":
		layer.Kind = ImageLayerKind
		layer.Image = l.Image
		layer.ParallaxX = floatOrDefault(l.ParallaxX, 1)
		layer.ParallaxY = floatOrDefault(l.ParallaxY, 1)
		layer.RepeatX = l.RepeatX
		layer.RepeatY = l.RepeatY
		return layer, nil

	case "group":
		layer.Kind = GroupLayerKind
		children, err := jsonLayersToLayers(l.Layers, opts, depth+1)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", l.Name, err)
		}
		layer.Layers = children
		return layer, nil

	default:
		return nil, fmt.Errorf("%w: layer %q has unknown type %q", ErrMalformedJSON, l.Name, l.Type)
	}
}

// decodeJSONPayload handles the structured-text quirk of layer data being
// either a plain number array or one base64 string.
func decodeJSONPayload(raw json.RawMessage, encoding, compression string, opts *Options) ([]GID, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: tile layer has no data", ErrMalformedJSON)
	}

	if trimmed[0] == '[' {
		var ids []uint32
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return nil, fmt.Errorf("%w: tile data array: %v", ErrMalformedJSON, err)
		}
		gids := make([]GID, len(ids))
		for i, id := range ids {
			gids[i] = GID(id)
		}
		return gids, nil
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return nil, fmt.Errorf("%w: tile data: %v", ErrMalformedJSON, err)
	}
	if encoding == "" {
		encoding = EncodingBase64
	}
	return DecodeTileData(strings.TrimSpace(text), encoding, compression, opts.maxBytes(), opts.logger())
}
