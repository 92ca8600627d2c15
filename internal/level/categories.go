package level

import (
	"fmt"

	"github.com/Faultbox/tileforge/pkg/tiled"
)

// CategoryTableVersion identifies the classification rules below. Any other
// engine component that re-derives object categories must consume this
// table and check the version instead of keeping its own copy.
const CategoryTableVersion = 1

// Category is the bucket an authored object is converted into.
type Category int

// Category buckets.
const (
	CategoryStatic Category = iota
	CategoryDynamic
	CategoryPatrolPath
	CategoryAmbientSound
)

// String returns a human-readable category name.
func (c Category) String() string {
	switch c {
	case CategoryStatic:
		return "static"
	case CategoryDynamic:
		return "dynamic"
	case CategoryPatrolPath:
		return "patrol-path"
	case CategoryAmbientSound:
		return "ambient-sound"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// CategoryTable holds the type→bucket classification rules.
type CategoryTable struct {
	// Dynamic lists object types instantiated as moving/updating entities.
	Dynamic []string
	// Sound lists object types treated as ambient sound emitters.
	Sound []string
	// WayType marks polylines used as patrol paths.
	WayType string
	// CollisionType marks rectangles converted into collision shapes
	// instead of entities.
	CollisionType string

	dynamicSet map[string]struct{}
	soundSet   map[string]struct{}
}

// DefaultCategoryTable returns the classification rules shared across the
// engine.
func DefaultCategoryTable() *CategoryTable {
	return &CategoryTable{
		Dynamic:       []string{"player", "npc", "guard", "enemy", "monster", "spawner"},
		Sound:         []string{"sound", "ambience", "music"},
		WayType:       "way",
		CollisionType: "collision",
	}
}

func (t *CategoryTable) compile() {
	t.dynamicSet = make(map[string]struct{}, len(t.Dynamic))
	for _, typ := range t.Dynamic {
		t.dynamicSet[typ] = struct{}{}
	}
	t.soundSet = make(map[string]struct{}, len(t.Sound))
	for _, typ := range t.Sound {
		t.soundSet[typ] = struct{}{}
	}
}

// Categorize places an object into exactly one bucket. Unrecognized types
// fall through to the static bucket.
func (t *CategoryTable) Categorize(obj *tiled.Object) Category {
	if t.dynamicSet == nil {
		t.compile()
	}

	if obj.Shape == tiled.ShapePolyline && obj.Type == t.WayType {
		return CategoryPatrolPath
	}
	if _, ok := t.soundSet[obj.Type]; ok {
		return CategoryAmbientSound
	}
	if _, ok := t.dynamicSet[obj.Type]; ok {
		return CategoryDynamic
	}
	return CategoryStatic
}
