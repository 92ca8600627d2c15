package level

import (
	"testing"

	"github.com/Faultbox/tileforge/pkg/tiled"
)

func TestCategorizeDefaults(t *testing.T) {
	table := DefaultCategoryTable()

	tests := []struct {
		name string
		obj  tiled.Object
		want Category
	}{
		{"npc is dynamic", tiled.Object{Type: "npc"}, CategoryDynamic},
		{"player is dynamic", tiled.Object{Type: "player"}, CategoryDynamic},
		{"sound emitter", tiled.Object{Type: "ambience"}, CategoryAmbientSound},
		{"patrol polyline", tiled.Object{Type: "way", Shape: tiled.ShapePolyline}, CategoryPatrolPath},
		{"untyped", tiled.Object{}, CategoryStatic},
		{"unknown type", tiled.Object{Type: "quantum-gate"}, CategoryStatic},
		// A way-typed rectangle is not a path
		{"way rectangle", tiled.Object{Type: "way", Shape: tiled.ShapeRectangle}, CategoryStatic},
		// A plain polyline without the way type is not a path
		{"plain polyline", tiled.Object{Shape: tiled.ShapePolyline}, CategoryStatic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.Categorize(&tt.obj); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCategorizeCustomTable(t *testing.T) {
	table := &CategoryTable{
		Dynamic: []string{"drone"},
		Sound:   []string{"hum"},
		WayType: "flightpath",
	}

	if got := table.Categorize(&tiled.Object{Type: "drone"}); got != CategoryDynamic {
		t.Errorf("expected dynamic, got %s", got)
	}
	if got := table.Categorize(&tiled.Object{Type: "hum"}); got != CategoryAmbientSound {
		t.Errorf("expected ambient-sound, got %s", got)
	}
	if got := table.Categorize(&tiled.Object{Type: "flightpath", Shape: tiled.ShapePolyline}); got != CategoryPatrolPath {
		t.Errorf("expected patrol-path, got %s", got)
	}
	// The default lists do not apply once overridden
	if got := table.Categorize(&tiled.Object{Type: "npc"}); got != CategoryStatic {
		t.Errorf("expected static, got %s", got)
	}
}
