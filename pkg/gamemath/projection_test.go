package gamemath

import "testing"

func TestWorldToIso(t *testing.T) {
	tests := []struct {
		name         string
		gridX, gridY float64
		tileW, tileH float64
		wantX, wantY float64
	}{
		{"origin", 0, 0, 64, 32, 0, 0},
		{"one right", 1, 0, 64, 32, 32, 32},
		{"one down", 0, 1, 64, 32, -32, 32},
		{"diamond", 2, 3, 64, 32, -32, 160},
		{"fractional", 0.5, 0.5, 64, 32, 0, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := WorldToIso(tt.gridX, tt.gridY, tt.tileW, tt.tileH)
			if x != tt.wantX || y != tt.wantY {
				t.Errorf("expected (%f, %f), got (%f, %f)", tt.wantX, tt.wantY, x, y)
			}
		})
	}
}

func TestWorldToIsoOffset(t *testing.T) {
	x, y := WorldToIsoOffset(2, 3, -16, 0, 64, 32)
	wantX, wantY := WorldToIso(-14, 3, 64, 32)
	if x != wantX || y != wantY {
		t.Errorf("expected (%f, %f), got (%f, %f)", wantX, wantY, x, y)
	}
}

func TestIsoToWorldRoundTrip(t *testing.T) {
	for gx := -5; gx <= 5; gx++ {
		for gy := -5; gy <= 5; gy++ {
			x, y := WorldToIso(float64(gx), float64(gy), 64, 32)
			rx, ry := IsoToWorld(x, y, 64, 32)
			if rx != gx || ry != gy {
				t.Errorf("cell (%d,%d) round-tripped to (%d,%d)", gx, gy, rx, ry)
			}
		}
	}
}

func TestIsoToWorldFloors(t *testing.T) {
	// A position inside the cell maps to the cell's corner coordinate
	x, y := WorldToIso(2, 3, 64, 32)
	gx, gy := IsoToWorld(x+1, y+17, 64, 32)
	if gx != 2 || gy != 3 {
		t.Errorf("expected cell (2,3), got (%d,%d)", gx, gy)
	}
}

func TestWorldToOrtho(t *testing.T) {
	x, y := WorldToOrtho(3, 2, 16, 16)
	if x != 48 || y != 32 {
		t.Errorf("expected (48, 32), got (%f, %f)", x, y)
	}
}

func TestOrthoToWorldRoundTrip(t *testing.T) {
	for gx := -3; gx <= 3; gx++ {
		for gy := -3; gy <= 3; gy++ {
			x, y := WorldToOrtho(float64(gx), float64(gy), 16, 16)
			rx, ry := OrthoToWorld(x+0.5, y+0.5, 16, 16)
			if rx != gx || ry != gy {
				t.Errorf("cell (%d,%d) round-tripped to (%d,%d)", gx, gy, rx, ry)
			}
		}
	}
}
