package gamemath

import "math"

// WorldToIso projects a tile-grid coordinate into isometric (diamond) screen
// space. Each grid step moves half a tile width horizontally and a full tile
// height vertically, so WorldToIso(2, 3, 64, 32) lands at (-32, 160).
func WorldToIso(gridX, gridY, tileWidth, tileHeight float64) (x, y float64) {
	return (gridX - gridY) * tileWidth / 2, (gridX + gridY) * tileHeight
}

// WorldToIsoOffset projects a tile-grid coordinate after adding a layer or
// chunk origin offset, both given in grid cells.
func WorldToIsoOffset(gridX, gridY, originX, originY, tileWidth, tileHeight float64) (x, y float64) {
	return WorldToIso(gridX+originX, gridY+originY, tileWidth, tileHeight)
}

// IsoToWorld is the exact inverse of WorldToIso, floored to an integer grid
// cell.
func IsoToWorld(isoX, isoY, tileWidth, tileHeight float64) (gridX, gridY int) {
	fx := isoX * 2 / tileWidth
	fy := isoY / tileHeight
	return int(math.Floor((fy + fx) / 2)), int(math.Floor((fy - fx) / 2))
}

// WorldToOrtho projects a tile-grid coordinate into orthogonal screen space.
func WorldToOrtho(gridX, gridY, tileWidth, tileHeight float64) (x, y float64) {
	return gridX * tileWidth, gridY * tileHeight
}

// OrthoToWorld converts an orthogonal screen position back to a grid cell.
func OrthoToWorld(x, y, tileWidth, tileHeight float64) (gridX, gridY int) {
	return int(math.Floor(x / tileWidth)), int(math.Floor(y / tileHeight))
}
