package world

// OutOfBounds is the tile value views use for cells beyond the world
// edge. It can never collide with a palette index.
const OutOfBounds uint8 = 0xFF

// View is a bounded square window of the world, centered on a cell.
// Tiles is (2*Radius+1)^2 values in row-major order; Objects holds
// copies of every in-window object in ascending id order.
type View struct {
	Center  Pos      `json:"center"`
	Radius  int      `json:"radius"`
	Tiles   []uint8  `json:"tiles"`
	Objects []Object `json:"objects,omitempty"`
}

// Side returns the window edge length.
func (v *View) Side() int { return 2*v.Radius + 1 }

// TileAt returns the window tile at window coordinates (wx, wy).
func (v *View) TileAt(wx, wy int) uint8 {
	return v.Tiles[wy*v.Side()+wx]
}

// View extracts the window around center.
func (w *World) View(center Pos, radius int) View {
	side := 2*radius + 1
	v := View{
		Center: center,
		Radius: radius,
		Tiles:  make([]uint8, side*side),
	}
	i := 0
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			p := Pos{center.X + dx, center.Y + dy}
			if idx, ok := w.MaterialIdx(p); ok {
				v.Tiles[i] = idx
			} else {
				v.Tiles[i] = OutOfBounds
			}
			i++
		}
	}
	for _, id := range w.ObjectIDs() {
		o := w.objects[id]
		if o.Pos.X >= center.X-radius && o.Pos.X <= center.X+radius &&
			o.Pos.Y >= center.Y-radius && o.Pos.Y <= center.Y+radius {
			v.Objects = append(v.Objects, *o)
		}
	}
	return v
}
