// Package dropindex turns pointer positions over a rendered list of rows
// into insertion indexes.
//
// All coordinates share one vertical axis. y is the pointer offset relative
// to the top of the list container; Rect.Top is in the same absolute space as
// containerTop, so a row's position inside the container is Top-containerTop.
package dropindex

// Rect is the vertical extent of one rendered row.
type Rect struct {
	Top    float64
	Height float64
}

// Midpoint returns the row's vertical center relative to the container.
func (r Rect) Midpoint(containerTop float64) float64 {
	return r.Top + r.Height/2 - containerTop
}

// Resolve returns the index of the first row whose midpoint lies below y, or
// len(rows) when the pointer is past every midpoint. Switching on midpoints
// rather than edges keeps the target stable while the pointer moves inside a row.
func Resolve(y, containerTop float64, rows []Rect) int {
	for i, row := range rows {
		if row.Midpoint(containerTop) > y {
			return i
		}
	}
	return len(rows)
}

// HoverIndex returns the row whose vertical span contains y.
func HoverIndex(y, containerTop float64, rows []Rect) (int, bool) {
	for i, row := range rows {
		top := row.Top - containerTop
		if y >= top && y < top+row.Height {
			return i, true
		}
	}
	return -1, false
}
