package dropindex

// Mover applies a relocation to the underlying ordered model.
type Mover interface {
	Move(id string, newIndex int)
}

// Reorder tracks an element being dragged to a new position within the list.
// A move fires only after the pointer crosses the hovered row's midpoint in
// the direction of travel, so adjacent rows do not swap back and forth.
type Reorder struct {
	mover     Mover
	id        string
	dragIndex int
}

func NewReorder(mover Mover, id string, index int) *Reorder {
	return &Reorder{mover: mover, id: id, dragIndex: index}
}

func (r *Reorder) ID() string {
	return r.id
}

// Index is the dragged element's current index.
func (r *Reorder) Index() int {
	return r.dragIndex
}

// Hover handles the pointer at y over the row at hoverIndex and reports
// whether a move was applied.
func (r *Reorder) Hover(hoverIndex int, y, containerTop float64, hovered Rect) bool {
	if hoverIndex == r.dragIndex {
		return false
	}
	mid := hovered.Midpoint(containerTop)
	if r.dragIndex < hoverIndex && y < mid {
		return false
	}
	if r.dragIndex > hoverIndex && y > mid {
		return false
	}
	r.mover.Move(r.id, hoverIndex)
	r.dragIndex = hoverIndex
	return true
}
