package designer

import (
	"errors"

	"formdesk/api/internal/canvas"
	"formdesk/api/internal/dropindex"
)

var ErrNoDrag = errors.New("no drag in progress")

// PointerEvent is a pointer position in the same coordinate space as the
// rendered rows of the canvas container.
type PointerEvent struct {
	Y            float64
	ContainerTop float64
}

type dragMode int

const (
	dragIdle dragMode = iota
	dragInsert
	dragMove
)

// DragController turns pointer events into canvas commands. Inserting a new
// element resolves its drop index on drop; moving an existing element
// relocates it live as the pointer crosses row midpoints.
type DragController struct {
	canvas *canvas.Canvas

	mode    dragMode
	pending canvas.Element
	reorder *dropindex.Reorder
	origin  int
	preview int
}

func NewDragController(c *canvas.Canvas) *DragController {
	return &DragController{canvas: c}
}

func (d *DragController) Active() bool {
	return d.mode != dragIdle
}

// BeginInsert starts dragging a new element from the palette.
func (d *DragController) BeginInsert(e canvas.Element) {
	d.reset()
	d.mode = dragInsert
	d.pending = e
	d.preview = d.canvas.Len()
}

// BeginMove starts dragging the element with id. It reports false if the
// element is not on the canvas.
func (d *DragController) BeginMove(id string) bool {
	d.reset()
	index := d.canvas.IndexOf(id)
	if index < 0 {
		return false
	}
	d.mode = dragMove
	d.reorder = dropindex.NewReorder(d.canvas, id, index)
	d.origin = index
	return true
}

// PointerMove handles a pointer-move over the rows and returns the index
// the dragged element would occupy.
func (d *DragController) PointerMove(ev PointerEvent, rows []dropindex.Rect) int {
	switch d.mode {
	case dragInsert:
		d.preview = dropindex.Resolve(ev.Y, ev.ContainerTop, rows)
		return d.preview
	case dragMove:
		if hover, ok := dropindex.HoverIndex(ev.Y, ev.ContainerTop, rows); ok {
			d.reorder.Hover(hover, ev.Y, ev.ContainerTop, rows[hover])
		}
		return d.reorder.Index()
	default:
		return -1
	}
}

// Drop finishes the drag. For an insert the element is placed at the index
// resolved from the drop position.
func (d *DragController) Drop(ev PointerEvent, rows []dropindex.Rect) error {
	defer d.reset()
	switch d.mode {
	case dragInsert:
		return d.canvas.InsertAt(d.pending, dropindex.Resolve(ev.Y, ev.ContainerTop, rows))
	case dragMove:
		d.PointerMove(ev, rows)
		return nil
	default:
		return ErrNoDrag
	}
}

// Cancel abandons the drag. A moved element returns to where it started.
func (d *DragController) Cancel() {
	if d.mode == dragMove {
		d.canvas.Move(d.reorder.ID(), d.origin)
	}
	d.reset()
}

func (d *DragController) reset() {
	d.mode = dragIdle
	d.pending = canvas.Element{}
	d.reorder = nil
	d.origin = 0
	d.preview = 0
}
