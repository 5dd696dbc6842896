package canvas

import (
	"errors"
	"fmt"
)

var (
	ErrMissingID   = errors.New("element id is required")
	ErrDuplicateID = errors.New("element id already on canvas")
	// ErrNotCanvasElement is returned for elements that live outside the
	// ordered sequence, such as the form logo.
	ErrNotCanvasElement = errors.New("element type cannot be placed on the canvas")
)

// Canvas is the ordered sequence of elements of one form-editing session.
// Slice order is display and submission order. A Canvas is owned by a single
// session and is not safe for concurrent use.
type Canvas struct {
	elements []Element
}

func New() *Canvas {
	return &Canvas{}
}

func (c *Canvas) Len() int {
	return len(c.elements)
}

// List returns a copy of the current order.
func (c *Canvas) List() []Element {
	out := make([]Element, len(c.elements))
	copy(out, c.elements)
	return out
}

func (c *Canvas) IndexOf(id string) int {
	for i, el := range c.elements {
		if el.ID == id {
			return i
		}
	}
	return -1
}

// InsertAt places e at index, clamped to [0, Len()]. Out-of-range indexes are
// not an error.
func (c *Canvas) InsertAt(e Element, index int) error {
	if e.ID == "" {
		return ErrMissingID
	}
	if !e.Type.Orderable() {
		return fmt.Errorf("%w: %s", ErrNotCanvasElement, e.Type)
	}
	if c.IndexOf(e.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
	}
	index = clamp(index, 0, len(c.elements))
	c.elements = append(c.elements, Element{})
	copy(c.elements[index+1:], c.elements[index:])
	c.elements[index] = e
	return nil
}

// Move relocates the element with id to newIndex (clamped), keeping the
// relative order of everything else. Unknown ids are ignored.
func (c *Canvas) Move(id string, newIndex int) {
	from := c.IndexOf(id)
	if from < 0 {
		return
	}
	newIndex = clamp(newIndex, 0, len(c.elements)-1)
	if from == newIndex {
		return
	}
	el := c.elements[from]
	if from < newIndex {
		copy(c.elements[from:newIndex], c.elements[from+1:newIndex+1])
	} else {
		copy(c.elements[newIndex+1:from+1], c.elements[newIndex:from])
	}
	c.elements[newIndex] = el
}

// Remove deletes the element with id. Unknown ids are ignored.
func (c *Canvas) Remove(id string) {
	i := c.IndexOf(id)
	if i < 0 {
		return
	}
	c.elements = append(c.elements[:i], c.elements[i+1:]...)
}

// Reset replaces the whole sequence, as on load or import.
func (c *Canvas) Reset(elements []Element) error {
	seen := make(map[string]struct{}, len(elements))
	for _, el := range elements {
		if el.ID == "" {
			return ErrMissingID
		}
		if !el.Type.Orderable() {
			return fmt.Errorf("%w: %s", ErrNotCanvasElement, el.Type)
		}
		if _, dup := seen[el.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, el.ID)
		}
		seen[el.ID] = struct{}{}
	}
	c.elements = make([]Element, len(elements))
	copy(c.elements, elements)
	return nil
}

// ReplaceAsset swaps the asset of the element with id from old to replacement.
// It does nothing and reports false when the element is gone or its asset has
// changed since old was read.
func (c *Canvas) ReplaceAsset(id string, old, replacement *Asset) bool {
	i := c.IndexOf(id)
	if i < 0 || c.elements[i].Asset != old {
		return false
	}
	c.elements[i].Asset = replacement
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
