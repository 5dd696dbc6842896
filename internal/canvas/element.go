// Package canvas holds the in-memory model of a form being edited: its
// elements, their order, and the snapshot shape that is persisted.
package canvas

import (
	"github.com/google/uuid"
)

type ElementType string

const (
	TypeText     ElementType = "text"
	TypeTextarea ElementType = "textarea"
	TypeNumber   ElementType = "number"
	TypeEmail    ElementType = "email"
	TypeSelect   ElementType = "select"
	TypeRadio    ElementType = "radio"
	TypeCheckbox ElementType = "checkbox"
	TypeDate     ElementType = "date"
	TypeTime     ElementType = "time"
	TypeDatetime ElementType = "datetime"
	TypeFile     ElementType = "file"
	TypeImage    ElementType = "image"
	TypeSubmit   ElementType = "submit"
	TypeReset    ElementType = "reset"
	TypeLabel    ElementType = "label"
	// TypeLogo is carried by Snapshot.Logo and never placed on the canvas.
	TypeLogo    ElementType = "logo"
	TypeDivider ElementType = "divider"
)

var knownTypes = map[ElementType]struct{}{
	TypeText: {}, TypeTextarea: {}, TypeNumber: {}, TypeEmail: {}, TypeSelect: {},
	TypeRadio: {}, TypeCheckbox: {}, TypeDate: {}, TypeTime: {}, TypeDatetime: {},
	TypeFile: {}, TypeImage: {}, TypeSubmit: {}, TypeReset: {}, TypeLabel: {},
	TypeLogo: {}, TypeDivider: {},
}

func (t ElementType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Orderable reports whether elements of this type belong in the ordered
// canvas sequence.
func (t ElementType) Orderable() bool {
	return t != TypeLogo
}

// IsAction reports whether elements of this type share a row with adjacent
// action elements when rendered.
func (t ElementType) IsAction() bool {
	return t == TypeSubmit || t == TypeReset
}

// Element is one field or control on the canvas. Properties and Style are
// type-specific and opaque to ordering.
type Element struct {
	ID          string         `json:"id"`
	Type        ElementType    `json:"type"`
	Label       string         `json:"label,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	Required    bool           `json:"required,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Style       map[string]any `json:"style,omitempty"`
	Asset       *Asset         `json:"asset,omitempty"`
}

// NewElement returns an element of the given type with a fresh id.
func NewElement(t ElementType) Element {
	return Element{ID: uuid.NewString(), Type: t}
}
