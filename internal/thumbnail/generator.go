// Package thumbnail renders preview artifacts of a form snapshot.
package thumbnail

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"formdesk/api/internal/canvas"
)

const (
	KindHTML   = "html"
	KindChrome = "chrome"
)

// Artifact is an opaque rendered preview.
type Artifact struct {
	Data        []byte
	ContentType string
}

// Generator turns the rawJson of a form version into a preview artifact.
type Generator interface {
	Generate(ctx context.Context, rawJSON json.RawMessage) (Artifact, error)
}

// HTMLGenerator returns the sanitized HTML preview itself.
type HTMLGenerator struct{}

func (HTMLGenerator) Generate(ctx context.Context, rawJSON json.RawMessage) (Artifact, error) {
	html, err := renderRaw(rawJSON)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Data: []byte(html), ContentType: "text/html; charset=utf-8"}, nil
}

// New returns the generator for kind ("html" or "chrome").
func New(kind string, timeout time.Duration) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindHTML:
		return HTMLGenerator{}, nil
	case KindChrome:
		return &ChromeGenerator{Timeout: timeout}, nil
	default:
		return nil, fmt.Errorf("unknown thumbnail renderer %q", kind)
	}
}

func renderRaw(rawJSON json.RawMessage) (string, error) {
	snapshot, err := canvas.ParseSnapshot(rawJSON)
	if err != nil {
		return "", fmt.Errorf("thumbnail: %w", err)
	}
	return Render(snapshot)
}
