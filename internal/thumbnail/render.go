package thumbnail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"formdesk/api/internal/canvas"
)

//go:embed templates/*.html
var templateFS embed.FS

var previewTemplate = template.Must(template.ParseFS(templateFS, "templates/thumbnail.html"))

var (
	markupPolicyOnce sync.Once
	markupPolicy     *bluemonday.Policy
)

// markupSanitizer allows the formatting markup a label element may carry.
func markupSanitizer() *bluemonday.Policy {
	markupPolicyOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.AllowElements("span", "small")
		markupPolicy = policy
	})
	return markupPolicy
}

type previewData struct {
	Title   string
	LogoSrc template.URL
	Rows    []previewRow
}

// previewRow is either a single field or a run of action buttons.
type previewRow struct {
	Field   *previewField
	Actions []previewField
}

type previewField struct {
	Type        string
	Label       string
	Placeholder string
	Required    bool
	Tall        bool
	ImageSrc    template.URL
	Markup      template.HTML
}

// Render produces the HTML preview of a snapshot. Consecutive submit and
// reset elements share one row.
func Render(snapshot canvas.Snapshot) (string, error) {
	data := previewData{Title: snapshot.Title}
	if snapshot.Logo != nil {
		data.LogoSrc = safeImageURL(snapshot.Logo.Src)
	}

	for _, run := range canvas.Runs(snapshot.Elements) {
		if len(run) > 0 && run[0].Type.IsAction() {
			row := previewRow{}
			for _, e := range run {
				row.Actions = append(row.Actions, toField(e))
			}
			data.Rows = append(data.Rows, row)
			continue
		}
		for _, e := range run {
			field := toField(e)
			data.Rows = append(data.Rows, previewRow{Field: &field})
		}
	}

	var buf bytes.Buffer
	if err := previewTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render preview: %w", err)
	}
	return buf.String(), nil
}

func toField(e canvas.Element) previewField {
	field := previewField{
		Type:        string(e.Type),
		Label:       e.Label,
		Placeholder: e.Placeholder,
		Required:    e.Required,
		Tall:        e.Type == canvas.TypeTextarea,
	}
	if !e.Type.Known() {
		field.Type = "unknown"
	}
	if field.Label == "" && e.Type.IsAction() {
		field.Label = strings.ToUpper(string(e.Type[:1])) + string(e.Type[1:])
	}
	if e.Asset != nil && e.Type == canvas.TypeImage {
		field.ImageSrc = safeImageURL(e.Asset.Src)
	}
	if e.Type == canvas.TypeLabel {
		if raw, ok := e.Properties["html"].(string); ok {
			field.Markup = template.HTML(markupSanitizer().Sanitize(raw))
		}
	}
	return field
}

// safeImageURL admits inline image data and http(s) sources only.
func safeImageURL(src string) template.URL {
	src = strings.TrimSpace(src)
	lower := strings.ToLower(src)
	switch {
	case strings.HasPrefix(lower, "data:image/"),
		strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "http://"):
		return template.URL(src)
	default:
		return ""
	}
}
