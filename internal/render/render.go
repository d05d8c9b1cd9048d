// Package render substitutes per-recipient placeholders into HTML templates.
//
// Placeholders are literal tokens, not a template language: {{ key }} or
// {{key}} for parameters and {{TRACKING_PIXEL}} for the pixel markup.
package render

import (
	"sort"
	"strings"
)

// PixelPlaceholder marks where the tracking pixel goes.
const PixelPlaceholder = "{{TRACKING_PIXEL}}"

// PlaceholderRenderer renders templates by plain token replacement.
type PlaceholderRenderer struct{}

func NewPlaceholderRenderer() *PlaceholderRenderer {
	return &PlaceholderRenderer{}
}

// Render replaces parameter placeholders and the pixel placeholder. A non-empty
// pixel is inserted before </body>, or appended, when the template has no
// pixel placeholder.
func (r *PlaceholderRenderer) Render(template string, params map[string]string, pixel string) (string, error) {
	pairs := make([]string, 0, len(params)*4+2)
	for _, key := range sortedKeys(params) {
		value := params[key]
		pairs = append(pairs, "{{ "+key+" }}", value, "{{"+key+"}}", value)
	}
	pairs = append(pairs, PixelPlaceholder, pixel)

	hasPixelPlaceholder := strings.Contains(template, PixelPlaceholder)
	rendered := strings.NewReplacer(pairs...).Replace(template)

	if hasPixelPlaceholder || pixel == "" {
		return rendered, nil
	}
	return injectPixel(rendered, pixel), nil
}

func injectPixel(html string, pixel string) string {
	idx := strings.LastIndex(strings.ToLower(html), "</body>")
	if idx < 0 {
		return html + pixel
	}
	return html[:idx] + pixel + html[idx:]
}

func sortedKeys(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if strings.TrimSpace(key) == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
