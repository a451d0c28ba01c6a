package utils

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// PersonalizationData is the flat variable map a template is rendered
// against. Values are strings or numbers.
type PersonalizationData map[string]any

// Predicate decides whether a conditional block is kept.
type Predicate func(data PersonalizationData) bool

// defaultBlocks returns the age blocks every renderer starts with. Each call
// builds a fresh table.
func defaultBlocks() map[string]Predicate {
	under65 := ageMatches(func(age float64) bool { return age < 65 })
	over65 := ageMatches(func(age float64) bool { return age >= 65 })
	turning65 := ageMatches(func(age float64) bool { return age == 64 })

	return map[string]Predicate{
		"if_under_65":   under65,
		"if_65_plus":    over65,
		"if_over_65":    over65,
		"if_turning_65": turning65,
	}
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

type conditionalBlock struct {
	pattern   *regexp.Regexp
	predicate Predicate
}

// Renderer substitutes {var} placeholders and evaluates conditional blocks.
type Renderer struct {
	blocks []conditionalBlock
}

// NewRenderer returns a renderer with the age blocks registered.
func NewRenderer() *Renderer {
	blocks := defaultBlocks()
	markers := make([]string, 0, len(blocks))
	for marker := range blocks {
		markers = append(markers, marker)
	}
	sort.Strings(markers)

	r := &Renderer{}
	for _, marker := range markers {
		r.RegisterBlock(marker, blocks[marker])
	}
	return r
}

// RegisterBlock adds a {marker}...{/marker} block kept only when predicate
// holds.
func (r *Renderer) RegisterBlock(marker string, predicate Predicate) {
	quoted := regexp.QuoteMeta(marker)
	r.blocks = append(r.blocks, conditionalBlock{
		pattern:   regexp.MustCompile(`(?s)\{` + quoted + `\}(.*?)\{/` + quoted + `\}`),
		predicate: predicate,
	})
}

// Render resolves conditional blocks first, then placeholders. Missing keys
// render as the empty string.
func (r *Renderer) Render(template string, data PersonalizationData) string {
	return r.render(template, data, false)
}

// RenderHTML is Render with substituted values HTML-escaped. Template markup
// is left as written.
func (r *Renderer) RenderHTML(template string, data PersonalizationData) string {
	return r.render(template, data, true)
}

func (r *Renderer) render(template string, data PersonalizationData, escape bool) string {
	out := template
	for _, block := range r.blocks {
		keep := block.predicate != nil && block.predicate(data)
		out = block.pattern.ReplaceAllStringFunc(out, func(match string) string {
			if !keep {
				return ""
			}
			return block.pattern.FindStringSubmatch(match)[1]
		})
	}

	return placeholderPattern.ReplaceAllStringFunc(out, func(token string) string {
		key := token[1 : len(token)-1]
		value, ok := data[key]
		if !ok || value == nil {
			return ""
		}
		text := fmt.Sprint(value)
		if escape {
			return html.EscapeString(text)
		}
		return text
	})
}

// Age returns the numeric age from the data, if there is one.
func (d PersonalizationData) Age() (float64, bool) {
	switch v := d["age"].(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		age, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return age, true
	}
	return 0, false
}

// An unknown age fails every age predicate, so age blocks are discarded.
func ageMatches(test func(age float64) bool) Predicate {
	return func(data PersonalizationData) bool {
		age, ok := data.Age()
		return ok && test(age)
	}
}
