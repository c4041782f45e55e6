// Package frontmatter splits YAML metadata from markdown documents.
package frontmatter

import (
	"fmt"
	"strings"

	"github.com/quantmind-br/docgate/internal/domain"
	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Split separates a leading "---" delimited block from the rest of content.
// ok is false when content has no complete block, in which case body is the
// full text.
func Split(content string) (meta, body string, ok bool) {
	text := strings.TrimPrefix(content, "\ufeff")

	first, rest, found := cutLine(text)
	if !found || strings.TrimRight(first, " \t\r") != delimiter {
		return "", content, false
	}

	var metaLines []string
	for {
		line, remaining, more := cutLine(rest)
		if strings.TrimRight(line, " \t\r") == delimiter {
			return strings.Join(metaLines, "\n"), remaining, true
		}
		if !more {
			return "", content, false
		}
		metaLines = append(metaLines, line)
		rest = remaining
	}
}

// cutLine returns the first line of s without its terminator.
// more is false when s had no newline.
func cutLine(s string) (line, rest string, more bool) {
	line, rest, more = strings.Cut(s, "\n")
	return line, rest, more
}

// Parse extracts the attributes and body of a markdown file. Title defaults
// to filename and is overridden by a non-empty title in the metadata block.
// A metadata block that is not a valid YAML mapping yields a ParseError.
func Parse(content, filename string) (domain.DocAttributes, string, error) {
	attrs := domain.DocAttributes{Title: filename}

	meta, body, ok := Split(content)
	if !ok {
		return attrs, content, nil
	}

	var data map[string]any
	if err := yaml.Unmarshal([]byte(meta), &data); err != nil {
		return attrs, "", domain.NewParseError(filename, err)
	}

	apply(&attrs, data)
	return attrs, body, nil
}

func apply(attrs *domain.DocAttributes, data map[string]any) {
	for key, value := range data {
		switch key {
		case "title":
			if title := stringify(value); title != "" {
				attrs.Title = title
			}
		case "order":
			if order, ok := toFloat(value); ok {
				attrs.Order = &order
				continue
			}
			setExtra(attrs, key, value)
		case "new":
			if b, ok := value.(bool); ok {
				attrs.IsNew = &b
				continue
			}
			setExtra(attrs, key, value)
		case "hidden":
			attrs.Hidden = truthy(value)
		default:
			setExtra(attrs, key, value)
		}
	}
}

func setExtra(attrs *domain.DocAttributes, key string, value any) {
	if attrs.Extra == nil {
		attrs.Extra = make(map[string]any)
	}
	attrs.Extra[key] = value
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// truthy mirrors loose boolean checks on metadata written by hand
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false"
	case int:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
