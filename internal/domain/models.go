package domain

import (
	"encoding/json"
	"maps"
)

// RefSet holds the known tags and branches of a repository
type RefSet struct {
	Tags     []string `json:"tags"`
	Branches []string `json:"branches"`
}

// Has reports whether ref is a literal tag or branch
func (s RefSet) Has(ref string) bool {
	for _, t := range s.Tags {
		if t == ref {
			return true
		}
	}
	for _, b := range s.Branches {
		if b == ref {
			return true
		}
	}
	return false
}

// DocAttributes is the front matter of a markdown document.
// Keys other than title, order, new and hidden are kept in Extra.
type DocAttributes struct {
	Title  string
	Order  *float64
	IsNew  *bool
	Hidden bool
	Extra  map[string]any
}

// HasOrder reports whether an explicit order was set
func (a DocAttributes) HasOrder() bool {
	return a.Order != nil
}

// MarshalJSON flattens Extra next to the known keys
func (a DocAttributes) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Extra)+4)
	maps.Copy(out, a.Extra)
	out["title"] = a.Title
	if a.Order != nil {
		out["order"] = *a.Order
	}
	if a.IsNew != nil {
		out["new"] = *a.IsNew
	}
	if a.Hidden {
		out["hidden"] = true
	}
	return json.Marshal(out)
}

// MenuNode is one entry of the navigation tree
type MenuNode struct {
	Slug       string        `json:"slug"`
	Filename   string        `json:"filename"`
	Attributes DocAttributes `json:"attrs"`
	HasContent bool          `json:"hasContent"`
	Children   []*MenuNode   `json:"children"`
}

// Heading is a table of contents entry
type Heading struct {
	Level    int    `json:"level"`
	HTML     string `json:"html"`
	AnchorID string `json:"slug"`
}

// RenderedDoc is a document converted to HTML
type RenderedDoc struct {
	Slug       string        `json:"slug"`
	Filename   string        `json:"filename"`
	Attributes DocAttributes `json:"attrs"`
	HTML       string        `json:"html"`
	Headings   []Heading     `json:"headings"`
}

// TarEntry is a matching file read from a source archive
type TarEntry struct {
	RelativePath string
	Content      string
}
