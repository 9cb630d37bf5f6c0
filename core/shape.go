package core

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Doc is one entity as returned by the API. Identity is the "id" field.
type Doc map[string]any

// ID returns the entity id, or "" when the document has none.
func (d Doc) ID() string {
	switch v := d["id"].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int:
		return fmt.Sprintf("%d", v)
	}
	return ""
}

// Clone returns a deep copy of the document.
func (d Doc) Clone() Doc {
	return cloneValue(map[string]any(d)).(map[string]any)
}

// Shape tags the container layout of a cached collection.
type Shape uint8

const (
	ShapeFlat Shape = iota
	ShapePaginated
)

// Page is one page of a paginated collection.
type Page struct {
	Items  []Doc  `mapstructure:"items"`
	Cursor string `mapstructure:"cursor"`
}

// Collection is the canonical container for cached response data.
// Normalize produces it once at the fetch boundary so patch functions
// never re-detect the server's envelope per call site. Exactly one of
// Items or Pages is meaningful depending on Shape.
type Collection struct {
	Shape Shape
	Items []Doc
	Pages []Page
}

// Flat builds a flat collection.
func Flat(items []Doc) Collection {
	return Collection{Shape: ShapeFlat, Items: items}
}

// Paginated builds a paginated collection.
func Paginated(pages []Page) Collection {
	return Collection{Shape: ShapePaginated, Pages: pages}
}

// Len returns the total item count across pages or the flat length.
func (c Collection) Len() int {
	if c.Shape == ShapeFlat {
		return len(c.Items)
	}
	n := 0
	for _, p := range c.Pages {
		n += len(p.Items)
	}
	return n
}

// Find returns the document with the given id, or nil.
func (c Collection) Find(id string) Doc {
	if c.Shape == ShapeFlat {
		for _, d := range c.Items {
			if d.ID() == id {
				return d
			}
		}
		return nil
	}
	for _, p := range c.Pages {
		for _, d := range p.Items {
			if d.ID() == id {
				return d
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the collection.
func (c Collection) Clone() Collection {
	n := Collection{Shape: c.Shape}
	if c.Items != nil {
		n.Items = make([]Doc, len(c.Items))
		for i, d := range c.Items {
			n.Items[i] = d.Clone()
		}
	}
	if c.Pages != nil {
		n.Pages = make([]Page, len(c.Pages))
		for i, p := range c.Pages {
			np := Page{Cursor: p.Cursor}
			if p.Items != nil {
				np.Items = make([]Doc, len(p.Items))
				for j, d := range p.Items {
					np.Items[j] = d.Clone()
				}
			}
			n.Pages[i] = np
		}
	}
	return n
}

// Normalize converts a decoded JSON response body into the canonical
// Collection. The API is not consistent about envelopes: list
// endpoints return {items: [...]}, some legacy ones a bare array, a
// few wrap twice as {data: {items: [...]}}, and cursor-paginated
// endpoints return {pages: [{items, cursor}, ...]}. A single resource
// object normalizes to a one-item flat collection so patch functions
// treat detail and list slots uniformly.
func Normalize(raw any) (Collection, error) {
	switch v := raw.(type) {
	case nil:
		return Flat(nil), nil

	case Collection:
		return v, nil

	case []any:
		return Flat(toDocs(v)), nil

	case []Doc:
		return Flat(v), nil

	case []map[string]any:
		items := make([]Doc, len(v))
		for i, m := range v {
			items[i] = Doc(m)
		}
		return Flat(items), nil

	case map[string]any:
		if pages, ok := v["pages"]; ok {
			var decoded struct {
				Pages []Page `mapstructure:"pages"`
			}
			if err := mapstructure.Decode(map[string]any{"pages": pages}, &decoded); err != nil {
				return Collection{}, fmt.Errorf("normalize paginated response: %w", err)
			}
			return Paginated(decoded.Pages), nil
		}
		if items, ok := v["items"]; ok {
			list, ok := items.([]any)
			if !ok {
				return Collection{}, fmt.Errorf("normalize response: items is %T, want array", items)
			}
			return Flat(toDocs(list)), nil
		}
		if data, ok := v["data"]; ok {
			return Normalize(data)
		}
		// A single resource object.
		return Flat([]Doc{Doc(v)}), nil

	case Doc:
		return Flat([]Doc{v}), nil
	}
	return Collection{}, fmt.Errorf("normalize response: unsupported shape %T", raw)
}

func toDocs(list []any) []Doc {
	items := make([]Doc, 0, len(list))
	for _, it := range list {
		if m, ok := it.(map[string]any); ok {
			items = append(items, Doc(m))
		}
	}
	return items
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		n := make(map[string]any, len(t))
		for k, val := range t {
			n[k] = cloneValue(val)
		}
		return n
	case []any:
		n := make([]any, len(t))
		for i, val := range t {
			n[i] = cloneValue(val)
		}
		return n
	default:
		return v
	}
}
