package core

import "time"

// updatedAtField is stamped on optimistically merged documents so the
// UI can show the edit immediately. The server's authoritative value
// replaces it on settle; rollback restores the snapshot, stamp and all.
const updatedAtField = "updatedAt"

// Patch transforms a cached collection to reflect a proposed change
// before the server confirms it. Implementations never modify the
// input. Untouched documents keep their identity so shallow-equality
// checks downstream still short-circuit. The boolean reports whether
// anything changed; a false return means the result is the input value
// itself and the store can skip the write.
type Patch interface {
	Apply(c Collection) (Collection, bool)
}

// MergePatch merges Fields into the document with the given ID,
// stamping an updated-at marker. A missing ID is a no-op: the entity
// may simply not be loaded into this slot's cache yet.
type MergePatch struct {
	ID     string
	Fields map[string]any

	// Now overrides the stamp clock in tests.
	Now func() time.Time
}

func (p MergePatch) Apply(c Collection) (Collection, bool) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	merge := func(items []Doc) ([]Doc, bool) {
		for i, d := range items {
			if d.ID() != p.ID {
				continue
			}
			merged := d.Clone()
			for k, v := range p.Fields {
				merged[k] = cloneValue(v)
			}
			merged[updatedAtField] = now().UTC().Format(time.RFC3339)

			n := make([]Doc, len(items))
			copy(n, items)
			n[i] = merged
			return n, true
		}
		return items, false
	}

	if c.Shape == ShapeFlat {
		items, changed := merge(c.Items)
		if !changed {
			return c, false
		}
		return Collection{Shape: ShapeFlat, Items: items}, true
	}

	for i, page := range c.Pages {
		items, changed := merge(page.Items)
		if !changed {
			continue
		}
		pages := make([]Page, len(c.Pages))
		copy(pages, c.Pages)
		pages[i] = Page{Items: items, Cursor: page.Cursor}
		return Collection{Shape: ShapePaginated, Pages: pages}, true
	}
	return c, false
}

// InsertPatch adds a document to the collection: at the front of a
// flat list, or the front of the first page of a paginated one, where
// newly created entities appear in every list view. Inserting an ID
// already present is a no-op.
type InsertPatch struct {
	Doc Doc
}

func (p InsertPatch) Apply(c Collection) (Collection, bool) {
	if id := p.Doc.ID(); id != "" && c.Find(id) != nil {
		return c, false
	}

	if c.Shape == ShapeFlat {
		items := make([]Doc, 0, len(c.Items)+1)
		items = append(items, p.Doc.Clone())
		items = append(items, c.Items...)
		return Collection{Shape: ShapeFlat, Items: items}, true
	}

	pages := make([]Page, len(c.Pages))
	copy(pages, c.Pages)
	if len(pages) == 0 {
		pages = []Page{{}}
	}
	first := pages[0]
	items := make([]Doc, 0, len(first.Items)+1)
	items = append(items, p.Doc.Clone())
	items = append(items, first.Items...)
	pages[0] = Page{Items: items, Cursor: first.Cursor}
	return Collection{Shape: ShapePaginated, Pages: pages}, true
}

// RemovePatch drops the document with the given ID. A missing ID is a
// no-op.
type RemovePatch struct {
	ID string
}

func (p RemovePatch) Apply(c Collection) (Collection, bool) {
	remove := func(items []Doc) ([]Doc, bool) {
		for i, d := range items {
			if d.ID() != p.ID {
				continue
			}
			n := make([]Doc, 0, len(items)-1)
			n = append(n, items[:i]...)
			n = append(n, items[i+1:]...)
			return n, true
		}
		return items, false
	}

	if c.Shape == ShapeFlat {
		items, changed := remove(c.Items)
		if !changed {
			return c, false
		}
		return Collection{Shape: ShapeFlat, Items: items}, true
	}

	for i, page := range c.Pages {
		items, changed := remove(page.Items)
		if !changed {
			continue
		}
		pages := make([]Page, len(c.Pages))
		copy(pages, c.Pages)
		pages[i] = Page{Items: items, Cursor: page.Cursor}
		return Collection{Shape: ShapePaginated, Pages: pages}, true
	}
	return c, false
}
