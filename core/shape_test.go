package core

import (
	"encoding/json"
	"reflect"
	"testing"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return v
}

func TestNormalize_ItemsEnvelope(t *testing.T) {
	c, err := Normalize(decode(t, `{"items": [{"id": "p1"}, {"id": "p2"}]}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if c.Shape != ShapeFlat || c.Len() != 2 {
		t.Errorf("expected flat collection of 2, got shape=%d len=%d", c.Shape, c.Len())
	}
}

func TestNormalize_BareArray(t *testing.T) {
	c, err := Normalize(decode(t, `[{"id": "p1"}]`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if c.Shape != ShapeFlat || c.Len() != 1 {
		t.Errorf("expected flat collection of 1, got shape=%d len=%d", c.Shape, c.Len())
	}
}

func TestNormalize_NestedDataEnvelope(t *testing.T) {
	c, err := Normalize(decode(t, `{"data": {"items": [{"id": "p1"}]}}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if c.Shape != ShapeFlat || c.Len() != 1 {
		t.Errorf("expected flat collection of 1, got shape=%d len=%d", c.Shape, c.Len())
	}
}

func TestNormalize_Paginated(t *testing.T) {
	c, err := Normalize(decode(t, `{"pages": [{"items": [{"id": "p1"}], "cursor": "abc"}, {"items": [{"id": "p2"}]}]}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if c.Shape != ShapePaginated {
		t.Fatalf("expected paginated shape")
	}
	if len(c.Pages) != 2 || c.Pages[0].Cursor != "abc" {
		t.Errorf("pages decoded wrong: %+v", c.Pages)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 items across pages, got %d", c.Len())
	}
}

func TestNormalize_SingleResource(t *testing.T) {
	c, err := Normalize(decode(t, `{"id": "j1", "status": "OPEN"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if c.Shape != ShapeFlat || c.Len() != 1 || c.Items[0].ID() != "j1" {
		t.Errorf("expected one-item flat collection, got %+v", c)
	}
}

func TestNormalize_Nil(t *testing.T) {
	c, err := Normalize(nil)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if c.Shape != ShapeFlat || c.Len() != 0 {
		t.Errorf("expected empty flat collection")
	}
}

func TestCollection_CloneRoundTrip(t *testing.T) {
	c := Paginated([]Page{
		{Items: []Doc{{"id": "j1", "nested": map[string]any{"a": []any{1.0, 2.0}}}}, Cursor: "c1"},
	})
	clone := c.Clone()
	if !reflect.DeepEqual(c, clone) {
		t.Fatalf("clone not deep-equal: %#v vs %#v", c, clone)
	}

	// Mutating the clone must not leak into the original.
	clone.Pages[0].Items[0]["id"] = "changed"
	clone.Pages[0].Items[0]["nested"].(map[string]any)["a"].([]any)[0] = 9.0
	if c.Pages[0].Items[0]["id"] != "j1" {
		t.Errorf("clone shares document maps with original")
	}
	if c.Pages[0].Items[0]["nested"].(map[string]any)["a"].([]any)[0] != 1.0 {
		t.Errorf("clone shares nested values with original")
	}
}

func TestDoc_ID(t *testing.T) {
	cases := []struct {
		doc  Doc
		want string
	}{
		{Doc{"id": "j1"}, "j1"},
		{Doc{"id": 42.0}, "42"}, // JSON numbers decode to float64
		{Doc{"id": 7}, "7"},
		{Doc{}, ""},
		{Doc{"id": true}, ""},
	}
	for _, tc := range cases {
		if got := tc.doc.ID(); got != tc.want {
			t.Errorf("ID() = %q, want %q for %v", got, tc.want, tc.doc)
		}
	}
}
