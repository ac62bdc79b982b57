package dag

import (
	"slices"
	"testing"

	"github.com/kbukum/pipekit/errors"
)

func bind(node, port string) Binding { return Binding{Node: NewNode(node), Port: port} }

func param(name string, bindings ...Binding) Param {
	return Param{Name: name, Bindings: bindings}
}

func TestParams_NewMergesSameName(t *testing.T) {
	ps := NewParams(param("x", bind("a", "x")), param("y", bind("a", "y")), param("x", bind("b", "x")))
	if got := ps.Names(); !slices.Equal(got, []string{"x", "y"}) {
		t.Fatalf("expected [x y], got %v", got)
	}
	x, _ := ps.Get("x")
	if len(x.Bindings) != 2 || x.Bindings[0].Node.Key() != "a" || x.Bindings[1].Node.Key() != "b" {
		t.Fatalf("expected bindings a then b, got %v", x.Bindings)
	}
}

func TestParams_UnionKeepsConstructionOrder(t *testing.T) {
	left := NewParams(param("z", bind("b", "z")))
	right := NewParams(param("z", bind("c", "z")), param("w", bind("c", "w")))
	u := left.Union(right)

	z, ok := u.Get("z")
	if !ok {
		t.Fatal("expected z in union")
	}
	if got := []string{z.Bindings[0].String(), z.Bindings[1].String()}; !slices.Equal(got, []string{"b.z", "c.z"}) {
		t.Fatalf("expected [b.z c.z], got %v", got)
	}
	if left.Len() != 1 {
		t.Fatalf("union must not modify the receiver")
	}
}

func TestParams_Collections(t *testing.T) {
	ps := NewParams(
		param("feats.a", bind("n", "feats.a")),
		param("feats.b", bind("n", "feats.b")),
		param("label", bind("n", "label")),
	)

	if !ps.Has("feats") || !ps.Has("feats.a") || ps.Has("feats.c") {
		t.Fatal("unexpected Has results")
	}
	if got := ps.Select("feats").Names(); !slices.Equal(got, []string{"feats.a", "feats.b"}) {
		t.Fatalf("expected collection entries, got %v", got)
	}
	if got := ps.Collections()["feats"]; !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("expected entries [a b], got %v", got)
	}

	tests := []struct {
		name    string
		without []string
		want    []string
	}{
		{"whole collection", []string{"feats"}, []string{"label"}},
		{"single entry", []string{"feats.a"}, []string{"feats.b", "label"}},
		{"bare name", []string{"label"}, []string{"feats.a", "feats.b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ps.Without(tt.without...).Names(); !slices.Equal(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParams_MinusAndIntersect(t *testing.T) {
	ps := NewParams(param("a"), param("b"), param("c"))
	other := NewParams(param("b"), param("d"))

	if got := ps.Minus(other).Names(); !slices.Equal(got, []string{"a", "c"}) {
		t.Fatalf("Minus: expected [a c], got %v", got)
	}
	if got := ps.Intersect(other).Names(); !slices.Equal(got, []string{"b"}) {
		t.Fatalf("Intersect: expected [b], got %v", got)
	}
}

func TestParams_RenameRoundTrip(t *testing.T) {
	ps := NewParams(param("x", bind("a", "x")), param("y", bind("a", "y")))

	renamed, err := ps.Rename(map[string]string{"x": "input"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := renamed.Names(); !slices.Equal(got, []string{"input", "y"}) {
		t.Fatalf("expected [input y], got %v", got)
	}
	back, err := renamed.Rename(map[string]string{"input": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := back.Names(); !slices.Equal(got, ps.Names()) {
		t.Fatalf("expected %v after round trip, got %v", ps.Names(), got)
	}
	x, _ := back.Get("x")
	if x.Bindings[0] != bind("a", "x") {
		t.Fatalf("expected binding a.x to survive, got %v", x.Bindings)
	}
}

func TestParams_RenameSwap(t *testing.T) {
	ps := NewParams(param("a", bind("n", "a")), param("b", bind("n", "b")))
	swapped, err := ps.Rename(map[string]string{"a": "b", "b": "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, _ := swapped.Get("a")
	if a.Bindings[0].Port != "b" {
		t.Fatalf("expected a to be bound to n.b, got %v", a.Bindings)
	}
}

func TestParams_RenameCollection(t *testing.T) {
	ps := NewParams(param("feats.a"), param("feats.b"), param("label"))
	renamed, err := ps.Rename(map[string]string{"feats": "features"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := renamed.Names(); !slices.Equal(got, []string{"features.a", "features.b", "label"}) {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestParams_RenameErrors(t *testing.T) {
	ps := NewParams(param("feats.a"), param("feats.b"), param("label"))

	tests := []struct {
		name    string
		mapping map[string]string
		code    errors.ErrorCode
	}{
		{"unknown name", map[string]string{"nope": "x"}, errors.ErrCodeNotFound},
		{"collision", map[string]string{"label": "feats.a"}, errors.ErrCodeCompositionConflict},
		{"renamed twice", map[string]string{"feats": "f", "feats.a": "g"}, errors.ErrCodeCompositionConflict},
		{"collection to entry", map[string]string{"feats": "f.x"}, errors.ErrCodeInvalidInput},
		{"bare name clashes with collection", map[string]string{"label": "feats"}, errors.ErrCodeCompositionConflict},
		{"empty new name", map[string]string{"label": ""}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ps.Rename(tt.mapping)
			if !errors.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestParams_Validate(t *testing.T) {
	if err := NewParams(param("x"), param("x.a")).Validate(); !errors.HasCode(err, errors.ErrCodeCompositionConflict) {
		t.Fatalf("expected COMPOSITION_CONFLICT, got %v", err)
	}
	if err := NewParams(param("x.a"), param("y")).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParam_Required(t *testing.T) {
	optional := Param{Name: "h", Bindings: []Binding{{Node: NewNode("a"), Port: "h", Optional: true}}}
	if optional.Required() {
		t.Fatal("expected optional-only param to be not required")
	}
	optional.Bindings = append(optional.Bindings, bind("b", "h"))
	if !optional.Required() {
		t.Fatal("expected param with a required consumer to be required")
	}
}
