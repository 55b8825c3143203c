package render

import (
	"errors"
	"testing"

	"github.com/anotherai/gateway/runtime/apierror"
)

func TestReferences_OrderedAndDeduplicated(t *testing.T) {
	text := "{{ a.b }} then {{c}} then {{ a.b }} again"
	got := references(text)
	want := []string{"a.b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestReferences_NoneReturnsNil(t *testing.T) {
	if got := references("no templates here"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestRenderText_SubstitutesTopLevelAndNestedPaths(t *testing.T) {
	vars := map[string]any{
		"name": "Ada",
		"address": map[string]any{
			"city": "Toulouse",
		},
	}
	out, err := renderText("{{name}} lives in {{ address.city }}", vars)
	if err != nil {
		t.Fatalf("renderText: %v", err)
	}
	if out != "Ada lives in Toulouse" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderText_MissingVariableReturnsBadRequest(t *testing.T) {
	_, err := renderText("hello {{ missing.path }}", map[string]any{})
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *apierror.Error, got %v (%T)", err, err)
	}
	if apiErr.Kind != apierror.KindBadRequest {
		t.Fatalf("expected bad_request, got %s", apiErr.Kind)
	}
}

func TestRenderText_StopsAtFirstMissingVariable(t *testing.T) {
	calls := 0
	vars := mapWithCounter(&calls)
	_, err := renderText("{{ first }} {{ second }}", vars)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func mapWithCounter(calls *int) map[string]any {
	*calls++
	return map[string]any{"first": "ok"}
}

func TestResolvePath_TraversesNestedMaps(t *testing.T) {
	vars := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": "leaf",
			},
		},
	}
	val, ok := resolvePath(vars, "a.b.c")
	if !ok || val != "leaf" {
		t.Fatalf("got %v, %v", val, ok)
	}
}

func TestResolvePath_MissingIntermediateSegment(t *testing.T) {
	vars := map[string]any{"a": "not a map"}
	if _, ok := resolvePath(vars, "a.b"); ok {
		t.Fatal("expected resolution to fail through a non-map intermediate")
	}
}

func TestResolvePath_MissingLeaf(t *testing.T) {
	vars := map[string]any{"a": map[string]any{}}
	if _, ok := resolvePath(vars, "a.b"); ok {
		t.Fatal("expected resolution to fail on a missing leaf")
	}
}

func TestStringifyValue_Kinds(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"x", "x"},
		{true, "true"},
		{false, "false"},
		{3.5, "3.5"},
		{42, "42"},
		{int64(7), "7"},
		{nil, ""},
	}
	for _, c := range cases {
		if got := stringifyValue(c.in); got != c.want {
			t.Fatalf("stringifyValue(%#v) = %q, want %q", c.in, got, c.want)
		}
	}
}
