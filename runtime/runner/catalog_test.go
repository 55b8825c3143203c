package runner

import (
	"errors"
	"testing"

	"github.com/anotherai/gateway/runtime/apierror"
)

func TestCatalog_ResolveKnownModel(t *testing.T) {
	c := NewDefaultCatalog()
	info, err := c.Resolve("gpt-4o")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.ID != "gpt-4o" {
		t.Fatalf("got %q", info.ID)
	}
}

func TestCatalog_ResolveUnknownModelSuggestsClosest(t *testing.T) {
	c := NewDefaultCatalog()
	_, err := c.Resolve("gpt-4o-min")

	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *apierror.Error, got %T", err)
	}
	if apiErr.Kind != apierror.KindInvalidRunOptions {
		t.Fatalf("got kind %q", apiErr.Kind)
	}
	if !contains(apiErr.Message, "gpt-4o-mini") {
		t.Fatalf("expected suggestion for gpt-4o-mini in message %q", apiErr.Message)
	}
}

func TestCatalog_ResolveOnEmptyCatalogDoesNotSuggest(t *testing.T) {
	c := NewCatalog()
	_, err := c.Resolve("anything")

	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *apierror.Error, got %T", err)
	}
	if apiErr.Kind != apierror.KindInvalidRunOptions {
		t.Fatalf("got kind %q", apiErr.Kind)
	}
}

func TestCatalog_IDsIsSorted(t *testing.T) {
	c := NewDefaultCatalog()
	ids := c.IDs()
	for i := 1; i < len(ids); i++ {
		if ids[i-1] > ids[i] {
			t.Fatalf("ids not sorted: %q before %q", ids[i-1], ids[i])
		}
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
