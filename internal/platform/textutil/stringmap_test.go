package textutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPairs(t *testing.T) {
	got := Pairs(" event ", " add_to_cart ", "userId", "  ", "", "orphan", "variantId", "v-1", "dangling")
	want := map[string]string{
		"event":     "add_to_cart",
		"variantId": "v-1",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Pairs mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeKeepsBase(t *testing.T) {
	base := map[string]string{"event": "view_item"}
	got := Merge(base, map[string]string{"event": "other", " env ": " prod ", "": "skip"})
	want := map[string]string{"event": "view_item", "env": "prod"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Merge mismatch (-want +got):\n%s", diff)
	}

	if got := Merge(nil, map[string]string{"a": "b"}); got["a"] != "b" {
		t.Fatalf("expected merge into nil base, got %v", got)
	}
}
