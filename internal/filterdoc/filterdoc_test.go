package filterdoc

import (
	"strings"
	"testing"

	"github.com/okt-galaktionov/confd/internal/oid"
)

func TestParseSubtrees(t *testing.T) {
	got, err := Parse(strings.NewReader(`<filters><subtree oid="/a"/><subtree oid="/b/c"/></filters>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []oid.OID{"/a", "/b/c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestParseEmptyMeansNoRestriction(t *testing.T) {
	got, err := Parse(strings.NewReader(`<filters/>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !oid.ContainedIn(got, "/anything/at/all") {
		t.Fatal("empty filter document should match everything")
	}
}

func TestParseRejectsMissingOID(t *testing.T) {
	_, err := Parse(strings.NewReader(`<filters><subtree/></filters>`))
	if err == nil {
		t.Fatal("expected error for missing oid attribute")
	}
}

func TestFromStrings(t *testing.T) {
	got := FromStrings([]string{"/a", "/b"})
	if len(got) != 2 || got[0] != "/a" || got[1] != "/b" {
		t.Fatalf("unexpected result: %v", got)
	}
	if FromStrings(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}
