// Package filterdoc parses the subtree filter document that scopes a
// VERIFY/RESTORE/CREATE backup operation to one or more OID subtrees.
package filterdoc

import (
	"fmt"
	"io"

	"github.com/okt-galaktionov/confd/internal/oid"
	"github.com/okt-galaktionov/confd/internal/xmlnode"
)

// ErrInvalid marks a malformed filter document.
var ErrInvalid = fmt.Errorf("invalid filter document")

// Parse reads a <filters><subtree oid=.../>*</filters> document and returns
// the listed subtree OIDs. An empty or absent filter document means "no
// restriction" — callers pass the returned (possibly nil) slice straight to
// oid.ContainedIn, whose empty-slice case already means "root matches
// everything".
func Parse(r io.Reader) ([]oid.OID, error) {
	root, err := xmlnode.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse filters: %w", err)
	}
	if root.Tag() != "filters" {
		return nil, fmt.Errorf("parse filters: %w: root element is %q, want \"filters\"", ErrInvalid, root.Tag())
	}

	var out []oid.OID
	for _, child := range root.Children() {
		if child.Tag() != "subtree" {
			return nil, fmt.Errorf("parse filters: %w: unexpected element <%s>", ErrInvalid, child.Tag())
		}
		o, ok := child.Attr("oid")
		if !ok || o == "" {
			return nil, fmt.Errorf("parse filters <subtree>: %w: missing oid", ErrInvalid)
		}
		out = append(out, oid.OID(o))
	}
	return out, nil
}

// FromStrings converts a flat list of OID strings (as received directly on
// a Backup message) into the same representation Parse produces, for
// callers that bypass the XML document form entirely.
func FromStrings(subtrees []string) []oid.OID {
	if len(subtrees) == 0 {
		return nil
	}
	out := make([]oid.OID, len(subtrees))
	for i, s := range subtrees {
		out[i] = oid.OID(s)
	}
	return out
}
