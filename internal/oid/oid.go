// Package oid implements the OID algebra: parsing, equality,
// prefix/containment tests, and the child-first total order used to sort
// the desired-state list into parent-before-child groups.
package oid

import "strings"

// OID is a non-empty, slash-delimited hierarchical identifier.
type OID string

// Segments splits the OID into its slash-delimited parts.
func (o OID) Segments() []string {
	return strings.Split(string(o), "/")
}

// Depth is the number of '/' separators in the OID, used by the family-link
// filler as the depth counter.
func (o OID) Depth() int {
	return strings.Count(string(o), "/")
}

// Equal reports string equality between two OIDs.
func Equal(a, b OID) bool {
	return a == b
}

// IsPrefixOf reports whether subtree is a prefix of oid in the segment
// sense: oid begins with subtree and the next character in oid is either
// absent or '/'.
func IsPrefixOf(subtree, o OID) bool {
	s, full := string(subtree), string(o)
	if !strings.HasPrefix(full, s) {
		return false
	}
	if len(full) == len(s) {
		return true
	}
	return full[len(s)] == '/'
}

// ContainedIn reports whether o falls under any of subtrees. An empty set
// of subtrees means "root matches everything"; otherwise o matches if any
// subtree's OID is a prefix of it in the segment sense.
func ContainedIn(subtrees []OID, o OID) bool {
	if len(subtrees) == 0 {
		return true
	}
	for _, s := range subtrees {
		if IsPrefixOf(s, o) {
			return true
		}
	}
	return false
}

// Less implements the child-first total order: OIDs compare
// byte-by-byte, except that when one side has '/' while the other has a
// non-'/', non-NUL character at the same position, the '/' side compares
// less. This places every OID immediately before its children, and those
// children before any sibling whose name merely extends the OID's name, e.g.
// "a/b/c" < "a/b/c/y" < "a/b/c-d".
func Less(a, b OID) bool {
	sa, sb := string(a), string(b)
	n := len(sa)
	if len(sb) < n {
		n = len(sb)
	}
	for i := 0; i < n; i++ {
		ca, cb := sa[i], sb[i]
		if ca == cb {
			continue
		}
		if ca == '/' && cb != 0 {
			return true
		}
		if cb == '/' && ca != 0 {
			return false
		}
		return ca < cb
	}
	return len(sa) < len(sb)
}

// Valid reports whether s is a syntactically valid, non-empty OID.
func Valid(s string) bool {
	return s != ""
}

// ClassOf strips the key suffix ("segment:key" -> "segment") from every
// segment of an instance OID, yielding the OID of the object class that
// instance is bound to. Segments without a ':' are left unchanged, so
// ClassOf is idempotent on an object OID.
func ClassOf(o OID) OID {
	segs := o.Segments()
	for i, s := range segs {
		if idx := strings.IndexByte(s, ':'); idx >= 0 {
			segs[i] = s[:idx]
		}
	}
	return OID(strings.Join(segs, "/"))
}
