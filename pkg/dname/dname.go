// Package dname provides parsing and validation for the two-level name
// scheme used by the chain.
//
// Name format: [label] or [label].[zone]
//
// Examples:
//
//	alice          (a zone, or a bare name)
//	mail.alice     (a name inside the "alice" zone)
//
// Only two levels are supported: "a.b.c" is not a valid name. The zone is
// the portion after the LAST separator, so the split of "mail.alice" is
// label "mail", zone "alice".
//
// Split is the exact splitting rule used by the ledger's availability
// algorithm and performs no validation. Parse adds the strict form enforced
// at claim submission: non-empty lowercase labels of [a-z0-9-], no leading
// or trailing hyphen, at most 63 characters per label.
package dname

import (
	"fmt"
	"strings"
)

// Separator divides the label from its zone.
const Separator = "."

// maxLabelLen caps each label, mirroring DNS conventions.
const maxLabelLen = 63

// Name is a validated two-level name.
type Name struct {
	Label string // left part, e.g. "mail"
	Zone  string // right part, empty for top-level names
}

// Split divides a raw name at its last separator. It mirrors the ledger's
// availability algorithm exactly and never rejects: label or zone may come
// back empty for degenerate inputs like ".alice" or "alice.".
func Split(name string) (label, zone string, hasZone bool) {
	idx := strings.LastIndex(name, Separator)
	if idx < 0 {
		return name, "", false
	}
	return name[:idx], name[idx+1:], true
}

// Parse validates a name in its strict submission form.
func Parse(raw string) (*Name, error) {
	if raw == "" {
		return nil, fmt.Errorf("name must not be empty")
	}

	label, zone, hasZone := Split(raw)
	if !hasZone {
		if err := validateLabel("name", label); err != nil {
			return nil, err
		}
		return &Name{Label: label}, nil
	}

	if strings.Contains(label, Separator) {
		return nil, fmt.Errorf("name %q has too many levels: only label.zone is supported", raw)
	}
	if err := validateLabel("label", label); err != nil {
		return nil, err
	}
	if err := validateLabel("zone", zone); err != nil {
		return nil, err
	}
	return &Name{Label: label, Zone: zone}, nil
}

// MustParse parses a name and panics on error. Useful in tests.
func MustParse(raw string) *Name {
	n, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return n
}

// String returns the canonical name string.
func (n *Name) String() string {
	if n.Zone == "" {
		return n.Label
	}
	return n.Label + Separator + n.Zone
}

// IsZone reports whether n is a top-level name, i.e. a zone other names can
// be registered under.
func (n *Name) IsZone() bool {
	return n.Zone == ""
}

// validateLabel checks one label against the strict submission charset.
// Names are hashed as-is, so uppercase is rejected rather than folded: a
// silent normalization here would register a different identity than the
// caller typed.
func validateLabel(what, label string) error {
	if label == "" {
		return fmt.Errorf("%s must not be empty", what)
	}
	if len(label) > maxLabelLen {
		return fmt.Errorf("%s %q exceeds %d characters", what, label, maxLabelLen)
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return fmt.Errorf("%s %q must not start or end with a hyphen", what, label)
	}
	for _, c := range label {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return fmt.Errorf("%s %q contains invalid character %q", what, label, c)
		}
	}
	return nil
}
