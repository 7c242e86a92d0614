// Package hierarchy defines the address-level type ladder and the
// per-object hierarchy entry the geocoder consumes.
package hierarchy

import (
	"github.com/mapsme/geocore/internal/namedict"
	"github.com/mapsme/geocore/internal/osmmodel"
)

// Type orders address levels from the widest to the most specific.
type Type int

const (
	Country Type = iota
	Region
	Subregion
	Locality
	Suburb
	Sublocality
	Street
	Building
	// Count doubles as "no type": entries downgraded to Count are
	// dropped by the loader.
	Count
)

var typeNames = [...]string{
	"country", "region", "subregion", "locality",
	"suburb", "sublocality", "street", "building", "count",
}

func (t Type) String() string {
	if t < Country || t > Count {
		return "unknown"
	}
	return typeNames[t]
}

// TypeFromString maps a KV "kind" property back to a Type; unknown kinds
// map to Count.
func TypeFromString(s string) Type {
	for t := Country; t < Count; t++ {
		if typeNames[t] == s {
			return t
		}
	}
	return Count
}

// Entry is one row of the hierarchy: the object, its display name, its
// level, and the 8-slot normalised address pointing into the shared name
// dictionary.
type Entry struct {
	ID   osmmodel.ObjectID
	Name string
	Type Type
	// PlaceKind refines Type for scoring: "city" outranks "town"
	// outranks "hamlet".
	PlaceKind string
	Address   [Count]namedict.Position
}

// HasAddress reports whether at least one slot is populated.
func (e *Entry) HasAddress() bool {
	for _, pos := range e.Address {
		if pos != namedict.Unspecified {
			return true
		}
	}
	return false
}

// MostSpecific returns the deepest populated slot, or Count when empty.
func (e *Entry) MostSpecific() Type {
	for t := Building; t >= Country; t-- {
		if e.Address[t] != namedict.Unspecified {
			return t
		}
	}
	return Count
}

// Normalize enforces the cross-slot invariants: the type must equal the
// most specific populated slot (absent an explicit override upstream),
// and Street/Building entries must sit in a locality or subregion.
// Violations downgrade the type to Count so the entry is dropped rather
// than mis-ranked.
func (e *Entry) Normalize() {
	if !e.HasAddress() {
		e.Type = Count
		return
	}
	if e.Type == Count {
		e.Type = e.MostSpecific()
	}
	if e.Type == Street || e.Type == Building {
		if e.Address[Locality] == namedict.Unspecified &&
			e.Address[Subregion] == namedict.Unspecified {
			e.Type = Count
		}
	}
}
