package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// AllowList restricts the values accepted for a namespace. An empty list
// leaves the field unrestricted. Categories only apply to reports.
type AllowList struct {
	Sources    []string
	Categories []string
}

// IsZero reports whether the list restricts nothing.
func (a AllowList) IsZero() bool {
	return len(a.Sources) == 0 && len(a.Categories) == 0
}

func (a AllowList) clone() AllowList {
	return AllowList{
		Sources:    slices.Clone(a.Sources),
		Categories: slices.Clone(a.Categories),
	}
}

// Issued is one entry of the issuance log.
type Issued struct {
	Namespace Namespace
	ID        string
}

// Entry pairs an issued ID with its description, empty when none was given.
type Entry struct {
	Namespace   Namespace
	ID          string
	Description string
}

// Section groups the entries of one namespace in issuance order.
type Section struct {
	Namespace Namespace
	Entries   []Entry
}

// State is the persistable snapshot of a sequence store.
type State struct {
	Kind         Kind
	OutputFile   string
	Counters     map[CounterKey]int
	Issued       []Issued
	Descriptions map[string]string
	AllowLists   map[Namespace]AllowList
}

// NewState returns the empty, unrestricted, default-named state for kind.
func NewState(kind Kind) State {
	return State{
		Kind:         kind,
		OutputFile:   kind.DefaultOutputFile(),
		Counters:     make(map[CounterKey]int),
		Descriptions: make(map[string]string),
		AllowLists:   make(map[Namespace]AllowList),
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{
		Kind:         s.Kind,
		OutputFile:   s.OutputFile,
		Counters:     maps.Clone(s.Counters),
		Issued:       slices.Clone(s.Issued),
		Descriptions: maps.Clone(s.Descriptions),
		AllowLists:   make(map[Namespace]AllowList, len(s.AllowLists)),
	}
	if out.Counters == nil {
		out.Counters = make(map[CounterKey]int)
	}
	if out.Descriptions == nil {
		out.Descriptions = make(map[string]string)
	}
	for ns, list := range s.AllowLists {
		out.AllowLists[ns] = list.clone()
	}
	return out
}

// Validate checks the structural invariants a loaded state must satisfy.
func (s State) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("unknown store kind %q", s.Kind)
	}
	if s.OutputFile == "" {
		return errors.New("output file is empty")
	}

	for key, count := range s.Counters {
		if !s.Kind.Owns(key.Namespace) {
			return fmt.Errorf("counter namespace %q does not belong to kind %q", key.Namespace, s.Kind)
		}
		if key.Source == "" {
			return fmt.Errorf("counter in %q has an empty source", key.Namespace)
		}
		if key.Namespace.HasCategory() != (key.Category != "") {
			return fmt.Errorf("counter %s/%s has an unexpected category %q", key.Namespace, key.Source, key.Category)
		}
		if _, err := ParseDate(key.Date); err != nil {
			return fmt.Errorf("counter %s/%s: %w", key.Namespace, key.Source, err)
		}
		if count < 1 {
			return fmt.Errorf("counter %s/%s/%s has non-positive count %d", key.Namespace, key.Source, key.Date, count)
		}
	}

	for i, issued := range s.Issued {
		if !s.Kind.Owns(issued.Namespace) {
			return fmt.Errorf("issued entry %d has namespace %q outside kind %q", i, issued.Namespace, s.Kind)
		}
		if issued.ID == "" {
			return fmt.Errorf("issued entry %d has an empty id", i)
		}
	}

	for ns, list := range s.AllowLists {
		if !s.Kind.Owns(ns) {
			return fmt.Errorf("allow-list namespace %q does not belong to kind %q", ns, s.Kind)
		}
		if !ns.HasCategory() && len(list.Categories) > 0 {
			return fmt.Errorf("allow-list for %q cannot restrict categories", ns)
		}
	}

	return nil
}
