package domain

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SequenceStore allocates IDs from per-key counters and keeps the issuance
// log, descriptions and allow-lists of one kind. It is not safe for
// concurrent use.
type SequenceStore struct {
	state State
	now   func() time.Time
}

// StoreOption configures a SequenceStore.
type StoreOption func(*SequenceStore)

// WithClock sets the clock used when an allocation omits its date.
func WithClock(now func() time.Time) StoreOption {
	return func(s *SequenceStore) { s.now = now }
}

// NewSequenceStore creates an empty store for kind.
func NewSequenceStore(kind Kind, opts ...StoreOption) *SequenceStore {
	s := &SequenceStore{
		state: NewState(kind),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AllocateRequest carries the inputs of one allocation.
// A zero Date means today; Category is only used by reports.
type AllocateRequest struct {
	Namespace   Namespace
	Source      string
	Category    string
	Date        time.Time
	Description string
}

// Allocate issues the next ID for the request's key. A rejected request
// leaves every counter untouched.
func (s *SequenceStore) Allocate(req AllocateRequest) (Issued, error) {
	key, err := s.keyFor(req)
	if err != nil {
		return Issued{}, err
	}

	count := s.state.Counters[key] + 1
	s.state.Counters[key] = count

	issued := Issued{Namespace: key.Namespace, ID: FormatID(key, count)}
	s.state.Issued = append(s.state.Issued, issued)

	if desc := strings.TrimSpace(req.Description); desc != "" {
		s.state.Descriptions[issued.ID] = desc
	}
	return issued, nil
}

func (s *SequenceStore) keyFor(req AllocateRequest) (CounterKey, error) {
	ns := req.Namespace
	if !s.state.Kind.Owns(ns) {
		return CounterKey{}, &ValidationError{
			Field:   "namespace",
			Value:   string(ns),
			Allowed: namespaceNames(s.state.Kind.Namespaces()),
		}
	}
	allow := s.state.AllowLists[ns]

	source := normalize(req.Source)
	if err := checkField("source", source); err != nil {
		return CounterKey{}, err
	}
	if ns == NamespaceReport && (source == NamespaceCollection.Prefix() || source == NamespaceGraph.Prefix()) {
		return CounterKey{}, &ValidationError{Field: "source", Value: source, Reason: "is reserved as a namespace prefix"}
	}
	if len(allow.Sources) > 0 && !slices.Contains(allow.Sources, source) {
		return CounterKey{}, &ValidationError{Field: "source", Value: source, Allowed: slices.Clone(allow.Sources)}
	}

	var category string
	if ns.HasCategory() {
		category = normalize(req.Category)
		if err := checkField("category", category); err != nil {
			return CounterKey{}, err
		}
		if len(allow.Categories) > 0 && !slices.Contains(allow.Categories, category) {
			return CounterKey{}, &ValidationError{Field: "category", Value: category, Allowed: slices.Clone(allow.Categories)}
		}
	} else if strings.TrimSpace(req.Category) != "" {
		return CounterKey{}, &ValidationError{
			Field:  "category",
			Value:  req.Category,
			Reason: fmt.Sprintf("is not used by %s ids", ns),
		}
	}

	date := req.Date
	if date.IsZero() {
		date = s.now()
	}

	return CounterKey{
		Namespace: ns,
		Source:    source,
		Category:  category,
		Date:      FormatDate(date),
	}, nil
}

// Describe returns the description recorded for id.
func (s *SequenceStore) Describe(id string) (string, error) {
	desc, ok := s.state.Descriptions[id]
	if !ok {
		return "", ErrDescriptionNotFound
	}
	return desc, nil
}

// All yields every issued ID in issuance order. The sequence reads the live
// store and can be ranged over any number of times.
func (s *SequenceStore) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, issued := range s.state.Issued {
			entry := Entry{
				Namespace:   issued.Namespace,
				ID:          issued.ID,
				Description: s.state.Descriptions[issued.ID],
			}
			if !yield(entry) {
				return
			}
		}
	}
}

// Entries materializes All.
func (s *SequenceStore) Entries() []Entry {
	return slices.Collect(s.All())
}

// Sections groups entries by namespace in the kind's namespace order.
func (s *SequenceStore) Sections() []Section {
	namespaces := s.state.Kind.Namespaces()
	sections := make([]Section, len(namespaces))
	index := make(map[Namespace]int, len(namespaces))
	for i, ns := range namespaces {
		sections[i].Namespace = ns
		index[ns] = i
	}
	for entry := range s.All() {
		i, ok := index[entry.Namespace]
		if !ok {
			continue
		}
		sections[i].Entries = append(sections[i].Entries, entry)
	}
	return sections
}

// Kind returns the kind the store was created for.
func (s *SequenceStore) Kind() Kind {
	return s.state.Kind
}

// OutputFile returns the default readable export target.
func (s *SequenceStore) OutputFile() string {
	return s.state.OutputFile
}

// SetOutputFile changes the default readable export target.
func (s *SequenceStore) SetOutputFile(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: "output file", Value: name, Reason: "must not be empty"}
	}
	s.state.OutputFile = name
	return nil
}

// AllowList returns a copy of the allow-list configured for ns.
func (s *SequenceStore) AllowList(ns Namespace) AllowList {
	return s.state.AllowLists[ns].clone()
}

// SetAllowList replaces the allow-list of ns. An empty list lifts the restriction.
func (s *SequenceStore) SetAllowList(ns Namespace, list AllowList) error {
	if !s.state.Kind.Owns(ns) {
		return &ValidationError{
			Field:   "namespace",
			Value:   string(ns),
			Allowed: namespaceNames(s.state.Kind.Namespaces()),
		}
	}
	if !ns.HasCategory() && len(list.Categories) > 0 {
		return &ValidationError{
			Field:  "category",
			Value:  strings.Join(list.Categories, ","),
			Reason: fmt.Sprintf("is not used by %s ids", ns),
		}
	}

	sources, err := normalizeAll("source", list.Sources)
	if err != nil {
		return err
	}
	categories, err := normalizeAll("category", list.Categories)
	if err != nil {
		return err
	}

	clean := AllowList{Sources: sources, Categories: categories}
	if clean.IsZero() {
		delete(s.state.AllowLists, ns)
		return nil
	}
	s.state.AllowLists[ns] = clean
	return nil
}

// Snapshot returns a deep copy of the store state.
func (s *SequenceStore) Snapshot() State {
	return s.state.Clone()
}

// Restore replaces the store state with state. Invalid input leaves the
// store as it was.
func (s *SequenceStore) Restore(state State) error {
	if state.Kind != s.state.Kind {
		return fmt.Errorf("state kind %q does not match store kind %q", state.Kind, s.state.Kind)
	}
	if err := state.Validate(); err != nil {
		return err
	}
	s.state = state.Clone()
	return nil
}

// Reset returns the store to the empty default state.
func (s *SequenceStore) Reset() {
	s.state = NewState(s.state.Kind)
}

func normalize(v string) string {
	return norm.NFC.String(strings.TrimSpace(v))
}

// checkField rejects values that would make two distinct keys format to the
// same ID.
func checkField(field, v string) error {
	if v == "" {
		return &ValidationError{Field: field, Value: v, Reason: "must not be empty"}
	}
	if strings.Contains(v, separator) || strings.ContainsFunc(v, unicode.IsSpace) {
		return &ValidationError{Field: field, Value: v, Reason: "must not contain '-' or whitespace"}
	}
	return nil
}

func normalizeAll(field string, values []string) ([]string, error) {
	var out []string
	for _, v := range values {
		v = normalize(v)
		if err := checkField(field, v); err != nil {
			return nil, err
		}
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func namespaceNames(namespaces []Namespace) []string {
	out := make([]string, len(namespaces))
	for i, ns := range namespaces {
		out[i] = string(ns)
	}
	return out
}
