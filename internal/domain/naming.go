package domain

import (
	"fmt"
	"strings"
	"time"
)

// Namespace is an independent counter space. IDs from different namespaces
// never collide because each carries a distinct prefix.
type Namespace string

const (
	NamespaceReport     Namespace = "report"
	NamespaceCollection Namespace = "collection"
	NamespaceGraph      Namespace = "graph"
)

// Prefix returns the leading ID segment for the namespace. Reports have none.
func (n Namespace) Prefix() string {
	switch n {
	case NamespaceCollection:
		return "COL"
	case NamespaceGraph:
		return "GRAPH"
	default:
		return ""
	}
}

// HasCategory reports whether keys in this namespace carry a category.
func (n Namespace) HasCategory() bool {
	return n == NamespaceReport
}

// Title is the heading used when a namespace is rendered in an export.
func (n Namespace) Title() string {
	switch n {
	case NamespaceReport:
		return "Reports"
	case NamespaceCollection:
		return "Collections"
	case NamespaceGraph:
		return "Graphs"
	default:
		return string(n)
	}
}

// Valid reports whether n is one of the known namespaces.
func (n Namespace) Valid() bool {
	switch n {
	case NamespaceReport, NamespaceCollection, NamespaceGraph:
		return true
	}
	return false
}

// Kind groups the namespaces persisted together in one configuration resource.
type Kind string

const (
	KindReport   Kind = "report"
	KindPlatform Kind = "platform"
)

// Namespaces returns the namespaces owned by the kind, in export order.
func (k Kind) Namespaces() []Namespace {
	switch k {
	case KindReport:
		return []Namespace{NamespaceReport}
	case KindPlatform:
		return []Namespace{NamespaceCollection, NamespaceGraph}
	default:
		return nil
	}
}

// Owns reports whether ns belongs to the kind.
func (k Kind) Owns(ns Namespace) bool {
	for _, n := range k.Namespaces() {
		if n == ns {
			return true
		}
	}
	return false
}

// DefaultOutputFile is the readable export target used until one is configured.
func (k Kind) DefaultOutputFile() string {
	if k == KindPlatform {
		return "vt_names.txt"
	}
	return "report_ids.txt"
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindReport || k == KindPlatform
}

// KindOf returns the kind that owns ns.
func KindOf(ns Namespace) Kind {
	if ns == NamespaceReport {
		return KindReport
	}
	return KindPlatform
}

// NamespaceOfID infers the namespace of an issued ID from its prefix.
func NamespaceOfID(id string) Namespace {
	for _, ns := range []Namespace{NamespaceCollection, NamespaceGraph} {
		if strings.HasPrefix(id, ns.Prefix()+separator) {
			return ns
		}
	}
	return NamespaceReport
}

const (
	separator  = "-"
	dateLayout = "20060102"
)

// CounterKey scopes a sequence. It is compared structurally, so no field
// value can bleed into another the way a joined string key could.
type CounterKey struct {
	Namespace Namespace
	Source    string
	Category  string
	Date      string // YYYYMMDD
}

// FormatDate renders a calendar date the way it appears in IDs and keys.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate parses a YYYYMMDD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Value: s, Reason: "must use the YYYYMMDD format"}
	}
	return t, nil
}

// FormatID renders the issued ID for key at sequence number seq.
// The sequence is padded to two digits and widens past 99.
func FormatID(key CounterKey, seq int) string {
	parts := make([]string, 0, 5)
	if p := key.Namespace.Prefix(); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, key.Source)
	if key.Namespace.HasCategory() {
		parts = append(parts, key.Category)
	}
	parts = append(parts, key.Date, fmt.Sprintf("%02d", seq))
	return strings.Join(parts, separator)
}
