package file

import (
	"cmp"
	"slices"

	"github.com/neomorfeo/ctinamer/internal/domain"
)

// document is the on-disk layout of a store. The same struct is encoded as
// YAML or JSON depending on the resource extension.
type document struct {
	Kind         string                  `yaml:"kind" json:"kind"`
	OutputFile   string                  `yaml:"output_file" json:"output_file"`
	Counters     []counterDoc            `yaml:"counters" json:"counters"`
	Issued       []issuedDoc             `yaml:"issued" json:"issued"`
	Descriptions map[string]string       `yaml:"descriptions" json:"descriptions"`
	AllowLists   map[string]allowListDoc `yaml:"allow_lists" json:"allow_lists"`
}

func (d *document) isZero() bool {
	return d.Kind == "" && d.OutputFile == "" && len(d.Counters) == 0 &&
		len(d.Issued) == 0 && len(d.Descriptions) == 0 && len(d.AllowLists) == 0
}

type counterDoc struct {
	Namespace string `yaml:"namespace" json:"namespace"`
	Source    string `yaml:"source" json:"source"`
	Category  string `yaml:"category,omitempty" json:"category,omitempty"`
	Date      string `yaml:"date" json:"date"`
	Count     int    `yaml:"count" json:"count"`
}

type issuedDoc struct {
	Namespace string `yaml:"namespace" json:"namespace"`
	ID        string `yaml:"id" json:"id"`
}

type allowListDoc struct {
	Sources    []string `yaml:"sources,omitempty" json:"sources,omitempty"`
	Categories []string `yaml:"categories,omitempty" json:"categories,omitempty"`
}

func toDocument(s domain.State) document {
	doc := document{
		Kind:         string(s.Kind),
		OutputFile:   s.OutputFile,
		Counters:     make([]counterDoc, 0, len(s.Counters)),
		Issued:       make([]issuedDoc, 0, len(s.Issued)),
		Descriptions: make(map[string]string, len(s.Descriptions)),
		AllowLists:   make(map[string]allowListDoc, len(s.AllowLists)),
	}
	for key, count := range s.Counters {
		doc.Counters = append(doc.Counters, counterDoc{
			Namespace: string(key.Namespace),
			Source:    key.Source,
			Category:  key.Category,
			Date:      key.Date,
			Count:     count,
		})
	}
	// Map iteration is random; keep the written file stable.
	slices.SortFunc(doc.Counters, func(a, b counterDoc) int {
		return cmp.Or(
			cmp.Compare(a.Namespace, b.Namespace),
			cmp.Compare(a.Source, b.Source),
			cmp.Compare(a.Category, b.Category),
			cmp.Compare(a.Date, b.Date),
		)
	})
	for _, issued := range s.Issued {
		doc.Issued = append(doc.Issued, issuedDoc{Namespace: string(issued.Namespace), ID: issued.ID})
	}
	for id, desc := range s.Descriptions {
		doc.Descriptions[id] = desc
	}
	for ns, list := range s.AllowLists {
		doc.AllowLists[string(ns)] = allowListDoc{Sources: list.Sources, Categories: list.Categories}
	}
	return doc
}

// toState converts a decoded document. Structural checks are left to
// domain.State.Validate.
func (d document) toState(kind domain.Kind) domain.State {
	s := domain.NewState(kind)
	if d.OutputFile != "" {
		s.OutputFile = d.OutputFile
	}
	for _, c := range d.Counters {
		key := domain.CounterKey{
			Namespace: domain.Namespace(c.Namespace),
			Source:    c.Source,
			Category:  c.Category,
			Date:      c.Date,
		}
		s.Counters[key] = c.Count
	}
	for _, i := range d.Issued {
		s.Issued = append(s.Issued, domain.Issued{Namespace: domain.Namespace(i.Namespace), ID: i.ID})
	}
	for id, desc := range d.Descriptions {
		s.Descriptions[id] = desc
	}
	for ns, list := range d.AllowLists {
		s.AllowLists[domain.Namespace(ns)] = domain.AllowList{
			Sources:    slices.Clone(list.Sources),
			Categories: slices.Clone(list.Categories),
		}
	}
	return s
}
