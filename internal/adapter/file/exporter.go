package file

import (
	"bytes"
	"context"
	"fmt"

	"github.com/viant/afs"

	"github.com/neomorfeo/ctinamer/internal/domain"
)

// Compile-time check: Exporter implements domain.Exporter.
var _ domain.Exporter = (*Exporter)(nil)

const noDescription = "No description"

// Exporter writes the readable ID listing through afs.
type Exporter struct {
	fs afs.Service
}

// NewExporter creates an exporter backed by a default afs service.
func NewExporter() *Exporter {
	return &Exporter{fs: afs.New()}
}

// NewExporterWithService creates an exporter backed by fs.
func NewExporterWithService(fs afs.Service) *Exporter {
	return &Exporter{fs: fs}
}

// Export renders sections and overwrites target.
func (e *Exporter) Export(ctx context.Context, target string, sections []domain.Section) error {
	loc, err := resolve(target)
	if err != nil {
		return err
	}
	return writeAtomic(ctx, e.fs, loc, Render(sections))
}

// Render formats sections as "id: description" lines. A single section is
// written bare; several sections each get a "Title:" header and are
// separated by a blank line.
func Render(sections []domain.Section) []byte {
	var buf bytes.Buffer
	headed := len(sections) > 1
	for i, section := range sections {
		if headed {
			if i > 0 {
				buf.WriteByte('\n')
			}
			fmt.Fprintf(&buf, "%s:\n", section.Namespace.Title())
		}
		for _, entry := range section.Entries {
			desc := entry.Description
			if desc == "" {
				desc = noDescription
			}
			fmt.Fprintf(&buf, "%s: %s\n", entry.ID, desc)
		}
	}
	return buf.Bytes()
}
