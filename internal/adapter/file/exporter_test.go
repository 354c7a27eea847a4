package file_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/neomorfeo/ctinamer/internal/adapter/file"
	"github.com/neomorfeo/ctinamer/internal/domain"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		sections func(*testing.T) []domain.Section
	}{
		{
			name: "report_single",
			sections: func(*testing.T) []domain.Section {
				return []domain.Section{{
					Namespace: domain.NamespaceReport,
					Entries: []domain.Entry{
						{Namespace: domain.NamespaceReport, ID: "X-Y-20240101-01", Description: "test"},
					},
				}}
			},
		},
		{
			name: "report_mixed_descriptions",
			sections: func(t *testing.T) []domain.Section {
				store := domain.NewSequenceStore(domain.KindReport)
				for _, desc := range []string{"Initial triage", "", "Follow-up"} {
					req := domain.AllocateRequest{
						Namespace:   domain.NamespaceReport,
						Source:      "ACME",
						Category:    "MALWARE",
						Date:        mustDate(t, "20240305"),
						Description: desc,
					}
					if _, err := store.Allocate(req); err != nil {
						t.Fatalf("Allocate: %v", err)
					}
				}
				return store.Sections()
			},
		},
		{
			name: "platform_sections",
			sections: func(t *testing.T) []domain.Section {
				store := domain.NewSequenceStore(domain.KindPlatform)
				if err := store.Restore(samplePlatformState(t)); err != nil {
					t.Fatalf("Restore: %v", err)
				}
				return store.Sections()
			},
		},
		{
			name: "platform_empty",
			sections: func(*testing.T) []domain.Section {
				return domain.NewSequenceStore(domain.KindPlatform).Sections()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGoldie(t)
			g.Assert(t, tt.name, file.Render(tt.sections(t)))
		})
	}
}

func TestRender_EmptyReport(t *testing.T) {
	out := file.Render(domain.NewSequenceStore(domain.KindReport).Sections())
	if len(out) != 0 {
		t.Errorf("Render = %q, want empty output", out)
	}
}

func TestExport_WritesAndOverwrites(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out", "report_ids.txt")
	exp := file.NewExporter()
	ctx := context.Background()

	sections := []domain.Section{{
		Namespace: domain.NamespaceReport,
		Entries:   []domain.Entry{{Namespace: domain.NamespaceReport, ID: "X-Y-20240101-01", Description: "test"}},
	}}

	if err := exp.Export(ctx, target, nil); err != nil {
		t.Fatalf("first Export failed: %v", err)
	}
	if err := exp.Export(ctx, target, sections); err != nil {
		t.Fatalf("second Export failed: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if string(got) != "X-Y-20240101-01: test\n" {
		t.Errorf("export = %q, want %q", got, "X-Y-20240101-01: test\n")
	}
}

func TestExport_CreatesRegularFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "report_ids.txt")
	if err := file.NewExporter().Export(context.Background(), target, nil); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	assertOnlyRegularFile(t, target)
}

func TestExport_UnwritableTarget(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	writeFile(t, blocker, "")

	err := file.NewExporter().Export(context.Background(), filepath.Join(blocker, "ids.txt"), nil)
	var ioErr *domain.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
}
