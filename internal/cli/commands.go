package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/ctinamer/internal/adapter/file"
	"github.com/neomorfeo/ctinamer/internal/app"
	"github.com/neomorfeo/ctinamer/internal/domain"
)

// withService opens the store of kind, runs fn and closes the session.
// Mutating commands use the sync policy so every change is on disk before
// the process exits.
func withService(cmd *cobra.Command, opts *RootOptions, kind domain.Kind, policy app.PersistPolicy, fn func(context.Context, *session, *app.NamingService) error) error {
	s := newSession(cmd, opts)
	defer s.Close()

	ctx := cmd.Context()
	svc, err := s.open(ctx, kind, logPublisher{logger: s.logger}, policy)
	if err != nil {
		return err
	}
	return fn(ctx, s, svc)
}

// --- Allocate ---

// AllocateOptions holds flags for the report, collection and graph commands.
type AllocateOptions struct {
	*RootOptions
	Source      string
	Category    string
	Date        string
	Description string
}

// AllocateResult is the output of an allocation.
type AllocateResult struct {
	ID          string `json:"id"`
	Namespace   string `json:"namespace"`
	Description string `json:"description,omitempty"`
}

func (r AllocateResult) String() string {
	return r.ID + "\n"
}

// NewAllocateCommand creates the allocation command for namespace.
func NewAllocateCommand(rootOpts *RootOptions, namespace string) *cobra.Command {
	opts := &AllocateOptions{RootOptions: rootOpts}
	ns := domain.Namespace(namespace)

	use := namespace + " --source SOURCE"
	if ns.HasCategory() {
		use += " --type TYPE"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Issue the next %s ID", namespace),
		Long: fmt.Sprintf(`Issue the next %s ID for a source and date.

The date defaults to today. Sources (and report types) are checked against
the store's allow-list when one is configured; see "ctinamer allow".`, namespace),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAllocate(cmd, opts, ns)
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "intelligence source")
	if ns.HasCategory() {
		cmd.Flags().StringVarP(&opts.Category, "type", "t", "", "report type (category)")
	}
	cmd.Flags().StringVarP(&opts.Date, "date", "d", "", "issue date as YYYYMMDD (default today)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "free-text description")

	return cmd
}

func runAllocate(cmd *cobra.Command, opts *AllocateOptions, ns domain.Namespace) error {
	req := domain.AllocateRequest{
		Namespace:   ns,
		Source:      opts.Source,
		Category:    opts.Category,
		Description: opts.Description,
	}
	if opts.Date != "" {
		date, err := domain.ParseDate(opts.Date)
		if err != nil {
			return err
		}
		req.Date = date
	}

	return withService(cmd, opts.RootOptions, domain.KindOf(ns), app.PersistSync, func(ctx context.Context, s *session, svc *app.NamingService) error {
		issued, err := svc.Allocate(ctx, req)
		if issued.ID == "" {
			return err
		}
		if outErr := s.out.Success(AllocateResult{
			ID:          issued.ID,
			Namespace:   string(issued.Namespace),
			Description: strings.TrimSpace(opts.Description),
		}); outErr != nil {
			return outErr
		}
		if err != nil {
			return WrapExitError(ExitCommandError, issued.ID+" was issued but not saved", err)
		}
		return nil
	})
}

// --- Describe ---

// DescribeResult is the output of the describe command.
type DescribeResult struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

func (r DescribeResult) String() string {
	return fmt.Sprintf("Description for %s: %s\n", r.ID, r.Description)
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <id>",
		Short: "Show the description recorded for an ID",
		Long: `Show the description recorded for an ID. The store is chosen from the
ID prefix: COL- and GRAPH- IDs live in the platform store, everything else
in the report store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			kind := domain.KindOf(domain.NamespaceOfID(id))
			return withService(cmd, rootOpts, kind, app.PersistManual, func(ctx context.Context, s *session, svc *app.NamingService) error {
				desc, err := svc.Describe(ctx, id)
				if errors.Is(err, domain.ErrDescriptionNotFound) {
					return WrapExitError(ExitFailure, fmt.Sprintf("ID %s not found, or has no description", id), err)
				}
				if err != nil {
					return err
				}
				return s.out.Success(DescribeResult{ID: id, Description: desc})
			})
		},
	}
}

// --- List ---

// ListEntry is one issued ID in list output.
type ListEntry struct {
	Namespace   string `json:"namespace"`
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

// ListResult is the output of the list command. Text output uses the
// export format.
type ListResult struct {
	Entries  []ListEntry `json:"entries"`
	sections []domain.Section
}

func (r ListResult) String() string {
	return string(file.Render(r.sections))
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "list [report|collection|graph]",
		Short:     "List issued IDs in issuance order",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"report", "collection", "graph"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runList(cmd, rootOpts, domain.KindReport, domain.KindPlatform)
			}
			ns := domain.Namespace(args[0])
			return runListNamespace(cmd, rootOpts, ns)
		},
	}
}

func runList(cmd *cobra.Command, opts *RootOptions, kinds ...domain.Kind) error {
	var sections []domain.Section
	for _, kind := range kinds {
		err := withService(cmd, opts, kind, app.PersistManual, func(ctx context.Context, _ *session, svc *app.NamingService) error {
			ss, err := svc.Sections(ctx)
			sections = append(sections, ss...)
			return err
		})
		if err != nil {
			return err
		}
	}
	return opts.formatter(cmd).Success(newListResult(sections))
}

func runListNamespace(cmd *cobra.Command, opts *RootOptions, ns domain.Namespace) error {
	var section domain.Section
	err := withService(cmd, opts, domain.KindOf(ns), app.PersistManual, func(ctx context.Context, _ *session, svc *app.NamingService) error {
		ss, err := svc.Sections(ctx)
		for _, s := range ss {
			if s.Namespace == ns {
				section = s
			}
		}
		return err
	})
	if err != nil {
		return err
	}
	return opts.formatter(cmd).Success(newListResult([]domain.Section{section}))
}

func newListResult(sections []domain.Section) ListResult {
	r := ListResult{Entries: []ListEntry{}, sections: sections}
	for _, s := range sections {
		for _, e := range s.Entries {
			r.Entries = append(r.Entries, ListEntry{Namespace: string(e.Namespace), ID: e.ID, Description: e.Description})
		}
	}
	return r
}

// --- Export ---

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Store  string
	Output string
}

// ExportResult is the output of the export command.
type ExportResult struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Count  int    `json:"count"`
}

func (r ExportResult) String() string {
	return fmt.Sprintf("%d %s ID(s) written to %s\n", r.Count, r.Kind, r.Target)
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the readable ID listing of a store",
		Long: `Write every issued ID with its description ("No description" when none)
to the store's output file, or to --output. Existing files are overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := domain.Kind(opts.Store)
			if !kind.Valid() {
				return &domain.ValidationError{Field: "store", Value: opts.Store, Allowed: []string{string(domain.KindReport), string(domain.KindPlatform)}}
			}
			return withService(cmd, opts.RootOptions, kind, app.PersistManual, func(ctx context.Context, s *session, svc *app.NamingService) error {
				entries, err := svc.List(ctx)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					s.out.Warn("no %s IDs issued yet", kind)
				}
				target, err := svc.Export(ctx, opts.Output)
				if err != nil {
					return err
				}
				return s.out.Success(ExportResult{Kind: string(kind), Target: target, Count: len(entries)})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", string(domain.KindReport), "store to export (report|platform)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "target file or URL (default: the store's output file)")

	return cmd
}

// --- Set output ---

// SettingResult reports a changed store setting.
type SettingResult struct {
	Kind       string `json:"kind"`
	OutputFile string `json:"output_file"`
}

func (r SettingResult) String() string {
	return fmt.Sprintf("Output file for %s set to %s\n", r.Kind, r.OutputFile)
}

// NewSetOutputCommand creates the set-output command.
func NewSetOutputCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "set-output <report|platform> <file>",
		Short:     "Change the default export target of a store",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(domain.KindReport), string(domain.KindPlatform)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := domain.Kind(args[0])
			if !kind.Valid() {
				return &domain.ValidationError{Field: "store", Value: args[0], Allowed: []string{string(domain.KindReport), string(domain.KindPlatform)}}
			}
			return withService(cmd, rootOpts, kind, app.PersistSync, func(ctx context.Context, s *session, svc *app.NamingService) error {
				if err := svc.SetOutputFile(ctx, args[1]); err != nil {
					return err
				}
				out, err := svc.OutputFile(ctx)
				if err != nil {
					return err
				}
				return s.out.Success(SettingResult{Kind: string(kind), OutputFile: out})
			})
		},
	}
}

// --- Allow ---

// AllowOptions holds flags for the allow command.
type AllowOptions struct {
	*RootOptions
	Sources    []string
	Categories []string
	Clear      bool
}

// AllowResult shows the allow-list of a namespace.
type AllowResult struct {
	Namespace  string   `json:"namespace"`
	Sources    []string `json:"sources"`
	Categories []string `json:"categories,omitempty"`
}

func (r AllowResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s sources: %s\n", r.Namespace, listOrAny(r.Sources))
	if domain.Namespace(r.Namespace).HasCategory() {
		fmt.Fprintf(&b, "%s types: %s\n", r.Namespace, listOrAny(r.Categories))
	}
	return b.String()
}

func listOrAny(values []string) string {
	if len(values) == 0 {
		return "any"
	}
	return strings.Join(values, ", ")
}

// NewAllowCommand creates the allow command.
func NewAllowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AllowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "allow <report|collection|graph>",
		Short: "Show or replace the allow-list of a namespace",
		Long: `Show or replace the values accepted for a namespace. Without flags the
current allow-list is printed. --source and --type each replace only their
own list; an empty list accepts any value. --clear removes all restrictions.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"report", "collection", "graph"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := domain.Namespace(args[0])
			change := opts.Clear || cmd.Flags().Changed("source") || cmd.Flags().Changed("type")
			policy := app.PersistManual
			if change {
				policy = app.PersistSync
			}

			return withService(cmd, opts.RootOptions, domain.KindOf(ns), policy, func(ctx context.Context, s *session, svc *app.NamingService) error {
				if change {
					list, err := svc.AllowList(ctx, ns)
					if err != nil {
						return err
					}
					if opts.Clear {
						list = domain.AllowList{}
					}
					if cmd.Flags().Changed("source") {
						list.Sources = opts.Sources
					}
					if cmd.Flags().Changed("type") {
						list.Categories = opts.Categories
					}
					if err := svc.SetAllowList(ctx, ns, list); err != nil {
						return err
					}
				}
				list, err := svc.AllowList(ctx, ns)
				if err != nil {
					return err
				}
				return s.out.Success(AllowResult{Namespace: string(ns), Sources: nonNil(list.Sources), Categories: list.Categories})
			})
		},
	}

	cmd.Flags().StringSliceVar(&opts.Sources, "source", nil, "accepted sources (repeat or comma-separate)")
	cmd.Flags().StringSliceVar(&opts.Categories, "type", nil, "accepted report types (reports only)")
	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "remove all restrictions")

	return cmd
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
