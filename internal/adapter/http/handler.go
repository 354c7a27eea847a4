package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/ctinamer/internal/app"
	"github.com/neomorfeo/ctinamer/internal/domain"
)

// Services maps each store kind to the service that owns it. A kind
// without a service answers 503.
type Services map[domain.Kind]*app.NamingService

func (s Services) forKind(kind domain.Kind) (*app.NamingService, error) {
	svc, ok := s[kind]
	if !ok || svc == nil {
		return nil, domain.ErrStoreNotReady
	}
	return svc, nil
}

// IDResponse is the API representation of an issued ID.
type IDResponse struct {
	ID          string `json:"id" doc:"Issued identifier"`
	Namespace   string `json:"namespace" doc:"Namespace the ID belongs to"`
	Description string `json:"description,omitempty" doc:"Description recorded at issuance"`
}

func toIDResponse(e domain.Entry) IDResponse {
	return IDResponse{
		ID:          e.ID,
		Namespace:   string(e.Namespace),
		Description: e.Description,
	}
}

// AllowListResponse is the API representation of an allow-list.
type AllowListResponse struct {
	Sources    []string `json:"sources,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// StoreResponse describes the settings of one store kind.
type StoreResponse struct {
	Kind       string                       `json:"kind"`
	Status     string                       `json:"status" doc:"Lifecycle state"`
	OutputFile string                       `json:"output_file" doc:"Default export target"`
	AllowLists map[string]AllowListResponse `json:"allow_lists" doc:"Allow-lists by namespace"`
}

// --- Allocate ---

type AllocateInput struct {
	Namespace string `path:"namespace" enum:"report,collection,graph" doc:"ID namespace"`
	Body      struct {
		Source      string `json:"source" minLength:"1" doc:"Intelligence source"`
		Category    string `json:"category,omitempty" doc:"Report category (reports only)"`
		Date        string `json:"date,omitempty" pattern:"^[0-9]{8}$" doc:"Issue date as YYYYMMDD, defaults to today"`
		Description string `json:"description,omitempty" doc:"Free-text description"`
	}
}

type AllocateOutput struct {
	Body struct {
		IDResponse
		Warning string `json:"warning,omitempty" doc:"Set when the ID was issued but could not be persisted"`
	}
}

// --- List ---

type ListInput struct {
	Namespace string `path:"namespace" enum:"report,collection,graph" doc:"ID namespace"`
}

type ListOutput struct {
	Body []IDResponse
}

// --- Describe ---

type DescribeInput struct {
	Namespace string `path:"namespace" enum:"report,collection,graph" doc:"ID namespace"`
	ID        string `path:"id" doc:"Issued identifier"`
}

type DescribeOutput struct {
	Body IDResponse
}

// --- Stores ---

type StoreInput struct {
	Kind string `path:"kind" enum:"report,platform" doc:"Store kind"`
}

type StoreOutput struct {
	Body StoreResponse
}

type PersistOutput struct{}

// ExportInput names the store to export. The target is always the store's
// configured output file; clients cannot choose where the server writes.
type ExportInput struct {
	Kind string `path:"kind" enum:"report,platform" doc:"Store kind"`
}

type ExportOutput struct {
	Body struct {
		Kind   string `json:"kind"`
		Target string `json:"target" doc:"Output file written"`
	}
}

// Register adds all naming API routes to the Huma API.
func Register(api huma.API, services Services) {
	huma.Register(api, huma.Operation{
		OperationID: "allocate-id",
		Method:      http.MethodPost,
		Path:        "/api/v1/{namespace}/ids",
		Summary:     "Issue the next ID",
		Tags:        []string{"IDs"},
	}, func(ctx context.Context, input *AllocateInput) (*AllocateOutput, error) {
		ns := domain.Namespace(input.Namespace)
		svc, err := services.forKind(domain.KindOf(ns))
		if err != nil {
			return nil, toHumaError(err)
		}

		req := domain.AllocateRequest{
			Namespace:   ns,
			Source:      input.Body.Source,
			Category:    input.Body.Category,
			Description: input.Body.Description,
		}
		if input.Body.Date != "" {
			if req.Date, err = domain.ParseDate(input.Body.Date); err != nil {
				return nil, toHumaError(err)
			}
		}

		issued, err := svc.Allocate(ctx, req)
		if issued.ID == "" {
			return nil, toHumaError(err)
		}

		out := &AllocateOutput{}
		out.Body.IDResponse = IDResponse{ID: issued.ID, Namespace: string(issued.Namespace)}
		if desc, derr := svc.Describe(ctx, issued.ID); derr == nil {
			out.Body.Description = desc
		}
		if err != nil {
			out.Body.Warning = err.Error()
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-ids",
		Method:      http.MethodGet,
		Path:        "/api/v1/{namespace}/ids",
		Summary:     "List issued IDs in issuance order",
		Tags:        []string{"IDs"},
	}, func(ctx context.Context, input *ListInput) (*ListOutput, error) {
		ns := domain.Namespace(input.Namespace)
		svc, err := services.forKind(domain.KindOf(ns))
		if err != nil {
			return nil, toHumaError(err)
		}

		entries, err := svc.List(ctx)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]IDResponse, 0, len(entries))
		for _, e := range entries {
			if e.Namespace == ns {
				resp = append(resp, toIDResponse(e))
			}
		}
		return &ListOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "describe-id",
		Method:      http.MethodGet,
		Path:        "/api/v1/{namespace}/ids/{id}",
		Summary:     "Get the description of an issued ID",
		Tags:        []string{"IDs"},
	}, func(ctx context.Context, input *DescribeInput) (*DescribeOutput, error) {
		ns := domain.Namespace(input.Namespace)
		if domain.NamespaceOfID(input.ID) != ns {
			return nil, toHumaError(domain.ErrDescriptionNotFound)
		}
		svc, err := services.forKind(domain.KindOf(ns))
		if err != nil {
			return nil, toHumaError(err)
		}

		desc, err := svc.Describe(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &DescribeOutput{Body: IDResponse{ID: input.ID, Namespace: string(ns), Description: desc}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-store",
		Method:      http.MethodGet,
		Path:        "/api/v1/stores/{kind}",
		Summary:     "Get store settings",
		Tags:        []string{"Stores"},
	}, func(ctx context.Context, input *StoreInput) (*StoreOutput, error) {
		kind := domain.Kind(input.Kind)
		svc, err := services.forKind(kind)
		if err != nil {
			return nil, toHumaError(err)
		}

		out, err := svc.OutputFile(ctx)
		if err != nil {
			return nil, toHumaError(err)
		}
		resp := StoreResponse{
			Kind:       string(kind),
			Status:     string(svc.Status()),
			OutputFile: out,
			AllowLists: make(map[string]AllowListResponse),
		}
		for _, ns := range kind.Namespaces() {
			list, err := svc.AllowList(ctx, ns)
			if err != nil {
				return nil, toHumaError(err)
			}
			if !list.IsZero() {
				resp.AllowLists[string(ns)] = AllowListResponse{Sources: list.Sources, Categories: list.Categories}
			}
		}
		return &StoreOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "persist-store",
		Method:        http.MethodPost,
		Path:          "/api/v1/stores/{kind}/persist",
		Summary:       "Write the store state",
		Tags:          []string{"Stores"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *StoreInput) (*PersistOutput, error) {
		svc, err := services.forKind(domain.Kind(input.Kind))
		if err != nil {
			return nil, toHumaError(err)
		}
		if err := svc.Persist(ctx); err != nil {
			return nil, toHumaError(err)
		}
		return &PersistOutput{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-store",
		Method:      http.MethodPost,
		Path:        "/api/v1/stores/{kind}/export",
		Summary:     "Write the readable ID listing to the store's output file",
		Tags:        []string{"Stores"},
	}, func(ctx context.Context, input *ExportInput) (*ExportOutput, error) {
		svc, err := services.forKind(domain.Kind(input.Kind))
		if err != nil {
			return nil, toHumaError(err)
		}

		target, err := svc.Export(ctx, "")
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &ExportOutput{}
		out.Body.Kind = input.Kind
		out.Body.Target = target
		return out, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrDescriptionNotFound) {
		return huma.Error404NotFound("description not found")
	}

	if errors.Is(err, domain.ErrStoreNotReady) {
		return huma.Error503ServiceUnavailable(err.Error())
	}

	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return huma.Error422UnprocessableEntity(vErr.Error())
	}

	var ioErr *domain.IOError
	if errors.As(err, &ioErr) {
		return huma.Error500InternalServerError(err.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
