package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"gopkg.in/yaml.v3"

	"github.com/neomorfeo/ctinamer/internal/domain"
)

// Compile-time check: Repository implements domain.StateRepository.
var _ domain.StateRepository = (*Repository)(nil)

// Repository persists one store kind as a YAML or JSON document. The
// location may be a local path or any URL afs understands.
type Repository struct {
	fs       afs.Service
	location string
	kind     domain.Kind
}

// New creates a repository for kind stored at location. Relative local
// paths are resolved against the working directory.
func New(location string, kind domain.Kind) (*Repository, error) {
	return NewWithService(afs.New(), location, kind)
}

// NewWithService is like New but uses the given afs service.
func NewWithService(fs afs.Service, location string, kind domain.Kind) (*Repository, error) {
	loc, err := resolve(location)
	if err != nil {
		return nil, err
	}
	return &Repository{fs: fs, location: loc, kind: kind}, nil
}

// Location returns the resolved resource location.
func (r *Repository) Location() string {
	return r.location
}

// Load reads and decodes the document.
func (r *Repository) Load(ctx context.Context) (domain.State, error) {
	exists, err := r.fs.Exists(ctx, r.location)
	if err != nil {
		return domain.State{}, &domain.IOError{Op: "stat", Resource: r.location, Err: err}
	}
	if !exists {
		return domain.State{}, domain.ErrStateNotFound
	}

	data, err := r.fs.DownloadWithURL(ctx, r.location)
	if err != nil {
		return domain.State{}, &domain.IOError{Op: "read", Resource: r.location, Err: err}
	}

	var doc document
	if err := decode(r.location, data, &doc); err != nil {
		return domain.State{}, &domain.CorruptionError{Resource: r.location, Err: err}
	}
	if doc.Kind != "" && doc.Kind != string(r.kind) {
		return domain.State{}, &domain.CorruptionError{
			Resource: r.location,
			Err:      fmt.Errorf("document holds kind %q, want %q", doc.Kind, r.kind),
		}
	}

	state := doc.toState(r.kind)
	if err := state.Validate(); err != nil {
		return domain.State{}, &domain.CorruptionError{Resource: r.location, Err: err}
	}
	return state, nil
}

// Save encodes state and replaces the document atomically.
func (r *Repository) Save(ctx context.Context, state domain.State) error {
	data, err := encode(r.location, toDocument(state))
	if err != nil {
		return fmt.Errorf("encoding %s state: %w", state.Kind, err)
	}
	return writeAtomic(ctx, r.fs, r.location, data)
}

// writeAtomic uploads data to a hidden sibling of location and renames it
// over the target, so readers never observe a partial document. The
// sibling keeps the target's extension: afs treats a move between names
// with different extensions as a move into a directory.
func writeAtomic(ctx context.Context, fs afs.Service, location string, data []byte) error {
	parent, name := url.Split(location, file.Scheme)
	tmp := url.Join(parent, "."+name+"."+uuid.NewString()+path.Ext(name))

	if err := fs.Upload(ctx, tmp, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return &domain.IOError{Op: "write", Resource: location, Err: err}
	}

	var err error
	if url.Scheme(location, file.Scheme) == file.Scheme {
		err = os.Rename(file.Path(tmp), file.Path(location))
	} else {
		err = fs.Move(ctx, tmp, location)
	}
	if err != nil {
		_ = fs.Delete(ctx, tmp)
		return &domain.IOError{Op: "replace", Resource: location, Err: err}
	}
	return nil
}

func isJSON(location string) bool {
	return strings.EqualFold(filepath.Ext(location), ".json")
}

func encode(location string, doc document) ([]byte, error) {
	if isJSON(location) {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(location string, data []byte, doc *document) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("document is empty")
	}
	var rest struct{}
	if isJSON(location) {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(doc); err != nil {
			return err
		}
		if err := dec.Decode(&rest); !errors.Is(err, io.EOF) {
			return errors.New("trailing data after document")
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(doc); err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("document is empty")
			}
			return err
		}
		if err := dec.Decode(&rest); !errors.Is(err, io.EOF) {
			return errors.New("more than one document")
		}
	}
	if doc.isZero() {
		return errors.New("document holds no store")
	}
	return nil
}

// resolve makes scheme-less locations absolute so afs and the temp sibling
// agree on the directory.
func resolve(location string) (string, error) {
	if strings.TrimSpace(location) == "" {
		return "", &domain.ValidationError{Field: "location", Value: location, Reason: "must not be empty"}
	}
	if strings.Contains(location, "://") {
		return location, nil
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", location, err)
	}
	return abs, nil
}
