// Package registry implements the Model Registry: a YAML-loaded catalog of
// backend models that can be hot-reloaded at runtime, grounded on
// original_source/gateway/router.py's ModelRouter.
package registry

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/gonka-ai/inference-gateway/internal/log"
	"github.com/gonka-ai/inference-gateway/internal/wire"
)

// Backend describes one routable model, matching router.py's ModelBackend
// dataclass field for field, including its load-time defaults.
type Backend struct {
	Name         string            `yaml:"name"`
	DisplayName  string            `yaml:"display_name"`
	Provider     string            `yaml:"provider"`
	ModelID      string            `yaml:"model_id"`
	Tier         string            `yaml:"tier"`
	BackendURL   string            `yaml:"backend_url"`
	Capabilities []string          `yaml:"capabilities"`
	ContextLen   int               `yaml:"context_length"`
	Pricing      map[string]float64 `yaml:"pricing"`
}

type fileFormat struct {
	Models []Backend `yaml:"models"`
}

func applyDefaults(b Backend) Backend {
	if b.DisplayName == "" {
		b.DisplayName = b.Name
	}
	if b.Provider == "" {
		b.Provider = "unknown"
	}
	if b.ModelID == "" {
		b.ModelID = b.Name
	}
	if b.Tier == "" {
		b.Tier = "standard"
	}
	if b.BackendURL == "" {
		b.BackendURL = "http://localhost:8000"
	}
	if b.Capabilities == nil {
		b.Capabilities = []string{"chat"}
	}
	if b.ContextLen == 0 {
		b.ContextLen = 4096
	}
	if b.Pricing == nil {
		b.Pricing = map[string]float64{}
	}
	return b
}

// Registry holds the current model catalog behind an atomically-swapped
// snapshot, so Resolve/List never block on a concurrent Reload.
type Registry struct {
	path string

	snapshot atomic.Pointer[snapshot]
	sf       singleflight.Group
	mu       sync.Mutex // serializes writers; readers only touch snapshot
}

type snapshot struct {
	order []string
	byName map[string]Backend
}

// New creates a Registry and performs an initial load from path. A missing
// file is not an error: the registry simply starts empty, matching
// router.py's reload() which silently no-ops when the YAML file is absent.
func New(path string) (*Registry, error) {
	r := &Registry{path: path}
	if _, err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the catalog file and atomically swaps it in. Concurrent
// reloads (an fsnotify event racing an explicit admin trigger) collapse
// into a single read via singleflight.
func (r *Registry) Reload() (int, error) {
	v, err, _ := r.sf.Do("reload", func() (interface{}, error) {
		return r.reloadOnce()
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (r *Registry) reloadOnce() (int, error) {
	logger := log.WithComponent("registry")

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("path", r.path).Msg("model catalog file not found, registry stays empty")
			return 0, nil
		}
		return 0, fmt.Errorf("registry: read %s: %w", r.path, err)
	}

	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return 0, fmt.Errorf("registry: parse %s: %w", r.path, err)
	}

	next := &snapshot{
		order:  make([]string, 0, len(ff.Models)),
		byName: make(map[string]Backend, len(ff.Models)),
	}
	for _, b := range ff.Models {
		b = applyDefaults(b)
		if _, exists := next.byName[b.Name]; !exists {
			next.order = append(next.order, b.Name)
		}
		next.byName[b.Name] = b
	}

	r.mu.Lock()
	r.snapshot.Store(next)
	r.mu.Unlock()

	logger.Info().Str("path", r.path).Int("models", len(next.order)).Msg("model catalog reloaded")
	return len(next.order), nil
}

func (r *Registry) current() *snapshot {
	s := r.snapshot.Load()
	if s == nil {
		return &snapshot{byName: map[string]Backend{}}
	}
	return s
}

// Resolve looks up a model by name. On miss it returns an error whose
// message lists the currently available models, matching router.py's
// resolve() 404 message.
func (r *Registry) Resolve(name string) (Backend, error) {
	s := r.current()
	b, ok := s.byName[name]
	if !ok {
		return Backend{}, &NotFoundError{Requested: name, Available: append([]string(nil), s.order...)}
	}
	return b, nil
}

// NotFoundError reports that a requested model is not in the catalog.
type NotFoundError struct {
	Requested string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model %q not found", e.Requested)
}

// Default returns the first registered model (insertion order, matching
// router.py's get_default_model which relies on dict insertion order), or
// ok=false if the catalog is empty.
func (r *Registry) Default() (Backend, bool) {
	s := r.current()
	if len(s.order) == 0 {
		return Backend{}, false
	}
	return s.byName[s.order[0]], true
}

// Count reports the number of models currently registered.
func (r *Registry) Count() int {
	return len(r.current().order)
}

// List returns the catalog in OpenAI /v1/models format, in insertion order.
func (r *Registry) List() []wire.ModelEntry {
	s := r.current()
	out := make([]wire.ModelEntry, 0, len(s.order))
	for _, name := range s.order {
		b := s.byName[name]
		out = append(out, wire.ModelEntry{
			ID:         b.Name,
			Object:     "model",
			Created:    0,
			OwnedBy:    b.Provider,
			Permission: []wire.ModelPermission{},
			Root:       b.ModelID,
			Parent:     nil,
		})
	}
	return out
}
