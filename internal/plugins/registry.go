// Package plugins provides a plugin registry for storage backends and exporters.
package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/ArionMiles/kakeibo/pkg/api"
	"github.com/ArionMiles/kakeibo/pkg/config"
	"github.com/ArionMiles/kakeibo/pkg/store"
)

// BackendPlugin defines the interface for record storage plugins.
type BackendPlugin interface {
	// Name returns the plugin name (e.g., "memory", "postgres").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// NewBackend opens the backend described by cfg.
	NewBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Backend, error)
}

// ExporterPlugin defines the interface for record exporter plugins.
type ExporterPlugin interface {
	// Name returns the plugin name (e.g., "sheets", "csv", "json").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// RequiredScopes returns the OAuth scopes needed by this plugin.
	RequiredScopes() []string
	// ConfigSchema returns a JSON schema describing the plugin's configuration.
	ConfigSchema() map[string]any
	// NewExporter creates a new exporter instance with the given config.
	NewExporter(ctx context.Context, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error)
}

// Registry manages available backend and exporter plugins.
type Registry struct {
	backends  map[string]BackendPlugin
	exporters map[string]ExporterPlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		backends:  make(map[string]BackendPlugin),
		exporters: make(map[string]ExporterPlugin),
	}
}

// RegisterBackend registers a backend plugin.
func (r *Registry) RegisterBackend(plugin BackendPlugin) error {
	name := plugin.Name()
	if _, exists := r.backends[name]; exists {
		return fmt.Errorf("backend plugin %q already registered", name)
	}
	r.backends[name] = plugin
	return nil
}

// RegisterExporter registers an exporter plugin.
func (r *Registry) RegisterExporter(plugin ExporterPlugin) error {
	name := plugin.Name()
	if _, exists := r.exporters[name]; exists {
		return fmt.Errorf("exporter plugin %q already registered", name)
	}
	r.exporters[name] = plugin
	return nil
}

// GetBackend returns a backend plugin by name.
func (r *Registry) GetBackend(name string) (BackendPlugin, error) {
	plugin, exists := r.backends[name]
	if !exists {
		return nil, fmt.Errorf("backend plugin %q not found (available: %s)", name, strings.Join(names(r.backends), ", "))
	}
	return plugin, nil
}

// GetExporter returns an exporter plugin by name.
func (r *Registry) GetExporter(name string) (ExporterPlugin, error) {
	plugin, exists := r.exporters[name]
	if !exists {
		return nil, fmt.Errorf("exporter plugin %q not found (available: %s)", name, strings.Join(names(r.exporters), ", "))
	}
	return plugin, nil
}

// ListBackends returns all registered backend plugins sorted by name.
func (r *Registry) ListBackends() []BackendPlugin {
	out := make([]BackendPlugin, 0, len(r.backends))
	for _, name := range names(r.backends) {
		out = append(out, r.backends[name])
	}
	return out
}

// ListExporters returns all registered exporter plugins sorted by name.
func (r *Registry) ListExporters() []ExporterPlugin {
	out := make([]ExporterPlugin, 0, len(r.exporters))
	for _, name := range names(r.exporters) {
		out = append(out, r.exporters[name])
	}
	return out
}

// GetAllScopes returns the deduplicated OAuth scopes required by the named
// exporters. With no names it covers every registered exporter.
func (r *Registry) GetAllScopes(exporterNames ...string) ([]string, error) {
	if len(exporterNames) == 0 {
		exporterNames = names(r.exporters)
	}

	scopeSet := make(map[string]struct{})
	for _, name := range exporterNames {
		exporter, err := r.GetExporter(name)
		if err != nil {
			return nil, err
		}
		for _, scope := range exporter.RequiredScopes() {
			scopeSet[scope] = struct{}{}
		}
	}

	scopes := make([]string, 0, len(scopeSet))
	for scope := range scopeSet {
		scopes = append(scopes, scope)
	}
	slices.Sort(scopes)
	return scopes, nil
}

// CreateBackend opens a backend from a plugin.
func (r *Registry) CreateBackend(ctx context.Context, name string, cfg config.Config, logger *slog.Logger) (store.Backend, error) {
	plugin, err := r.GetBackend(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewBackend(ctx, cfg, logger)
}

// CreateExporter creates an exporter instance from a plugin.
func (r *Registry) CreateExporter(ctx context.Context, name string, httpClient *http.Client, config json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	plugin, err := r.GetExporter(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewExporter(ctx, httpClient, config, logger)
}

func names[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
