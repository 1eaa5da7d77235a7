package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"riviera/internal/logging"
)

// entry binds a builtin definition to its handler. The registry owns it.
type entry struct {
	def     Definition
	handler Handler
}

// externalEntry binds an external tool config to its live adapter.
type externalEntry struct {
	config  Config
	adapter ExternalExecutor
}

// Registration pairs a definition with its handler for bulk registration.
type Registration struct {
	Definition Definition
	Handler    Handler
}

// Deps are the constructor-injected collaborators of a Registry.
// Configs, Secrets and Factory are only needed when external tools are
// in play; a builtin-only registry can leave them nil.
type Deps struct {
	Configs ConfigRepository
	Secrets SecretRepository
	Factory AdapterFactory
	Logger  logging.Logger
}

// Registry is the per-agent tool dispatcher. Builtin entries live for the
// lifetime of the owning agent; external entries are loaded lazily per
// tenant and severed on Dispose.
//
// Population (Register, LoadExternalTools) is expected to finish during
// the owning agent's startup, before concurrent dispatch begins; the
// registry does not synchronize registration racing with dispatch beyond
// its internal map locking.
type Registry struct {
	mu             sync.RWMutex
	builtins       map[string]entry
	builtinOrder   []string
	external       map[string]externalEntry
	externalOrder  []string
	externalLoaded bool

	configs    ConfigRepository
	secrets    SecretRepository
	newAdapter AdapterFactory
	logger     logging.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		builtins:   make(map[string]entry),
		external:   make(map[string]externalEntry),
		configs:    deps.Configs,
		secrets:    deps.Secrets,
		newAdapter: deps.Factory,
		logger:     logging.OrNop(deps.Logger),
	}
}

// Register inserts a builtin tool. Re-registering an existing name
// overwrites silently except for a logged warning: last writer wins.
func (r *Registry) Register(def Definition, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builtins[def.Name]; exists {
		r.logger.Warn("tool %q registered twice, keeping the newer handler", def.Name)
	} else {
		r.builtinOrder = append(r.builtinOrder, def.Name)
	}
	r.builtins[def.Name] = entry{def: def, handler: handler}
}

// RegisterAll bulk-registers builtin tools.
func (r *Registry) RegisterAll(registrations []Registration) {
	for _, reg := range registrations {
		r.Register(reg.Definition, reg.Handler)
	}
}

// Definitions returns builtin schemas in insertion order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.builtinOrder))
	for _, name := range r.builtinOrder {
		defs = append(defs, r.builtins[name].def)
	}
	return defs
}

// DefinitionsWithExternal returns builtin schemas in insertion order with
// external schemas appended afterward. This is the tool list handed to
// the LLM provider.
func (r *Registry) DefinitionsWithExternal() []Definition {
	defs := r.Definitions()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.externalOrder {
		ext := r.external[name]
		def := Definition{
			Name:        ext.config.Name,
			Description: ext.config.Description,
			InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
		}
		if ext.config.InputSchema != nil {
			def.InputSchema = *ext.config.InputSchema
		}
		defs = append(defs, def)
	}
	return defs
}

// Execute dispatches a builtin tool call. It never raises: unknown names,
// handler errors and handler panics all fold into a failed Result.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any, tc Context) Result {
	r.mu.RLock()
	e, ok := r.builtins[name]
	r.mu.RUnlock()
	if !ok {
		return Fail(fmt.Sprintf("Tool not found: %s", name))
	}
	return r.dispatch(ctx, name, input, tc, func(ctx context.Context) (any, error) {
		return e.handler(ctx, input, tc)
	})
}

// ExecuteWithExternal dispatches across both namespaces. Builtins take
// precedence on a name collision.
func (r *Registry) ExecuteWithExternal(ctx context.Context, name string, input map[string]any, tc Context) Result {
	r.mu.RLock()
	e, builtin := r.builtins[name]
	ext, external := r.external[name]
	r.mu.RUnlock()

	switch {
	case builtin:
		return r.dispatch(ctx, name, input, tc, func(ctx context.Context) (any, error) {
			return e.handler(ctx, input, tc)
		})
	case external:
		return r.dispatch(ctx, name, input, tc, func(ctx context.Context) (any, error) {
			if !ext.adapter.Ready() {
				return nil, fmt.Errorf("adapter for %s is not ready", name)
			}
			return ext.adapter.Execute(ctx, input)
		})
	default:
		return Fail(fmt.Sprintf("Tool not found: %s", name))
	}
}

// dispatch runs fn inside the failure boundary shared by both namespaces.
func (r *Registry) dispatch(ctx context.Context, name string, input map[string]any, tc Context, fn func(ctx context.Context) (any, error)) (result Result) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool %s panicked for agent %s: %v", name, tc.AgentID, rec)
			result = Fail(fmt.Sprintf("Tool execution failed: %v", rec))
		}
	}()

	r.logger.Debug("dispatching tool %s (agent=%s website=%s task=%s)",
		name, tc.AgentID, tc.WebsiteID, tc.TaskID)

	data, err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil {
		r.logger.Warn("tool %s failed after %s: %v", name, elapsed, err)
		return Fail(fmt.Sprintf("Tool execution failed: %s", err.Error()))
	}

	r.logger.Debug("tool %s finished in %s", name, elapsed)
	return Ok(data)
}

// LoadExternalTools loads the tenant's external tools into the external
// namespace. The call is idempotent: names already present are skipped.
// One bad external tool configuration does not prevent the others from
// loading; failures are logged and skipped.
func (r *Registry) LoadExternalTools(ctx context.Context, websiteID string) error {
	if r.configs == nil || r.newAdapter == nil {
		r.mu.Lock()
		r.externalLoaded = true
		r.mu.Unlock()
		return nil
	}

	configs, err := r.configs.ListByWebsite(ctx, websiteID)
	if err != nil {
		return fmt.Errorf("list external tools for website %s: %w", websiteID, err)
	}

	for _, cfg := range configs {
		if cfg.Type == TypeBuiltin {
			continue
		}

		r.mu.RLock()
		_, exists := r.external[cfg.Name]
		r.mu.RUnlock()
		if exists {
			continue
		}

		if err := r.loadOne(ctx, websiteID, cfg); err != nil {
			r.logger.Error("loading external tool %s (%s) for website %s failed: %v",
				cfg.Name, cfg.ID, websiteID, err)
			continue
		}
	}

	r.mu.Lock()
	r.externalLoaded = true
	r.mu.Unlock()
	return nil
}

func (r *Registry) loadOne(ctx context.Context, websiteID string, cfg Config) error {
	var secrets map[string]string
	if r.secrets != nil {
		var err error
		secrets, err = r.secrets.SecretsFor(ctx, websiteID, cfg.ID)
		if err != nil {
			return fmt.Errorf("fetch secrets: %w", err)
		}
	}

	instance, err := r.newAdapter(cfg.Type)
	if err != nil {
		return err
	}
	if err := instance.Initialize(ctx, cfg, secrets); err != nil {
		return fmt.Errorf("initialize adapter: %w", err)
	}

	r.mu.Lock()
	if _, exists := r.external[cfg.Name]; !exists {
		r.external[cfg.Name] = externalEntry{config: cfg, adapter: instance}
		r.externalOrder = append(r.externalOrder, cfg.Name)
	}
	r.mu.Unlock()

	r.logger.Info("loaded external tool %s (type=%s) for website %s", cfg.Name, cfg.Type, websiteID)
	return nil
}

// HasExternalToolsLoaded reports whether LoadExternalTools has run.
func (r *Registry) HasExternalToolsLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.externalLoaded
}

// ExternalCount returns the number of loaded external tools.
func (r *Registry) ExternalCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.external)
}

// Dispose releases every external adapter best-effort: a failing teardown
// is logged and does not stop disposal of the remaining entries. The
// external map is always emptied and the loaded flag always reset.
func (r *Registry) Dispose(ctx context.Context) {
	r.mu.Lock()
	entries := make([]externalEntry, 0, len(r.external))
	for _, name := range r.externalOrder {
		entries = append(entries, r.external[name])
	}
	r.external = make(map[string]externalEntry)
	r.externalOrder = nil
	r.externalLoaded = false
	r.mu.Unlock()

	for _, ext := range entries {
		if err := ext.adapter.Dispose(ctx); err != nil {
			r.logger.Error("disposing adapter for %s failed: %v", ext.config.Name, err)
		}
	}
}

// Has reports whether name resolves in either namespace.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.builtins[name]; ok {
		return true
	}
	_, ok := r.external[name]
	return ok
}

// AllToolNames returns the union of both namespaces, builtins first.
func (r *Registry) AllToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builtinOrder)+len(r.externalOrder))
	names = append(names, r.builtinOrder...)
	for _, name := range r.externalOrder {
		if _, shadowed := r.builtins[name]; !shadowed {
			names = append(names, name)
		}
	}
	return names
}
