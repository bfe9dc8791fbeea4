package metadata

import (
	"reflect"
	"slices"
	"strings"
	"sync"
)

// Registry is the context-owned entity metadata cache handed to criteria
// builders. It is not process-global: each application creates one and
// passes it explicitly.
//
// Construction of each entity happens at most once, even when several
// goroutines ask for the same entity concurrently (compute-if-absent).
// A failed construction is cached too, so every caller sees the same error.
type Registry struct {
	naming NamingStrategy

	mu      sync.Mutex
	entries map[string]*entry
	types   map[string]reflect.Type
}

type entry struct {
	ready  chan struct{}
	entity *PersistentEntity
	err    error
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithNaming sets the naming strategy used for undeclared persisted names.
func WithNaming(n NamingStrategy) RegistryOption {
	return func(r *Registry) {
		if n != nil {
			r.naming = n
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		naming:  UnderscorePlural{},
		entries: make(map[string]*entry),
		types:   make(map[string]reflect.Type),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Naming returns the registry's naming strategy.
func (r *Registry) Naming() NamingStrategy {
	return r.naming
}

// ComputeIfAbsent returns the entity registered under name, invoking build
// to construct it if this is the first request. Concurrent callers for the
// same name block until the single build completes.
func (r *Registry) ComputeIfAbsent(name string, build func() (Definition, error)) (Entity, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.entries[name] = e
	}
	r.mu.Unlock()

	if ok {
		<-e.ready
	} else {
		r.fill(e, name, build)
	}

	if e.err != nil {
		return nil, e.err
	}
	return e.entity, nil
}

// fill constructs e and releases its waiters. A panicking build leaves
// an error behind for them and keeps panicking in the calling goroutine.
func (r *Registry) fill(e *entry, name string, build func() (Definition, error)) {
	defer close(e.ready)
	e.err = &Error{Code: ErrCodeInvalidMapping, Entity: name, Message: "entity construction panicked"}
	e.entity, e.err = r.construct(name, build)
}

func (r *Registry) construct(name string, build func() (Definition, error)) (*PersistentEntity, error) {
	def, err := build()
	if err != nil {
		return nil, err
	}
	if def.Name == "" {
		def.Name = name
	}
	if def.Name != name {
		return nil, &Error{
			Code:    ErrCodeInvalidMapping,
			Entity:  name,
			Message: "definition name " + def.Name + " does not match registration key",
		}
	}
	return NewPersistentEntity(def, r.naming)
}

// Define registers def under def.Name. If the name is already registered
// the existing entity (or its construction error) is returned unchanged.
func (r *Registry) Define(def Definition) (Entity, error) {
	return r.ComputeIfAbsent(def.Name, func() (Definition, error) { return def, nil })
}

// Lookup returns a registered entity. It waits for an in-flight construction.
func (r *Registry) Lookup(name string) (Entity, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownEntity, Entity: name, Message: "entity is not registered"}
	}
	<-e.ready
	if e.err != nil {
		return nil, e.err
	}
	return e.entity, nil
}

// Entities returns every successfully constructed entity sorted by name.
func (r *Registry) Entities() []Entity {
	r.mu.Lock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.Unlock()
	slices.Sort(names)

	out := make([]Entity, 0, len(names))
	for _, name := range names {
		if ent, err := r.Lookup(name); err == nil {
			out = append(out, ent)
		}
	}
	return out
}

// Introspect registers the struct type of v (and, transitively, every
// entity type it associates with) and returns its metadata.
// See introspect.go for the recognised `critq` struct tags.
func (r *Registry) Introspect(v any) (Entity, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return r.introspectType(t)
}

func (r *Registry) introspectType(t reflect.Type) (Entity, error) {
	if t == nil || t.Kind() != reflect.Struct || t.Name() == "" {
		return nil, &Error{Code: ErrCodeInvalidMapping, Message: "introspection requires a named struct type"}
	}

	name := t.Name()
	r.mu.Lock()
	if existing, ok := r.types[name]; ok && existing != t {
		r.mu.Unlock()
		return nil, &Error{Code: ErrCodeInvalidMapping, Entity: name, Message: "name already bound to type " + existing.String()}
	}
	r.types[name] = t
	r.mu.Unlock()

	var targets []reflect.Type
	ent, err := r.ComputeIfAbsent(name, func() (Definition, error) {
		def, refs, err := describeStruct(t)
		targets = refs
		return def, err
	})
	if err != nil {
		return nil, err
	}

	// Targets are registered after the owner is ready so that cyclic
	// associations (Book.Author / Author.Books) never wait on themselves.
	for _, target := range targets {
		if _, err := r.introspectType(target); err != nil {
			return nil, err
		}
	}
	return ent, nil
}

// String lists the registered entity names; used in diagnostics.
func (r *Registry) String() string {
	ents := r.Entities()
	names := make([]string, len(ents))
	for i, e := range ents {
		names[i] = e.Name()
	}
	return "Registry[" + strings.Join(names, ", ") + "]"
}
