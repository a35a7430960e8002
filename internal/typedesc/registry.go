package typedesc

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/ddscore/cdrx/internal/logger"
	"github.com/ddscore/cdrx/internal/ops"
)

// entry is one interned descriptor plus its refcount, debug handle, and the
// names currently aliased to it.
type entry struct {
	desc     *TypeDescriptor
	refCount int
	handle   uuid.UUID
	sig      string
	names    []string
}

// Registry is a process-wide, mutex-protected table of interned
// TypeDescriptors. Descriptors are deduplicated by structural
// equality of their op-stream, not by pointer identity or by the
// caller-supplied type name, so two independent callers building the same
// type's descriptor share one entry even when they register it under
// different names. The shared descriptor keeps the name it was first
// registered under.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*entry
	bySig  map[string]*entry
}

// NewRegistry creates an empty Registry. Most programs share the package
// level Default registry instead of creating their own.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*entry),
		bySig:  make(map[string]*entry),
	}
}

// Default is the process-wide registry most callers use.
var Default = NewRegistry()

// Register interns a descriptor for name/goType/agg. A repeat registration
// of the same name bumps its refcount; a new name whose op-stream is
// structurally equal to an already-registered one shares that entry
// (bumping its refcount and aliasing the new name to it); only a shape the
// registry has never seen builds a fresh descriptor. Returns an error if
// name is already registered with a structurally different op-stream.
func (r *Registry) Register(name string, goType reflect.Type, agg *ops.Aggregate) (*TypeDescriptor, error) {
	sig := Signature(agg)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if existing.sig != sig {
			return nil, fmt.Errorf("typedesc: %s already registered with a different op-stream shape", name)
		}
		existing.refCount++
		return existing.desc, nil
	}

	if twin, ok := r.bySig[sig]; ok {
		twin.refCount++
		twin.names = append(twin.names, name)
		r.byName[name] = twin
		logger.Debug("typedesc: aliased type to structural twin",
			logger.TypeName(name),
			"canonical", twin.desc.Name,
			"handle", twin.handle.String(),
		)
		return twin.desc, nil
	}

	desc, err := New(name, goType, agg)
	if err != nil {
		return nil, err
	}

	e := &entry{desc: desc, refCount: 1, handle: uuid.New(), sig: sig, names: []string{name}}
	r.byName[name] = e
	r.bySig[sig] = e

	logger.Debug("typedesc: registered type",
		logger.TypeName(name),
		"handle", e.handle.String(),
		logger.XCDRVersion(desc.MinXCDRVersion),
	)
	return desc, nil
}

// Lookup returns the descriptor registered under name, if any.
func (r *Registry) Lookup(name string) (*TypeDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return e.desc, true
}

// Handle returns the debug UUID assigned to name's descriptor at
// registration time, for log correlation independent of its structural
// key. Names aliased to the same shared entry report the same handle.
func (r *Registry) Handle(name string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return uuid.Nil, false
	}
	return e.handle, true
}

// Unregister decrements name's entry refcount, removing the entry — and
// every name aliased to it — once the count reaches zero. Returns false if
// name was not registered.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byName[name]
	if !ok {
		return false
	}
	e.refCount--
	if e.refCount <= 0 {
		for _, n := range e.names {
			delete(r.byName, n)
		}
		delete(r.bySig, e.sig)
		logger.Debug("typedesc: unregistered type", logger.TypeName(name))
	}
	return true
}

// Count returns the number of distinct names currently registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// List returns the names of every currently registered type.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}
