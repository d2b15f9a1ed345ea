package logger

import "sync"

// registry holds explicitly registered loggers and caches the component
// loggers derived from the global one.
var registry = &componentRegistry{
	named:   make(map[string]*Logger),
	derived: make(map[string]*Logger),
}

type componentRegistry struct {
	mu      sync.Mutex
	named   map[string]*Logger
	derived map[string]*Logger
}

func (r *componentRegistry) resetDerived() {
	r.mu.Lock()
	clear(r.derived)
	r.mu.Unlock()
}

// Register makes Get(name) return l until Unregister is called.
func Register(name string, l *Logger) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.named[name] = l
}

// Unregister removes a logger added with Register.
func Unregister(name string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.named, name)
}

// Get returns the logger registered under name or, failing that, the global
// logger tagged with name as its component.
func Get(name string) *Logger {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if l, ok := registry.named[name]; ok {
		return l
	}
	if l, ok := registry.derived[name]; ok {
		return l
	}
	l := Global().WithComponent(name)
	registry.derived[name] = l
	return l
}
