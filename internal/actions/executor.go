// Package actions defines the response side of an automation: executors that
// carry out one response interaction kind each. Executors must tolerate being
// invoked more than once with the same logical content; the detector
// guarantees at-least-once delivery, not exactly-once, and a reposted chat
// message is an accepted trade-off.
package actions

import (
	"context"
	"fmt"
	"sync"

	"streamwire/internal/storage"
)

// Content is the rendered, human-readable payload handed to an executor.
type Content struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Executor performs one response interaction kind. The credential is the
// automation's response credential and supplies whatever endpoint or token
// the action needs.
type Executor interface {
	Kind() string
	Execute(ctx context.Context, content Content, cred *storage.Credential) error
}

// Registry maps response interaction kinds to executors.
type Registry struct {
	executors map[string]Executor
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

func (r *Registry) Register(executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[executor.Kind()] = executor
}

func (r *Registry) Get(kind string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, exists := r.executors[kind]
	if !exists {
		return nil, fmt.Errorf("executor %s not registered", kind)
	}
	return executor, nil
}

func (r *Registry) IsRegistered(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.executors[kind]
	return exists
}

// Kinds returns the registered response interaction kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.executors))
	for kind := range r.executors {
		kinds = append(kinds, kind)
	}
	return kinds
}
