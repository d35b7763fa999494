// Package handler implements the four specialist task handlers and the
// registry the executor dispatches through.
package handler

import (
	"github.com/tanpawarit/co-teacher-agent/agent/contract"
)

// Registry maps categories to handlers. Built eagerly at startup so the
// full handler set is inspectable; immutable afterwards.
type Registry struct {
	handlers map[contract.Category]contract.TaskHandler
}

func NewRegistry(handlers ...contract.TaskHandler) *Registry {
	m := make(map[contract.Category]contract.TaskHandler, len(handlers))
	for _, h := range handlers {
		m[h.Category()] = h
	}
	return &Registry{handlers: m}
}

func (r *Registry) Handler(category contract.Category) (contract.TaskHandler, bool) {
	h, ok := r.handlers[category]
	return h, ok
}

// Categories returns every registered category.
func (r *Registry) Categories() []contract.Category {
	out := make([]contract.Category, 0, len(r.handlers))
	for _, c := range contract.AllCategories() {
		if _, ok := r.handlers[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
