package registry

import (
	"fmt"
	"sort"
)

type Component interface {
	any
}

type Arguments interface {
	any
}

type ComponentCreator[C Component, A Arguments] func(args A) (C, error)

type Registry[C Component, A Arguments] struct {
	components map[string]ComponentCreator[C, A]
}

func NewRegistry[C Component, A Arguments]() *Registry[C, A] {
	return &Registry[C, A]{
		components: make(map[string]ComponentCreator[C, A]),
	}
}

func (r *Registry[C, A]) Register(id string, creator ComponentCreator[C, A]) {
	if _, ok := r.components[id]; ok {
		panic("component already registered: " + id)
	}
	r.components[id] = creator
}

func (r *Registry[C, A]) New(id string, args A) (C, error) {
	creator, ok := r.components[id]
	if !ok {
		var component C
		return component, fmt.Errorf("component not found: %s", id)
	}
	return creator(args)
}

func (r *Registry[C, A]) IDs() []string {
	ids := make([]string, 0, len(r.components))
	for id := range r.components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
