package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sipeed/picobot/pkg/callback"
)

// Registry maps command names, aliases and callback namespaces to handlers.
// It is built once at startup and never modified afterwards.
type Registry struct {
	defs   []Definition
	byName map[string]Handler
	byNS   map[string]Handler
	codec  *callback.Codec
}

// registryAware handlers receive the finished registry, e.g. to list it.
type registryAware interface {
	bindRegistry(r *Registry)
}

func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]Handler),
		byNS:   make(map[string]Handler),
		codec:  callback.NewCodec(),
	}

	for _, h := range handlers {
		def := Definition{
			Name:        strings.ToLower(h.Name()),
			Description: h.Description(),
			Handler:     h,
		}
		if def.Name == "" {
			return nil, fmt.Errorf("commands: handler %T has no name", h)
		}
		if a, ok := h.(Aliased); ok {
			for _, alias := range a.Aliases() {
				def.Aliases = append(def.Aliases, strings.ToLower(alias))
			}
		}
		if d, ok := h.(Documented); ok {
			def.Usage = d.Usage()
		}

		for _, name := range append([]string{def.Name}, def.Aliases...) {
			if _, dup := r.byName[name]; dup {
				return nil, fmt.Errorf("commands: duplicate command %q", name)
			}
			r.byName[name] = h
		}

		if n, ok := h.(Namespaced); ok {
			ns, codes := n.Namespace()
			if err := r.codec.Register(ns, codes...); err != nil {
				return nil, fmt.Errorf("commands: %s: %w", def.Name, err)
			}
			r.byNS[ns] = h
		}

		r.defs = append(r.defs, def)
	}

	sort.Slice(r.defs, func(i, j int) bool { return r.defs[i].Name < r.defs[j].Name })

	for _, h := range handlers {
		if ra, ok := h.(registryAware); ok {
			ra.bindRegistry(r)
		}
	}
	return r, nil
}

// Lookup finds a handler by name or alias, case-insensitively.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.byName[strings.ToLower(name)]
	return h, ok
}

// ByNamespace finds the handler owning a callback namespace.
func (r *Registry) ByNamespace(ns string) (Handler, bool) {
	h, ok := r.byNS[ns]
	return h, ok
}

// Codec decodes callback tokens for every registered namespace.
func (r *Registry) Codec() *callback.Codec {
	return r.codec
}

// Definitions returns the registered commands sorted by name.
func (r *Registry) Definitions() []Definition {
	return append([]Definition(nil), r.defs...)
}
