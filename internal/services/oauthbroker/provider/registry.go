package provider

import (
	"fmt"
	"log"

	apperrors "github.com/louisbranch/oauthbroker/internal/platform/errors"
)

// ErrUnknownProvider is returned by Lookup for an unregistered provider id.
var ErrUnknownProvider = apperrors.New(apperrors.CodeProviderUnknown, "unknown provider")

// Registry holds the configured flows by provider id.
type Registry struct {
	order []string
	flows map[string]*Flow
}

// NewRegistry indexes flows by provider id. Later flows replace earlier ones
// with the same id.
func NewRegistry(flows ...*Flow) *Registry {
	r := &Registry{flows: make(map[string]*Flow, len(flows))}
	for _, flow := range flows {
		if flow == nil {
			continue
		}
		providerID := flow.Provider().ID
		if _, exists := r.flows[providerID]; !exists {
			r.order = append(r.order, providerID)
		}
		r.flows[providerID] = flow
	}
	return r
}

// Load builds flows for every definition with credentials in the environment.
// Definitions without a client id are skipped.
func Load(defs []Definition, opts FlowOptions) (*Registry, error) {
	flows := make([]*Flow, 0, len(defs))
	for _, def := range defs {
		cfg, err := LoadConfig(def)
		if err != nil {
			return nil, fmt.Errorf("load provider %s: %w", def.Provider.ID, err)
		}
		if !cfg.Enabled() {
			log.Printf("provider %s disabled: %sCLIENT_ID is not set", def.Provider.ID, def.EnvPrefix)
			continue
		}
		flow, err := NewFlow(def, cfg, opts)
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	return NewRegistry(flows...), nil
}

// Lookup returns the flow for providerID.
func (r *Registry) Lookup(providerID string) (*Flow, error) {
	flow, ok := r.flows[providerID]
	if !ok {
		return nil, apperrors.Errorf(apperrors.CodeProviderUnknown, "unknown provider %q", providerID).
			With("Provider", providerID)
	}
	return flow, nil
}

// Flows returns the flows in registration order.
func (r *Registry) Flows() []*Flow {
	out := make([]*Flow, 0, len(r.order))
	for _, providerID := range r.order {
		out = append(out, r.flows[providerID])
	}
	return out
}
