package strategy

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fluxtrade/fluxtrader/internal/config"
)

// Instance is a registered strategy bound to a set of symbols.
type Instance struct {
	ID      string
	Name    string
	Kind    Kind
	Symbols []string
	Params  Params
	Active  bool

	impl Strategy
}

// Evaluate runs the underlying strategy over a window.
func (in *Instance) Evaluate(w Window) Signal { return in.impl.Evaluate(w) }

// Lookback returns the minimum window the instance needs.
func (in *Instance) Lookback() int { return in.impl.Lookback() }

// Spec describes a strategy instance prior to registration. Exactly one
// params field matching Kind may be set; nil means schema defaults.
type Spec struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Kind    Kind     `yaml:"kind"`
	Symbols []string `yaml:"symbols"`
	Active  *bool    `yaml:"active,omitempty"`

	RSIPullback       *RSIPullbackParams       `yaml:"rsi_pullback,omitempty"`
	QuantumOscillator *QuantumOscillatorParams `yaml:"quantum_oscillator,omitempty"`
	NeuralConfidence  *NeuralConfidenceParams  `yaml:"neural_confidence,omitempty"`
	BollingerBreakout *BollingerBreakoutParams `yaml:"bollinger_breakout,omitempty"`
}

// params extracts the kind-matching parameter value, falling back to
// the kind's schema defaults.
func (sp Spec) params() (Params, error) {
	switch sp.Kind {
	case KindRSIPullback:
		if sp.RSIPullback != nil {
			return *sp.RSIPullback, nil
		}
	case KindQuantumOscillator:
		if sp.QuantumOscillator != nil {
			return *sp.QuantumOscillator, nil
		}
	case KindNeuralConfidence:
		if sp.NeuralConfidence != nil {
			return *sp.NeuralConfidence, nil
		}
	case KindBollingerBreakout:
		if sp.BollingerBreakout != nil {
			return *sp.BollingerBreakout, nil
		}
	default:
		return nil, fmt.Errorf("unknown strategy kind %q", sp.Kind)
	}
	return defaultParams(sp.Kind)
}

// Registry owns strategy instances. Registration validates and clamps
// parameters; lookups by symbol drive the execution engine.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Instance
	bySymbol map[string][]*Instance
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*Instance),
		bySymbol: make(map[string][]*Instance),
		logger:   config.NewLogger("strategy_registry"),
	}
}

// Register validates a spec, clamps out-of-range parameters with a
// logged warning per field, and installs the instance. Re-registering
// an existing id replaces the previous instance.
func (r *Registry) Register(sp Spec) (*Instance, error) {
	var errs ValidationErrors
	if sp.ID == "" {
		errs = append(errs, ValidationError{Field: "id", Message: "strategy id is required"})
	}
	if len(sp.Symbols) == 0 {
		errs = append(errs, ValidationError{Field: "symbols", Message: "at least one symbol is required"})
	}
	params, err := sp.params()
	if err != nil {
		errs = append(errs, ValidationError{Field: "kind", Message: err.Error()})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	params, warnings := params.Normalize()
	for _, warning := range warnings {
		r.logger.Warn().
			Str("strategy_id", sp.ID).
			Str("kind", string(sp.Kind)).
			Msg(warning)
	}

	impl, err := New(sp.ID, sp.Kind, params)
	if err != nil {
		return nil, err
	}

	active := true
	if sp.Active != nil {
		active = *sp.Active
	}
	name := sp.Name
	if name == "" {
		name = sp.ID
	}

	inst := &Instance{
		ID:      sp.ID,
		Name:    name,
		Kind:    sp.Kind,
		Symbols: append([]string(nil), sp.Symbols...),
		Params:  params,
		Active:  active,
		impl:    impl,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, exists := r.byID[sp.ID]; exists {
		r.removeFromSymbolsLocked(prev)
		r.logger.Info().Str("strategy_id", sp.ID).Msg("Replacing registered strategy")
	}
	r.byID[sp.ID] = inst
	for _, sym := range inst.Symbols {
		r.bySymbol[sym] = append(r.bySymbol[sym], inst)
	}

	r.logger.Info().
		Str("strategy_id", inst.ID).
		Str("kind", string(inst.Kind)).
		Strs("symbols", inst.Symbols).
		Bool("active", inst.Active).
		Msg("Strategy registered")
	return inst, nil
}

// Unregister removes a strategy by id. Unknown ids are no-ops.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, exists := r.byID[id]
	if !exists {
		return
	}
	delete(r.byID, id)
	r.removeFromSymbolsLocked(inst)
}

func (r *Registry) removeFromSymbolsLocked(inst *Instance) {
	for _, sym := range inst.Symbols {
		list := r.bySymbol[sym]
		for i, cand := range list {
			if cand.ID == inst.ID {
				r.bySymbol[sym] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// Get returns a registered instance by id.
func (r *Registry) Get(id string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.byID[id]
	return inst, ok
}

// ForSymbol returns the active instances registered for a symbol.
func (r *Registry) ForSymbol(symbol string) []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Instance
	for _, inst := range r.bySymbol[symbol] {
		if inst.Active {
			out = append(out, inst)
		}
	}
	return out
}

// All returns every registered instance.
func (r *Registry) All() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, 0, len(r.byID))
	for _, inst := range r.byID {
		out = append(out, inst)
	}
	return out
}

// Symbols returns the distinct symbols with at least one active strategy.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for sym, list := range r.bySymbol {
		for _, inst := range list {
			if inst.Active {
				out = append(out, sym)
				break
			}
		}
	}
	return out
}

// MaxLookback returns the largest window any active strategy for the
// symbol needs. Zero when no strategies are registered.
func (r *Registry) MaxLookback(symbol string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	max := 0
	for _, inst := range r.bySymbol[symbol] {
		if inst.Active && inst.Lookback() > max {
			max = inst.Lookback()
		}
	}
	return max
}
