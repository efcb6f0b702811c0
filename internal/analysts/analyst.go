// Package analysts provides the analyst evaluators and their concurrent runner.
package analysts

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
)

// Analyst evaluates one ticker and produces a directional signal.
// Implementations are black boxes to the rest of the pipeline: they either
// return a signal or fail, and a failure never carries more meaning than
// "this analyst's opinion is missing".
type Analyst interface {
	// Name returns the analyst's stable identifier.
	Name() string

	// Evaluate produces a signal for the ticker as of endDate (YYYY-MM-DD).
	Evaluate(ctx context.Context, ticker, endDate string) (*domain.Signal, error)
}

// Registry holds the available analysts by identifier.
type Registry struct {
	analysts map[string]Analyst
	order    []string
	log      zerolog.Logger
}

// NewRegistry creates an empty analyst registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		analysts: make(map[string]Analyst),
		log:      log.With().Str("component", "analyst_registry").Logger(),
	}
}

// Register adds an analyst. Registration order is preserved for selection.
func (r *Registry) Register(a Analyst) {
	if _, exists := r.analysts[a.Name()]; exists {
		r.log.Warn().Str("analyst", a.Name()).Msg("Analyst already registered, replacing")
	} else {
		r.order = append(r.order, a.Name())
	}
	r.analysts[a.Name()] = a
}

// Select returns the analysts for the given identifiers, or all registered
// analysts when names is empty. Unknown identifiers are an error so a typo
// in configuration fails at startup rather than silently shrinking coverage.
func (r *Registry) Select(names []string) ([]Analyst, error) {
	if len(names) == 0 {
		all := make([]Analyst, 0, len(r.order))
		for _, name := range r.order {
			all = append(all, r.analysts[name])
		}
		return all, nil
	}

	selected := make([]Analyst, 0, len(names))
	for _, name := range names {
		a, ok := r.analysts[name]
		if !ok {
			return nil, &domain.ConfigError{
				Field:  "SELECTED_ANALYSTS",
				Reason: fmt.Sprintf("unknown analyst %q", name),
			}
		}
		selected = append(selected, a)
	}
	return selected, nil
}

// Names returns the identifiers of all registered analysts in order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// DefaultRegistry builds the registry with the four built-in analysts.
func DefaultRegistry(data domain.DataClient, log zerolog.Logger) *Registry {
	r := NewRegistry(log)
	r.Register(NewTechnicalAnalyst(data, log))
	r.Register(NewFundamentalsAnalyst(data, log))
	r.Register(NewSentimentAnalyst(data, log))
	r.Register(NewValuationAnalyst(data, log))
	return r
}
