package controller

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/anicoll/pool-integration/internal/pkg/config"
	"github.com/anicoll/pool-integration/internal/pkg/model"
)

var (
	ErrAmbiguousRole      = errors.New("more than one circuit has the same function")
	ErrUnknownRoleCircuit = errors.New("role override does not match a circuit in use")
)

// roles holds the circuit numbers backing the pool and spa. Zero means the
// role has no circuit.
type roles struct {
	pool int
	spa  int
}

func (r roles) circuit(fn model.CircuitFunction) int {
	if fn == model.CircuitFunctionSpa {
		return r.spa
	}
	return r.pool
}

func resolveRoles(circuits []model.CircuitInfo, p *config.Params) (roles, error) {
	pool, err := resolveRole(circuits, model.CircuitFunctionPool, p.PoolCircuit)
	if err != nil {
		return roles{}, err
	}
	spa, err := resolveRole(circuits, model.CircuitFunctionSpa, p.SpaCircuit)
	if err != nil {
		return roles{}, err
	}
	return roles{pool: pool, spa: spa}, nil
}

func resolveRole(circuits []model.CircuitInfo, fn model.CircuitFunction, override int) (int, error) {
	if override != 0 {
		if _, ok := lo.Find(circuits, func(c model.CircuitInfo) bool { return c.Number == override }); !ok {
			return 0, fmt.Errorf("%w: %s circuit %d", ErrUnknownRoleCircuit, fn, override)
		}
		return override, nil
	}

	matches := lo.Filter(circuits, func(c model.CircuitInfo, _ int) bool {
		return strings.EqualFold(string(c.CircuitFunction), string(fn))
	})
	switch len(matches) {
	case 0:
		return 0, nil
	case 1:
		return matches[0].Number, nil
	default:
		numbers := lo.Map(matches, func(c model.CircuitInfo, _ int) int { return c.Number })
		return 0, fmt.Errorf("%w: %s circuits %v, set %s_circuit", ErrAmbiguousRole, fn, numbers, strings.ToLower(string(fn)))
	}
}
