package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Generations reads and bumps scope counters on a Backend.
type Generations struct {
	backend Backend
}

func NewGenerations(b Backend) *Generations {
	return &Generations{backend: b}
}

// Current returns the generation of scope. A scope that was never bumped is
// at generation zero.
func (g *Generations) Current(ctx context.Context, scope Scope) (int64, error) {
	key := GenerationKey(scope)
	raw, ok, err := g.backend.Get(ctx, key)
	if err != nil {
		return 0, Unavailable("generation", key, err)
	}
	if !ok {
		return 0, nil
	}

	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("generation %s: malformed counter %q: %w", scope, raw, err)
	}
	return n, nil
}

// Bump advances the generation of scope with a single atomic increment and
// returns the new value.
func (g *Generations) Bump(ctx context.Context, scope Scope) (int64, error) {
	key := GenerationKey(scope)
	n, err := g.backend.Incr(ctx, key)
	if err != nil {
		return 0, Unavailable("bump", key, err)
	}
	return n, nil
}

// KeyFor derives the query key of a page under the current generation.
func (g *Generations) KeyFor(ctx context.Context, scope Scope, signature string, page int) (string, error) {
	gen, err := g.Current(ctx, scope)
	if err != nil {
		return "", err
	}
	return Key(scope, gen, signature, page), nil
}
