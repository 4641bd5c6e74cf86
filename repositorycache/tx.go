package repositorycache

import (
	"context"
	"sync"

	"github.com/uptrace/bun"
)

type pendingKey struct{}

// pending holds the invalidations of writes made inside a transaction.
type pending struct {
	mu  sync.Mutex
	fns []func(context.Context)
}

func (p *pending) add(fns ...func(context.Context)) {
	p.mu.Lock()
	p.fns = append(p.fns, fns...)
	p.mu.Unlock()
}

func (p *pending) drain() []func(context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fns := p.fns
	p.fns = nil
	return fns
}

// RunInTx runs fn in a transaction on db. Invalidations of the *Tx writes
// made with the context handed to fn are held until the transaction
// commits; a rollback discards them. Nested calls open a savepoint and pass
// their invalidations to the enclosing call when the savepoint commits.
func RunInTx(ctx context.Context, db bun.IDB, fn func(ctx context.Context, tx bun.Tx) error) error {
	parent, nested := ctx.Value(pendingKey{}).(*pending)
	p := &pending{}
	if err := db.RunInTx(context.WithValue(ctx, pendingKey{}, p), nil, fn); err != nil {
		return err
	}
	if nested {
		parent.add(p.drain()...)
		return nil
	}
	for _, f := range p.drain() {
		f(ctx)
	}
	return nil
}

// afterCommit runs f now, or once the transaction of ctx commits when ctx
// comes from RunInTx.
func afterCommit(ctx context.Context, f func(context.Context)) {
	if p, ok := ctx.Value(pendingKey{}).(*pending); ok {
		p.add(f)
		return
	}
	f(ctx)
}
