package whaleex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultIDExpiry = 5 * time.Minute
	DefaultIDMargin = 30 * time.Second
)

// Batch is one response from the id issuing endpoint. Remark is passed back
// on the next fetch so the venue does not issue the same ids again.
type Batch struct {
	IDs    []uint64
	Remark string
}

type FetchFunc func(ctx context.Context, remark string) (Batch, error)

type PoolOptions struct {
	Expiry time.Duration
	Margin time.Duration
	// OnRefill is called after every successful fetch with the number of new
	// ids.
	OnRefill func(n int)
}

// IdentifierPool hands out venue-issued order ids. Ids are only valid for a
// limited time after issue, so a batch older than Expiry-Margin is dropped and
// refetched before anything is served from it.
type IdentifierPool struct {
	mu       sync.Mutex
	fetch    FetchFunc
	opts     PoolOptions
	ids      []uint64
	remark   string
	filledAt time.Time
	seen     map[uint64]struct{}
	now      func() time.Time
}

func NewIdentifierPool(fetch FetchFunc, opts PoolOptions) *IdentifierPool {
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultIDExpiry
	}
	if opts.Margin < 0 || opts.Margin >= opts.Expiry {
		opts.Margin = 0
	}
	return &IdentifierPool{
		fetch: fetch,
		opts:  opts,
		seen:  make(map[uint64]struct{}),
		now:   time.Now,
	}
}

// Pop returns an id that has never been returned before by this pool. It
// fetches first when the pool is empty or stale; a failed fetch is returned.
func (p *IdentifierPool) Pop(ctx context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ids) > 0 && p.stale() {
		p.ids = nil
	}
	if len(p.ids) == 0 {
		if err := p.refill(ctx); err != nil {
			return 0, err
		}
	}
	id := p.ids[0]
	p.ids = p.ids[1:]
	p.seen[id] = struct{}{}
	return id, nil
}

func (p *IdentifierPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

func (p *IdentifierPool) stale() bool {
	return p.now().Sub(p.filledAt) >= p.opts.Expiry-p.opts.Margin
}

func (p *IdentifierPool) refill(ctx context.Context) error {
	if p.fetch == nil {
		return errors.New("whaleex id pool has no fetch function")
	}
	batch, err := p.fetch(ctx, p.remark)
	if err != nil {
		return fmt.Errorf("fetch whaleex order ids: %w", err)
	}
	fresh := make([]uint64, 0, len(batch.IDs))
	queued := make(map[uint64]struct{}, len(batch.IDs))
	for _, id := range batch.IDs {
		if _, used := p.seen[id]; used {
			continue
		}
		if _, dup := queued[id]; dup {
			continue
		}
		queued[id] = struct{}{}
		fresh = append(fresh, id)
	}
	if batch.Remark != "" {
		p.remark = batch.Remark
	}
	if len(fresh) == 0 {
		return fmt.Errorf("whaleex returned no unused order ids (%d issued)", len(batch.IDs))
	}
	p.ids = fresh
	p.filledAt = p.now()
	if p.opts.OnRefill != nil {
		p.opts.OnRefill(len(fresh))
	}
	return nil
}
