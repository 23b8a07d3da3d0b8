package signing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type NonceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// NonceSource issues strictly increasing nonces per credential, seeded from
// the wall clock in microseconds.
type NonceSource struct {
	key           string
	last          atomic.Uint64
	lastPersisted atomic.Uint64
	store         NonceStore
	log           *zap.Logger
	persistMu     sync.Mutex
	persistWarned atomic.Bool
	now           func() time.Time
}

func NewNonceSource(venue, apiKey string) *NonceSource {
	return &NonceSource{key: NonceKey(venue, apiKey), now: time.Now}
}

func NonceKey(venue, apiKey string) string {
	id := strings.TrimSpace(apiKey)
	if len(id) > 12 {
		id = id[:12]
	}
	if id == "" {
		id = "none"
	}
	return fmt.Sprintf("nonce:%s:%s", strings.ToLower(venue), id)
}

func (n *NonceSource) SetLogger(log *zap.Logger) {
	n.log = log
}

// Attach seeds the source from store so a restart never goes backwards, then
// persists every nonce issued afterwards.
func (n *NonceSource) Attach(ctx context.Context, store NonceStore) error {
	if store == nil {
		return nil
	}
	seed := n.clock()
	if raw, ok, err := store.Get(ctx, n.key); err != nil {
		return err
	} else if ok {
		parsed, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid stored nonce %q: %w", raw, err)
		}
		if parsed > seed {
			seed = parsed
		}
	}
	if current := n.last.Load(); current > seed {
		seed = current
	}
	n.store = store
	n.last.Store(seed)
	n.lastPersisted.Store(seed)
	return nil
}

func (n *NonceSource) Next() uint64 {
	now := n.clock()
	for {
		prev := n.last.Load()
		next := now
		if prev >= next {
			next = prev + 1
		}
		if n.last.CompareAndSwap(prev, next) {
			n.persist(next)
			return next
		}
	}
}

func (n *NonceSource) Last() uint64 {
	return n.last.Load()
}

func (n *NonceSource) clock() uint64 {
	now := n.now
	if now == nil {
		now = time.Now
	}
	return uint64(now().UnixMicro())
}

func (n *NonceSource) persist(nonce uint64) {
	if n.store == nil {
		return
	}
	n.persistMu.Lock()
	defer n.persistMu.Unlock()
	if nonce <= n.lastPersisted.Load() {
		return
	}
	if err := n.store.Set(context.Background(), n.key, strconv.FormatUint(nonce, 10)); err != nil {
		if n.log != nil && n.persistWarned.CompareAndSwap(false, true) {
			n.log.Warn("nonce persistence failed", zap.String("nonce_key", n.key), zap.Error(err))
		}
		return
	}
	n.lastPersisted.Store(nonce)
	n.persistWarned.Store(false)
}
