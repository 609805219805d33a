package uci

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// StartFunc creates a configured adapter. Start is used when nil.
type StartFunc func(ctx context.Context, cfg Config, collab Collaborators) (*Adapter, error)

type PoolConfig struct {
	PerConfigCapacity int
	Start             StartFunc
}

// Pool keeps warm engine adapters grouped by their engine configuration.
// A leased adapter reports to the collaborators given to Acquire until it
// is released.
type Pool struct {
	start             StartFunc
	perConfigCapacity int

	mu      sync.Mutex
	closed  bool
	buckets map[string]*adapterBucket
	leases  map[*Adapter]*lease
}

type lease struct {
	bucket *adapterBucket
	board  *switchboard
}

var ErrPoolClosed = errors.New("uci: pool closed")

func NewPool(cfg PoolConfig) *Pool {
	capacity := cfg.PerConfigCapacity
	if capacity <= 0 {
		capacity = defaultPerConfigCapacity()
	}
	start := cfg.Start
	if start == nil {
		start = Start
	}
	return &Pool{
		start:             start,
		perConfigCapacity: capacity,
		buckets:           make(map[string]*adapterBucket),
		leases:            make(map[*Adapter]*lease),
	}
}

// Acquire returns an idle adapter for cfg or starts a new one, waiting for a
// release when the bucket is full.
func (p *Pool) Acquire(ctx context.Context, cfg Config, collab Collaborators) (*Adapter, error) {
	bucket, err := p.getBucket(cfg)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case a := <-bucket.idle:
			if p.revive(ctx, a) {
				return p.lease(a, collab), nil
			}
			continue
		default:
		}

		a, err := p.create(ctx, bucket)
		if err == nil {
			return p.lease(a, collab), nil
		}
		if !errors.Is(err, errBucketAtCapacity) {
			return nil, err
		}

		select {
		case a := <-bucket.idle:
			if p.revive(ctx, a) {
				return p.lease(a, collab), nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release detaches the adapter from its lease. A non-nil err or a dead
// session closes the adapter instead of returning it to the pool.
func (p *Pool) Release(a *Adapter, err error) {
	if a == nil {
		return
	}
	p.mu.Lock()
	l, ok := p.leases[a]
	closed := p.closed
	p.mu.Unlock()
	if !ok {
		_ = a.Close()
		return
	}
	l.board.bind(Collaborators{})

	if err != nil || closed || !a.Running() || !l.bucket.put(a) {
		p.discard(a)
	}
}

// Close shuts down idle adapters. Leased adapters close on Release.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	buckets := make([]*adapterBucket, 0, len(p.buckets))
	for _, b := range p.buckets {
		buckets = append(buckets, b)
	}
	p.mu.Unlock()

	var errs []error
	for _, bucket := range buckets {
	drain:
		for {
			select {
			case a := <-bucket.idle:
				if err := p.discard(a); err != nil {
					errs = append(errs, err)
				}
			default:
				break drain
			}
		}
	}
	return errors.Join(errs...)
}

// Stats returns the live adapter count per configuration key.
func (p *Pool) Stats() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.buckets))
	for key, b := range p.buckets {
		out[key] = b.count()
	}
	return out
}

func (p *Pool) create(ctx context.Context, bucket *adapterBucket) (*Adapter, error) {
	if !bucket.reserve() {
		return nil, errBucketAtCapacity
	}
	board := newSwitchboard()
	a, err := p.start(ctx, bucket.cfg, board.collaborators())
	if err != nil {
		bucket.decrement()
		return nil, fmt.Errorf("start pooled engine: %w", err)
	}
	p.mu.Lock()
	p.leases[a] = &lease{bucket: bucket, board: board}
	p.mu.Unlock()
	return a, nil
}

func (p *Pool) lease(a *Adapter, collab Collaborators) *Adapter {
	p.mu.Lock()
	l := p.leases[a]
	p.mu.Unlock()
	l.board.bind(collab)
	return a
}

// revive checks an idle adapter before handing it out again.
func (p *Pool) revive(ctx context.Context, a *Adapter) bool {
	if a == nil {
		return false
	}
	if !a.Running() {
		p.discard(a)
		return false
	}
	if err := a.WaitUntilReady(ctx); err != nil {
		p.discard(a)
		return false
	}
	return true
}

func (p *Pool) discard(a *Adapter) error {
	p.mu.Lock()
	l, ok := p.leases[a]
	delete(p.leases, a)
	p.mu.Unlock()
	err := a.Close()
	if ok {
		l.bucket.decrement()
	}
	return err
}

func (p *Pool) getBucket(cfg Config) (*adapterBucket, error) {
	key := configKey(cfg)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	bucket, ok := p.buckets[key]
	if !ok {
		bucket = newAdapterBucket(cfg, p.perConfigCapacity)
		p.buckets[key] = bucket
	}
	return bucket, nil
}

type adapterBucket struct {
	cfg      Config
	capacity int

	mu    sync.Mutex
	total int
	idle  chan *Adapter
}

var errBucketAtCapacity = errors.New("adapter bucket at capacity")

func newAdapterBucket(cfg Config, capacity int) *adapterBucket {
	if capacity <= 0 {
		capacity = 1
	}
	return &adapterBucket{
		cfg:      cfg,
		capacity: capacity,
		idle:     make(chan *Adapter, capacity),
	}
}

func (b *adapterBucket) reserve() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.total >= b.capacity {
		return false
	}
	b.total++
	return true
}

func (b *adapterBucket) put(a *Adapter) bool {
	select {
	case b.idle <- a:
		return true
	default:
		return false
	}
}

func (b *adapterBucket) decrement() {
	b.mu.Lock()
	if b.total > 0 {
		b.total--
	}
	b.mu.Unlock()
}

func (b *adapterBucket) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func configKey(cfg Config) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "path=%s|args=%s|thr=%d|hash=%d|ponder=%t",
		cfg.Spawn.Path, strings.Join(cfg.Spawn.Args, " "), cfg.Threads, cfg.HashMB, !cfg.DisablePonder)
	names := make([]string, 0, len(cfg.ExtraOptions))
	for name := range cfg.ExtraOptions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "|%s=%s", name, cfg.ExtraOptions[name])
	}
	return sb.String()
}

func defaultPerConfigCapacity() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}

// switchboard forwards adapter callbacks to the current lease holder.
type switchboard struct {
	cur atomic.Pointer[Collaborators]
}

func newSwitchboard() *switchboard {
	s := &switchboard{}
	s.bind(Collaborators{})
	return s
}

func (s *switchboard) bind(c Collaborators) {
	c = c.withDefaults()
	s.cur.Store(&c)
}

func (s *switchboard) load() Collaborators { return *s.cur.Load() }

func (s *switchboard) collaborators() Collaborators {
	return Collaborators{Host: s, Clock: s, Observer: s}
}

func (s *switchboard) StartGame(player, engineName string, tc time.Duration) {
	s.load().Host.StartGame(player, engineName, tc)
}

func (s *switchboard) RecordLastMove(move string) { s.load().Host.RecordLastMove(move) }

func (s *switchboard) DecodePromotionChar(c byte) PieceType {
	return s.load().Host.DecodePromotionChar(c)
}

func (s *switchboard) StartClock(side Side)  { s.load().Clock.StartClock(side) }
func (s *switchboard) SwitchClock(side Side) { s.load().Clock.SwitchClock(side) }

func (s *switchboard) RemainingTime(side Side) time.Duration {
	return s.load().Clock.RemainingTime(side)
}

func (s *switchboard) EngineMove(ev EngineMove) { s.load().Observer.EngineMove(ev) }
func (s *switchboard) NoMove()                  { s.load().Observer.NoMove() }
func (s *switchboard) EngineFailed(err error)   { s.load().Observer.EngineFailed(err) }
