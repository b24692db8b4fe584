package cache

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/compositor/cachecore/internal/tracing"
)

// PersistentStore is the durable counterpart of CacheManager's in-memory
// persistent-key map: it lets a PersistentKey keep resolving to the right
// OpKey across process restarts, not just across recompilations within one
// run. A nil store (the default) makes persistence purely in-memory.
type PersistentStore interface {
	Get(key PersistentKey) (OpKey, bool)
	Set(key PersistentKey, fp OpKey) error
	Delete(key PersistentKey) error
}

// CacheManager is the single entry point the executor talks to: it fans
// lookups out across the memory tier, the disk tier, and the view
// registry, decides when a disk hit should be promoted into memory, and
// enforces tier budgets after every write.
type CacheManager struct {
	memory Tier
	disk   Tier
	views  *ViewRegistry

	persistent map[PersistentKey]OpKey
	store      PersistentStore

	ctx      *Context
	recycler BufferRecycler
}

// NewCacheManager builds a manager with independent memory and disk
// tiers and an empty view registry. A PersistentStore can be attached
// afterward with SetPersistentStore to survive process restarts.
func NewCacheManager() *CacheManager {
	return &CacheManager{
		memory:     NewMemoryTier(),
		disk:       NewDiskTier(),
		views:      NewViewRegistry(),
		persistent: make(map[PersistentKey]OpKey),
	}
}

// SetPersistentStore attaches a durable backing store for persistent-key
// lookups. It must be called before Initialize to have any effect on the
// first run.
func (m *CacheManager) SetPersistentStore(store PersistentStore) {
	m.store = store
}

func (m *CacheManager) Initialize(ctx *Context, recycler BufferRecycler) error {
	m.ctx = ctx
	m.recycler = recycler
	if err := m.memory.Initialize(ctx); err != nil {
		return err
	}
	if err := m.disk.Initialize(ctx); err != nil {
		return err
	}
	m.views.Initialize()
	return nil
}

func (m *CacheManager) Deinitialize(ctx *Context) {
	m.memory.Deinitialize(ctx)
	m.disk.Deinitialize(ctx)
	m.views.Deinitialize(ctx.InterruptFlag)
}

// SetMode switches both tiers between the planning pass (Optimize, where
// NotePlannedRead builds up the prefetch queue) and execution (Exec,
// where saves, reads, and prefetching actually happen).
func (m *CacheManager) SetMode(mode Mode) {
	m.memory.SetMode(mode)
	m.disk.SetMode(mode)
}

// ViewRegistry exposes the preview/viewer cache.
func (m *CacheManager) ViewRegistry() *ViewRegistry { return m.views }

func (m *CacheManager) IsCacheable(op Operation) bool {
	return op.Cacheable()
}

func (m *CacheManager) IsCacheableAndPersistent(op Operation) bool {
	return op.Cacheable() && op.Persistent()
}

// HasAnyCache reports whether op's result is available from either tier
// or from the view registry.
func (m *CacheManager) HasAnyCache(op Operation) bool {
	fp := op.Fingerprint()
	return m.memory.Has(fp) || m.disk.Has(fp) || m.views.Has(op)
}

// NotePlannedRead registers a planned read with both tiers during the
// Optimize pass. Whichever tier actually ends up holding the buffer will
// honor "first read wins" ordering from its own queue.
func (m *CacheManager) NotePlannedRead(op Operation) {
	fp := op.Fingerprint()
	m.memory.NotePlannedRead(fp)
	m.disk.NotePlannedRead(fp)
}

// CheckPersistentOpKey resolves op's PersistentKey to the OpKey it last
// produced, if that OpKey still has a live cache entry. A stale mapping
// (its cache has since been evicted) is dropped rather than returned.
func (m *CacheManager) CheckPersistentOpKey(op Operation) (bool, OpKey) {
	if !op.Persistent() {
		return false, OpKey{}
	}
	pk := op.PersistentKey()
	fp, ok := m.lookupPersistent(pk)
	if !ok {
		return false, OpKey{}
	}
	if !m.memory.Has(fp) && !m.disk.Has(fp) {
		m.forgetPersistent(pk)
		return false, OpKey{}
	}
	return true, fp
}

func (m *CacheManager) lookupPersistent(pk PersistentKey) (OpKey, bool) {
	if fp, ok := m.persistent[pk]; ok {
		return fp, true
	}
	if m.store != nil {
		if fp, ok := m.store.Get(pk); ok {
			m.persistent[pk] = fp
			return fp, true
		}
	}
	return OpKey{}, false
}

func (m *CacheManager) rememberPersistent(pk PersistentKey, fp OpKey) {
	m.persistent[pk] = fp
	if m.store != nil {
		if err := m.store.Set(pk, fp); err != nil {
			log.Error().Err(err).Msg("cache: could not persist persistent-key mapping")
		}
	}
}

func (m *CacheManager) forgetPersistent(pk PersistentKey) {
	delete(m.persistent, pk)
	if m.store != nil {
		if err := m.store.Delete(pk); err != nil {
			log.Error().Err(err).Msg("cache: could not delete persistent-key mapping")
		}
	}
}

// Get looks up op's fingerprint across both tiers. A disk hit is promoted
// into memory before returning, so a subsequent Get for the same
// fingerprint is served from memory. When prefetchNext is true, the read
// must be the current front of the planned-read queue.
func (m *CacheManager) Get(ctx context.Context, op Operation, prefetchNext bool) ([]float32, bool, error) {
	fp := op.Fingerprint()

	if m.memory.Has(fp) {
		sctx, span := tracing.StartTierSpan(ctx, "memory", "get")
		tracing.SetOperationAttributes(sctx, fp.OpTypeID, fp.Width, fp.Height, fp.PixelType.String())
		buf, err := m.read(m.memory, fp, prefetchNext)
		tracing.SetResultAttributes(sctx, "memory", err == nil)
		if err != nil {
			tracing.RecordError(sctx, err)
			span.End()
			return nil, false, err
		}
		span.End()
		return buf, true, nil
	}

	if m.disk.Has(fp) {
		sctx, span := tracing.StartTierSpan(ctx, "disk", "get")
		tracing.SetOperationAttributes(sctx, fp.OpTypeID, fp.Width, fp.Height, fp.PixelType.String())
		buf, err := m.read(m.disk, fp, prefetchNext)
		tracing.SetResultAttributes(sctx, "disk", err == nil && buf != nil)
		if err != nil || buf == nil {
			if err != nil {
				tracing.RecordError(sctx, err)
			}
			span.End()
			return nil, false, nil
		}
		if saveErr := m.memory.Save(fp, buf, SaveOptions{}); saveErr != nil {
			log.Error().Err(saveErr).Msg("cache: could not promote disk hit into memory")
		}
		span.End()
		m.checkBudgets(ctx)
		return buf, true, nil
	}

	return nil, false, nil
}

func (m *CacheManager) read(t Tier, fp OpKey, prefetchNext bool) ([]float32, error) {
	if prefetchNext {
		return t.GetAndPrefetchNext(fp)
	}
	return t.Get(fp)
}

// GetOrNewAndPrefetchNext returns op's cached buffer if one exists
// (prefetching the planned queue's next entry along the way), or a fresh
// zero-valued buffer of the right shape for the executor to fill in.
func (m *CacheManager) GetOrNewAndPrefetchNext(ctx context.Context, op Operation) ([]float32, bool) {
	buf, hit, err := m.Get(ctx, op, true)
	if err != nil {
		log.Error().Err(err).Msg("cache: get_and_prefetch_next failed, treating as miss")
	}
	if hit && buf != nil {
		return buf, true
	}
	fp := op.Fingerprint()
	return make([]float32, fp.Width*fp.Height*fp.PixelType.Channels()), false
}

// Put stores buf as op's result in memory, records its persistent-key
// mapping if applicable, and then enforces both tiers' budgets.
func (m *CacheManager) Put(ctx context.Context, op Operation, buf []float32) error {
	fp := op.Fingerprint()
	sctx, span := tracing.StartTierSpan(ctx, "memory", "put")
	tracing.SetOperationAttributes(sctx, fp.OpTypeID, fp.Width, fp.Height, fp.PixelType.String())
	if err := m.memory.Save(fp, buf, SaveOptions{}); err != nil {
		tracing.RecordError(sctx, err)
		span.End()
		return err
	}
	span.End()
	if op.Persistent() {
		m.rememberPersistent(op.PersistentKey(), fp)
	}
	m.checkBudgets(ctx)
	return nil
}

// checkBudgets trims memory first, rehoming anything evicted onto disk
// rather than destroying it, then trims disk for real. This order is what
// makes memory pressure degrade gracefully into disk pressure instead of
// losing data outright.
func (m *CacheManager) checkBudgets(ctx context.Context) {
	mctx, mspan := tracing.StartTierSpan(ctx, "memory", "trim")
	removed, err := m.memory.TrimToBudget(false)
	if err != nil {
		tracing.RecordError(mctx, err)
		log.Error().Err(err).Msg("cache: memory tier trim failed")
	}
	mspan.End()

	for _, rc := range removed {
		opts := SaveOptions{LastSaveTime: rc.LastSaveTime, LastUseTime: rc.LastUseTime}
		if err := m.disk.Save(rc.Fingerprint, rc.Buffer, opts); err != nil {
			log.Error().Err(err).Msg("cache: could not rehome evicted buffer onto disk")
		}
	}

	dctx, dspan := tracing.StartTierSpan(ctx, "disk", "trim")
	if _, err := m.disk.TrimToBudget(true); err != nil {
		tracing.RecordError(dctx, err)
		log.Error().Err(err).Msg("cache: disk tier trim failed")
	}
	dspan.End()
}

// DeleteAllCaches drops every cached buffer from both tiers. It does not
// touch the view registry or the persistent-key map.
func (m *CacheManager) DeleteAllCaches() {
	m.memory.DeleteAll()
	m.disk.DeleteAll()
}

// Memory and Disk expose the underlying tiers for stats reporting; normal
// callers should use the manager's own methods instead.
func (m *CacheManager) Memory() Tier { return m.memory }
func (m *CacheManager) Disk() Tier   { return m.disk }
