package cache

// MemoryTier holds buffers in process memory. Gets return the buffer it
// owns directly (a borrow: callers must not mutate or retain it past their
// use), so saves and evictions happen synchronously with no background
// threading at all.
type MemoryTier struct {
	state *tierState
	bufs  map[OpKey][]float32
}

// NewMemoryTier creates an empty memory tier.
func NewMemoryTier() *MemoryTier {
	return &MemoryTier{state: newTierState(), bufs: make(map[OpKey][]float32)}
}

func (m *MemoryTier) Initialize(ctx *Context) error {
	m.state.resetForInitialize(ctx.MemoryBudgetBytes)
	return nil
}

func (m *MemoryTier) Deinitialize(ctx *Context) {
	m.state.planned = nil
	m.state.plannedSet = make(map[OpKey]struct{})
}

func (m *MemoryTier) SetMode(mode Mode) {
	m.state.mode = mode
	// Memory never prefetches; nothing to kick off on entering Exec.
}

func (m *MemoryTier) Has(fp OpKey) bool {
	return m.state.lru.Contains(fp)
}

func (m *MemoryTier) NotePlannedRead(fp OpKey) {
	m.state.notePlannedRead(fp)
}

func (m *MemoryTier) Save(fp OpKey, buf []float32, opts SaveOptions) error {
	if m.state.mode != ModeExec {
		violate("memory tier Save called outside Exec mode")
	}
	m.state.loadInfo(fp, opts.LastSaveTime, opts.LastUseTime)
	m.bufs[fp] = buf
	if opts.OnComplete != nil {
		opts.OnComplete()
	}
	return nil
}

func (m *MemoryTier) Get(fp OpKey) ([]float32, error) {
	if m.state.mode != ModeExec {
		violate("memory tier Get called outside Exec mode")
	}
	if _, ok := m.state.touch(fp); !ok {
		return nil, ErrMiss
	}
	return m.bufs[fp], nil
}

func (m *MemoryTier) GetAndPrefetchNext(fp OpKey) ([]float32, error) {
	m.state.popPlanned(fp)
	return m.Get(fp)
}

func (m *MemoryTier) TrimToBudget(destroy bool) ([]RemovedCache, error) {
	var removed []RemovedCache
	m.state.trim(func(info *CacheInfo) {
		buf := m.bufs[info.Fingerprint]
		delete(m.bufs, info.Fingerprint)
		if !destroy {
			removed = append(removed, RemovedCache{
				Buffer:       buf,
				Fingerprint:  info.Fingerprint,
				LastUseTime:  info.LastUseTime,
				LastSaveTime: info.LastSaveTime,
			})
		}
	})
	return removed, nil
}

func (m *MemoryTier) DeleteAll() {
	m.bufs = make(map[OpKey][]float32)
	m.state.reset()
}

func (m *MemoryTier) ReturnsOwnedCopy() bool { return false }
func (m *MemoryTier) CurrentBytes() int64    { return m.state.currentBytes }
func (m *MemoryTier) Budget() int64          { return m.state.budget }
func (m *MemoryTier) Len() int               { return m.state.lru.Len() }

var _ Tier = (*MemoryTier)(nil)
