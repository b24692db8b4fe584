package cache

import "github.com/hashicorp/golang-lru/v2/simplelru"

// Mode reflects which phase the surrounding graph execution is in. Tiers
// only accept saves and reads while in Exec; Optimize is the planning pass
// where note_planned_read builds up the prefetch queue.
type Mode int

const (
	ModeOptimize Mode = iota
	ModeExec
)

// unboundedEntries sizes the underlying LRU large enough that it never
// evicts on its own Add(); eviction is driven entirely by TrimToBudget
// walking entries oldest-first until the tier's byte budget is satisfied.
const unboundedEntries = 1 << 30

// SaveOptions carries the optional parts of a Save call: a completion
// callback and explicit timestamps (used when rehoming a RemovedCache from
// one tier to another, so the entry keeps its original use/save history).
type SaveOptions struct {
	OnComplete   func()
	LastSaveTime int64
	LastUseTime  int64
}

// Tier is a single storage backend for cached buffers: memory or disk.
// All methods except the background completion of Save/prefetch are meant
// to be called from a single executor goroutine; see DiskTier for the
// concurrency discipline that keeps the asynchronous I/O threads from
// racing that goroutine.
type Tier interface {
	Initialize(ctx *Context) error
	Deinitialize(ctx *Context)
	SetMode(mode Mode)

	Has(fp OpKey) bool
	NotePlannedRead(fp OpKey)
	Save(fp OpKey, buf []float32, opts SaveOptions) error
	Get(fp OpKey) ([]float32, error)
	GetAndPrefetchNext(fp OpKey) ([]float32, error)

	// TrimToBudget evicts oldest-by-use entries until current usage is at
	// or below budget, always leaving at least one entry behind. When
	// destroy is false the evicted buffers are returned rather than freed;
	// tiers that cannot support that (ErrUnsupported) must say so.
	TrimToBudget(destroy bool) ([]RemovedCache, error)
	DeleteAll()

	ReturnsOwnedCopy() bool
	CurrentBytes() int64
	Budget() int64
	Len() int
}

// tierState is the bookkeeping shared by MemoryTier and DiskTier: the
// ordered set of known entries, the planned-read queue, and the running
// byte total against budget. It is only ever touched by the executor
// goroutine; background I/O goroutines never reach into it directly.
type tierState struct {
	lru          *simplelru.LRU[OpKey, *CacheInfo]
	planned      []OpKey
	plannedSet   map[OpKey]struct{}
	currentBytes int64
	budget       int64
	mode         Mode
}

func newTierState() *tierState {
	l, _ := simplelru.NewLRU[OpKey, *CacheInfo](unboundedEntries, nil)
	return &tierState{lru: l, plannedSet: make(map[OpKey]struct{})}
}

func (ts *tierState) resetForInitialize(budget int64) {
	ts.budget = budget
	ts.mode = ModeOptimize
	ts.planned = nil
	ts.plannedSet = make(map[OpKey]struct{})
}

func (ts *tierState) notePlannedRead(fp OpKey) {
	if _, ok := ts.plannedSet[fp]; ok {
		return
	}
	ts.plannedSet[fp] = struct{}{}
	ts.planned = append(ts.planned, fp)
}

// popPlanned pops fp from the front of the planned queue; it panics with
// ErrContractViolation if fp is not at the front, mirroring the assertion
// the original executor relied on to guarantee prefetch order.
func (ts *tierState) popPlanned(fp OpKey) {
	if len(ts.planned) == 0 || ts.planned[0] != fp {
		violate("get_and_prefetch_next called out of planned order")
	}
	ts.planned = ts.planned[1:]
}

func (ts *tierState) peekPlanned() (OpKey, bool) {
	if len(ts.planned) == 0 {
		return OpKey{}, false
	}
	return ts.planned[0], true
}

// loadInfo creates or refreshes the CacheInfo for fp. Zero or negative
// timestamps default to now, matching the rule that a save or a directory
// scan without an explicit time stamps the entry as current.
func (ts *tierState) loadInfo(fp OpKey, lastSaveTime, lastUseTime int64) *CacheInfo {
	now := nowNS()
	if lastSaveTime <= 0 {
		lastSaveTime = now
	}
	if lastUseTime <= 0 {
		lastUseTime = now
	}
	if info, ok := ts.lru.Get(fp); ok {
		info.LastSaveTime = lastSaveTime
		info.LastUseTime = lastUseTime
		return info
	}
	info := &CacheInfo{Fingerprint: fp, LastSaveTime: lastSaveTime, LastUseTime: lastUseTime}
	ts.lru.Add(fp, info)
	ts.currentBytes += info.TotalBytes()
	return info
}

// touch marks fp as just used, both updating its CacheInfo and moving it
// to the most-recently-used end of the LRU ordering.
func (ts *tierState) touch(fp OpKey) (*CacheInfo, bool) {
	info, ok := ts.lru.Get(fp)
	if !ok {
		return nil, false
	}
	info.LastUseTime = nowNS()
	return info, true
}

// trim repeatedly evicts the oldest entry while over budget, calling
// evict for each one so the caller can free or detach the underlying
// buffer. It never evicts the last remaining entry.
func (ts *tierState) trim(evict func(*CacheInfo)) {
	for ts.currentBytes > ts.budget && ts.lru.Len() > 1 {
		_, info, ok := ts.lru.RemoveOldest()
		if !ok {
			return
		}
		ts.currentBytes -= info.TotalBytes()
		evict(info)
	}
}

func (ts *tierState) reset() {
	l, _ := simplelru.NewLRU[OpKey, *CacheInfo](unboundedEntries, nil)
	ts.lru = l
	ts.currentBytes = 0
}
