package cache

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/compositor/cachecore/internal/tracing"
)

// cacheInnerDirName is the directory the disk tier nests under whatever
// root the host configures, so it never shares a directory with unrelated
// files the host might keep at that root.
const cacheInnerDirName = "compcache"

// DiskTier holds buffers as flat float32 files under a root directory.
// Gets always return a freshly read, owned copy. Saves, deletes, and
// prefetches run on background goroutines; joinRelated enforces that at
// most one such goroutine is ever in flight for a given fingerprint at a
// time, so a second operation on the same key always waits for the first
// to finish before starting (join-before-reuse).
type DiskTier struct {
	state *tierState

	root    string
	dirSet  bool
	enabled bool

	mu        sync.Mutex
	saveOps   map[OpKey]chan struct{}
	deleteOps map[OpKey]chan struct{}

	prefetchMu     sync.Mutex
	prefetchHasKey bool
	prefetchKey    OpKey
	prefetchBuf    []float32
	prefetchErr    error
	prefetchDone   chan struct{}
}

// NewDiskTier creates an empty, disabled disk tier. Initialize enables it
// once a non-empty DiskCacheRoot is configured.
func NewDiskTier() *DiskTier {
	return &DiskTier{
		state:     newTierState(),
		saveOps:   make(map[OpKey]chan struct{}),
		deleteOps: make(map[OpKey]chan struct{}),
	}
}

func (d *DiskTier) Initialize(ctx *Context) error {
	d.state.resetForInitialize(ctx.DiskBudgetBytes)

	root := ctx.DiskCacheRoot
	if root == "" {
		d.enabled = false
		d.dirSet = false
		return nil
	}
	inner := filepath.Join(root, cacheInnerDirName)
	if d.dirSet && inner == d.root {
		d.enabled = true
		return nil
	}

	d.joinAll()
	d.state.reset()
	d.mu.Lock()
	d.saveOps = make(map[OpKey]chan struct{})
	d.deleteOps = make(map[OpKey]chan struct{})
	d.mu.Unlock()

	if d.dirSet {
		if err := removeDirContents(d.root); err != nil {
			log.Error().Err(err).Str("dir", d.root).Msg("disk cache: could not clear cache directory")
		}
	}
	if err := os.MkdirAll(inner, 0o755); err != nil {
		log.Error().Err(err).Str("dir", inner).Msg("disk cache: could not create cache directory, disk tier disabled")
		d.enabled = false
		d.dirSet = false
		return nil
	}
	d.root = inner
	d.dirSet = true
	d.enabled = true
	d.scanDir()
	return nil
}

func (d *DiskTier) Deinitialize(ctx *Context) {
	// Deliberately does not wait for in-flight save/delete threads: the
	// process is assumed to outlive this one evaluation, and letting them
	// finish in the background keeps teardown responsive. Only an
	// unclaimed prefetch buffer is freed, since nothing else will ever
	// claim it once the planned-read queue is cleared below.
	d.assurePreviousPrefetchFreed()
	d.state.planned = nil
	d.state.plannedSet = make(map[OpKey]struct{})
}

func (d *DiskTier) SetMode(mode Mode) {
	d.state.mode = mode
	if mode == ModeExec {
		d.prefetchNext()
	}
}

func (d *DiskTier) Has(fp OpKey) bool {
	return d.enabled && d.state.lru.Contains(fp)
}

func (d *DiskTier) NotePlannedRead(fp OpKey) {
	d.state.notePlannedRead(fp)
}

func (d *DiskTier) Save(fp OpKey, buf []float32, opts SaveOptions) error {
	if d.state.mode != ModeExec {
		violate("disk tier Save called outside Exec mode")
	}
	if !d.enabled {
		return nil
	}
	info := d.state.loadInfo(fp, opts.LastSaveTime, opts.LastUseTime)
	d.joinRelated(fp)

	path := d.filePath(info)
	done := make(chan struct{})
	d.mu.Lock()
	d.saveOps[fp] = done
	d.mu.Unlock()

	filename := filepath.Base(path)
	go func() {
		defer close(done)
		defer func() {
			d.mu.Lock()
			delete(d.saveOps, fp)
			d.mu.Unlock()
		}()
		sctx, span := tracing.StartDiskIOSpan(context.Background(), filename, "save")
		defer span.End()
		if err := writeBufferFile(path, buf); err != nil {
			tracing.RecordError(sctx, err)
			log.Error().Err(err).Str("path", path).Msg("disk cache: save failed")
			return
		}
		if opts.OnComplete != nil {
			opts.OnComplete()
		}
	}()
	return nil
}

func (d *DiskTier) Get(fp OpKey) ([]float32, error) {
	if d.state.mode != ModeExec {
		violate("disk tier Get called outside Exec mode")
	}
	if !d.enabled {
		return nil, ErrMiss
	}

	d.prefetchMu.Lock()
	doneCh := d.prefetchDone
	d.prefetchMu.Unlock()
	if doneCh != nil {
		<-doneCh
	}

	d.prefetchMu.Lock()
	defer d.prefetchMu.Unlock()
	if d.prefetchHasKey && d.prefetchKey == fp {
		buf, err := d.prefetchBuf, d.prefetchErr
		d.prefetchHasKey = false
		d.prefetchBuf = nil
		d.prefetchErr = nil
		if err != nil {
			return nil, err
		}
		if info, ok := d.state.lru.Get(fp); ok {
			info.LastUseTime = nowNS()
		}
		return buf, nil
	}

	// Whatever was prefetched (if anything) was for a different key: it
	// is of no use here, so drop it and report a miss. The caller
	// recomputes; a synchronous read is not attempted so that get never
	// blocks on disk I/O it didn't already have in flight.
	d.prefetchHasKey = false
	d.prefetchBuf = nil
	return nil, ErrMiss
}

func (d *DiskTier) GetAndPrefetchNext(fp OpKey) ([]float32, error) {
	d.state.popPlanned(fp)
	buf, err := d.Get(fp)
	d.prefetchNext()
	return buf, err
}

func (d *DiskTier) TrimToBudget(destroy bool) ([]RemovedCache, error) {
	if !destroy {
		return nil, ErrUnsupported
	}
	d.state.trim(func(info *CacheInfo) {
		d.deleteFile(info)
	})
	return nil, nil
}

func (d *DiskTier) DeleteAll() {
	d.joinAll()
	if d.dirSet {
		if err := removeDirContents(d.root); err != nil {
			log.Error().Err(err).Str("dir", d.root).Msg("disk cache: could not clear cache directory")
		}
	}
	d.state.reset()
}

func (d *DiskTier) ReturnsOwnedCopy() bool { return true }
func (d *DiskTier) CurrentBytes() int64    { return d.state.currentBytes }
func (d *DiskTier) Budget() int64          { return d.state.budget }
func (d *DiskTier) Len() int               { return d.state.lru.Len() }

var _ Tier = (*DiskTier)(nil)

// prefetchNext schedules a prefetch of the planned queue's current front,
// if there is one and the tier actually has it cached.
func (d *DiskTier) prefetchNext() {
	fp, ok := d.state.peekPlanned()
	if !ok || !d.enabled {
		return
	}
	info, ok := d.state.lru.Peek(fp)
	if !ok {
		return
	}
	d.schedulePrefetch(info)
}

func (d *DiskTier) schedulePrefetch(info *CacheInfo) {
	fp := info.Fingerprint
	d.joinRelated(fp)
	d.assurePreviousPrefetchFreed()

	path := d.filePath(info)
	total := info.TotalBytes()
	done := make(chan struct{})
	d.prefetchMu.Lock()
	d.prefetchKey = fp
	d.prefetchHasKey = true
	d.prefetchDone = done
	d.prefetchMu.Unlock()

	filename := filepath.Base(path)
	go func() {
		defer close(done)
		sctx, span := tracing.StartDiskIOSpan(context.Background(), filename, "prefetch")
		defer span.End()
		buf, err := readBufferFile(path, total)
		if err != nil {
			tracing.RecordError(sctx, err)
		}
		d.prefetchMu.Lock()
		d.prefetchBuf = buf
		d.prefetchErr = err
		d.prefetchMu.Unlock()
	}()
}

// assurePreviousPrefetchFreed waits for any in-flight prefetch to finish
// and drops its result if nobody claimed it via Get.
func (d *DiskTier) assurePreviousPrefetchFreed() {
	d.prefetchMu.Lock()
	doneCh := d.prefetchDone
	d.prefetchMu.Unlock()
	if doneCh != nil {
		<-doneCh
	}
	d.prefetchMu.Lock()
	d.prefetchHasKey = false
	d.prefetchBuf = nil
	d.prefetchErr = nil
	d.prefetchMu.Unlock()
}

// deleteFile schedules the backing file for info's fingerprint for
// removal on a background goroutine, joining any thread already touching
// that key first.
func (d *DiskTier) deleteFile(info *CacheInfo) {
	fp := info.Fingerprint
	d.joinRelated(fp)
	path := d.filePath(info)
	done := make(chan struct{})
	d.mu.Lock()
	d.deleteOps[fp] = done
	d.mu.Unlock()
	filename := filepath.Base(path)
	go func() {
		defer close(done)
		defer func() {
			d.mu.Lock()
			delete(d.deleteOps, fp)
			d.mu.Unlock()
		}()
		sctx, span := tracing.StartDiskIOSpan(context.Background(), filename, "delete")
		defer span.End()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			tracing.RecordError(sctx, err)
			log.Error().Err(err).Str("path", path).Msg("disk cache: delete failed")
		}
	}()
}

// joinRelated waits for any prefetch, save, or delete goroutine already
// working on fp to finish, so a new operation on the same key never runs
// concurrently with one still in flight.
func (d *DiskTier) joinRelated(fp OpKey) {
	d.prefetchMu.Lock()
	pending := d.prefetchHasKey && d.prefetchKey == fp
	doneCh := d.prefetchDone
	d.prefetchMu.Unlock()
	if pending && doneCh != nil {
		<-doneCh
	}

	d.mu.Lock()
	sch := d.saveOps[fp]
	dch := d.deleteOps[fp]
	d.mu.Unlock()
	if sch != nil {
		<-sch
	}
	if dch != nil {
		<-dch
	}
}

// joinAll waits for every in-flight background goroutine, used before
// wiping the cache directory or reinitializing onto a new root.
func (d *DiskTier) joinAll() {
	d.assurePreviousPrefetchFreed()
	d.mu.Lock()
	saves := make([]chan struct{}, 0, len(d.saveOps))
	for _, ch := range d.saveOps {
		saves = append(saves, ch)
	}
	deletes := make([]chan struct{}, 0, len(d.deleteOps))
	for _, ch := range d.deleteOps {
		deletes = append(deletes, ch)
	}
	d.mu.Unlock()
	for _, ch := range saves {
		<-ch
	}
	for _, ch := range deletes {
		<-ch
	}
}

func (d *DiskTier) filePath(info *CacheInfo) string {
	return filepath.Join(d.root, cacheFilename(info.Fingerprint, info.LastSaveTime))
}

// scanDir populates tier entries from whatever files already exist in the
// cache directory, using each filename's encoded save time as both the
// save time and the initial use time: a file nobody has touched yet since
// the last process loaded it is, as far as recency is concerned, exactly
// as fresh as the moment it was written.
func (d *DiskTier) scanDir() {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		log.Error().Err(err).Str("dir", d.root).Msg("disk cache: could not scan cache directory")
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fp, saveTime, ok := parseCacheFilename(e.Name())
		if !ok {
			continue // malformed filename: skipped silently
		}
		d.state.loadInfo(fp, saveTime, saveTime)
	}
}

func removeDirContents(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func writeBufferFile(path string, buf []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	raw := make([]byte, len(buf)*4)
	for i, v := range buf {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	_, err = f.Write(raw)
	return err
}

func readBufferFile(path string, totalBytes int64) ([]float32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	n := int(totalBytes / 4)
	buf := make([]float32, n)
	for i := 0; i < n && (i+1)*4 <= len(raw); i++ {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return buf, nil
}
