package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/compositor/cachecore/internal/cache"
	"github.com/compositor/cachecore/internal/config"
	"github.com/compositor/cachecore/internal/dashboard"
	"github.com/compositor/cachecore/internal/session"
	"github.com/compositor/cachecore/internal/store"
)

// demoNode stands in for a compositor node: just enough identity for the
// cache subsystem to key, store, and invalidate its result, with no
// actual pixel evaluation behind it.
type demoNode struct {
	fp            cache.OpKey
	persistent    bool
	persistentKey cache.PersistentKey
	previewSlot   uint32
	hasPreview    bool
	sessionID     uuid.UUID
	hasViewer     bool
}

func (n *demoNode) Fingerprint() cache.OpKey           { return n.fp }
func (n *demoNode) Cacheable() bool                    { return true }
func (n *demoNode) Persistent() bool                   { return n.persistent }
func (n *demoNode) PersistentKey() cache.PersistentKey { return n.persistentKey }
func (n *demoNode) PreviewKey() (uint32, bool)         { return n.previewSlot, n.hasPreview }
func (n *demoNode) ImageSessionID() (uuid.UUID, bool)  { return n.sessionID, n.hasViewer }

var _ cache.Operation = (*demoNode)(nil)

// buildNodeSequence fabricates a deterministic graph of count nodes for
// the given frame: a mix of plain cacheable nodes, nodes bound to a fixed
// graph position (persistent), a handful writing preview thumbnails, and
// one acting as the final viewer output. Every node's content hash folds
// in the frame number, so successive frames produce fresh fingerprints
// the way a change to upstream content would.
func buildNodeSequence(count, frame int) []cache.Operation {
	viewerSession := uuid.New()
	ops := make([]cache.Operation, 0, count)

	for i := 0; i < count; i++ {
		nodeIdentity := uint64(i + 1)
		fb := cache.NewFingerprintBuilder(nodeIdentity).
			WriteUint64(uint64(frame)).
			WriteString("demo-node")

		width, height := 256, 256
		pixelType := cache.PixelColor
		if i%5 == 0 {
			width, height = 3840, 2160
		}

		fp := fb.Build(width, height, pixelType)

		node := &demoNode{fp: fp}

		if i%3 == 0 {
			node.persistent = true
			node.persistentKey = cache.PersistentKey{
				FrameNumber:  frame,
				NodeIdentity: nodeIdentity,
				Width:        width,
				Height:       height,
				PixelType:    pixelType,
			}
		}

		if i%7 == 0 {
			node.hasPreview = true
			node.previewSlot = uint32(nodeIdentity)
		}

		if i == count-1 {
			node.hasViewer = true
			node.sessionID = viewerSession
		}

		ops = append(ops, node)
	}

	return ops
}

// computeDemoBuffer fabricates deterministic pixel data for a fingerprint
// that missed both tiers, standing in for the node graph's own evaluation.
func computeDemoBuffer(op cache.Operation) []float32 {
	fp := op.Fingerprint()
	n := fp.Width * fp.Height * fp.PixelType.Channels()
	buf := make([]float32, n)
	seed := float32(fp.ContentHash%1000) / 1000
	for i := range buf {
		buf[i] = seed
	}
	return buf
}

func cmdDemo(args []string) {
	nodeCount := 32
	frames := 3
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--nodes":
			if i+1 < len(args) {
				if n, err := strconv.Atoi(args[i+1]); err == nil {
					nodeCount = n
				}
				i++
			}
		case "--frames":
			if i+1 < len(args) {
				if n, err := strconv.Atoi(args[i+1]); err == nil {
					frames = n
				}
				i++
			}
		}
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	dataDir := cfg.Server.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating data dir: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(filepath.Join(dataDir, "cachecore-demo.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	collector := dashboard.NewCollector()

	var pkStore cache.PersistentStore
	if cfg.Cache.PersistKeysToDisk {
		pkStore = store.NewPersistentKeyStore(st)
	}

	sess := session.New(cfg, pkStore, collector, st)
	if err := sess.Initialize(cfg, nil); err != nil {
		fmt.Fprintf(os.Stderr, "error initializing session: %v\n", err)
		os.Exit(1)
	}
	defer sess.Deinitialize(false)

	ctx := context.Background()
	for frame := 0; frame < frames; frame++ {
		ops := buildNodeSequence(nodeCount, frame)
		sess.RunPass(ctx, ops, computeDemoBuffer)
		fmt.Printf("frame %d: replayed %d nodes\n", frame, len(ops))
	}

	stats := collector.Stats()
	fmt.Printf("\nDemo session complete:\n")
	fmt.Printf("  gets:             %d\n", stats.TotalGets)
	fmt.Printf("  puts:             %d\n", stats.TotalPuts)
	fmt.Printf("  hit rate:         %.1f%% (%d memory / %d disk / %d miss)\n",
		stats.HitRate, stats.MemoryHits, stats.DiskHits, stats.Misses)
	fmt.Printf("  rehomed to disk:  %d\n", stats.RehomedToDisk)
	fmt.Printf("  persistent hits:  %d / %d\n", stats.PersistentHits, stats.PersistentHits+stats.PersistentMisses)
}
