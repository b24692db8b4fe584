package cache

// GraphHandle is an opaque reference to the node graph being evaluated.
// The cache subsystem never inspects it; it exists only so a Context can
// be threaded through initialize/deinitialize calls alongside the graph
// it belongs to.
type GraphHandle interface{}

// BufferRecycler is an opaque external collaborator responsible for
// allocating and pooling pixel buffers. The cache subsystem hands buffers
// to and receives buffers from it but otherwise treats it as a black box.
type BufferRecycler interface{}

// Context carries the per-session configuration the cache subsystem needs
// at initialize time: tier budgets, the disk cache root, and the
// interrupt/breaked flag that governs whether unexercised previews survive
// deinitialize.
type Context struct {
	MemoryBudgetBytes int64
	DiskBudgetBytes   int64

	// DiskCacheRoot is the parent directory the disk tier nests its own
	// subdirectory inside. An empty value disables the disk tier entirely.
	DiskCacheRoot string

	// InterruptFlag reports whether the current evaluation was broken off
	// before completion; ViewRegistry uses it to decide whether to prune
	// previews nothing asked for during this run.
	InterruptFlag bool

	UseOpenCL bool
	Tree      GraphHandle
}
