package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrMiss is returned (never panics) whenever a lookup legitimately finds
	// nothing: the node recomputes its result and the caller moves on.
	ErrMiss = errors.New("cache: miss")

	// ErrContractViolation marks a call that broke one of the package's
	// sequencing rules (operating mode, prefetch-queue order, duplicate
	// preview writes). These indicate a bug in the calling executor, not a
	// runtime condition a node should try to recover from, so helpers that
	// detect one panic with this error wrapped in; call recoverContract to
	// turn that back into a plain error at a boundary that needs one.
	ErrContractViolation = errors.New("cache: contract violation")

	// ErrUnsupported is returned by tier operations that a given tier
	// deliberately does not implement, such as detach-without-destroy on
	// the disk tier.
	ErrUnsupported = errors.New("cache: unsupported by this tier")
)

func violate(msg string) {
	panic(fmt.Errorf("%w: %s", ErrContractViolation, msg))
}

// recoverContract converts a panic carrying ErrContractViolation into a
// returned error; any other panic is re-raised.
func recoverContract(errp *error) {
	if r := recover(); r != nil {
		if err, ok := r.(error); ok && errors.Is(err, ErrContractViolation) {
			*errp = err
			return
		}
		panic(r)
	}
}
