package tagcache

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyFormat reports a malformed key or prefix template.
	ErrKeyFormat = errors.New("tagcache: malformed key template")
	// ErrSerialization wraps codec failures. A value that cannot be decoded is
	// never returned as a hit.
	ErrSerialization = errors.New("tagcache: serialization failed")

	ErrNoBackend  = errors.New("tagcache: backend is required")
	ErrNoProvider = errors.New("tagcache: provider is required")

	ErrInvalidLease          = errors.New("tagcache: lock lease must be positive")
	ErrAtomicLockUnsupported = errors.New("tagcache: store has no atomic set-if-absent")
)

// InvalidateError reports a prefix invalidation that did not fully apply.
// Local backends fail on generation bumps, distributed ones on deletes.
type InvalidateError struct {
	Prefix  string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate prefix %q failed: gen bump and delete failed: bump=%v; delete=%v",
			e.Prefix, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("invalidate prefix %q: gen bump failed: %v", e.Prefix, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate prefix %q: delete failed: %v", e.Prefix, e.DelErr)
	default:
		return fmt.Sprintf("invalidate prefix %q: unknown error", e.Prefix)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
