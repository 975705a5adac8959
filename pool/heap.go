// File: pool/heap.go
// Author: momentics <momentics@gmail.com>
//
// Plain heap tier.

package pool

import "github.com/momentics/hioload-mem/api"

// HeapAlloc allocates size bytes of pageable memory. Sizes the runtime
// refuses are reported as Internal instead of panicking.
func HeapAlloc(size int) (buf []byte, err error) {
	if size < 0 {
		return nil, api.Errorf(api.ErrCodeInvalidArgument, "invalid allocation size %d", size)
	}
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, api.Errorf(api.ErrCodeInternal,
				"failed to allocate non-pinned system memory of byte size %d: %v", size, r)
		}
	}()
	return make([]byte, size), nil
}
