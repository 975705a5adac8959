// File: device/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scoped device-context override.

package device

import (
	"runtime"

	"k8s.io/klog/v2"

	"github.com/momentics/hioload-mem/api"
)

// WithDevice runs fn with id as the calling thread's current device. The OS
// thread is locked for the duration and the previous device is restored on
// return even when fn fails.
func WithDevice(rt Runtime, id int, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	current, err := rt.GetDevice()
	if err != nil {
		return api.Errorf(api.ErrCodeInternal, "failed to get current device: %v", err)
	}
	if current != id {
		if err := rt.SetDevice(id); err != nil {
			return api.Errorf(api.ErrCodeInternal, "failed to set device %d: %v", id, err)
		}
		defer func() {
			if err := rt.SetDevice(current); err != nil {
				klog.Errorf("[device] failed to restore device %d: %v", current, err)
			}
		}()
	}
	return fn()
}
