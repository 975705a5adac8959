// File: transfer/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Asynchronous completion path. Each handled copy publishes exactly one
// CopyResult; correlating results by token is left to the caller.

package transfer

import (
	"k8s.io/klog/v2"

	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/core/concurrency"
)

// CopyResult is the outcome of one asynchronous copy.
type CopyResult struct {
	Err        error
	DeviceUsed bool
	Token      any
}

// CopyBufferHandler runs the copy and puts its result on results. A panic
// inside the runtime is reported as an Internal result.
func (c *Copier) CopyBufferHandler(req CopyRequest, token any, results *concurrency.SyncQueue[CopyResult]) {
	res := CopyResult{Token: token}
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("[transfer] %s: copy panicked: %v", req.Msg, r)
			res = CopyResult{
				Err:   api.Errorf(api.ErrCodeInternal, "%s: copy panicked: %v", req.Msg, r),
				Token: token,
			}
		}
		results.Put(res)
	}()
	res.DeviceUsed, res.Err = c.Copy(req)
}

// Dispatch runs CopyBufferHandler on the process async work queue. When the
// queue is unavailable the error is returned and no result is published.
func (c *Copier) Dispatch(req CopyRequest, token any, results *concurrency.SyncQueue[CopyResult]) error {
	return concurrency.AddAsyncTask(func() {
		c.CopyBufferHandler(req, token, results)
	})
}
