// File: cmd/memtier/selftest.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Copy self-test: moves a checksummed pattern between every pair of tiers
// through the async work queue and verifies the destination.

package main

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/core/concurrency"
	"github.com/momentics/hioload-mem/device"
	"github.com/momentics/hioload-mem/facade"
	"github.com/momentics/hioload-mem/memory"
	"github.com/momentics/hioload-mem/response"
	"github.com/momentics/hioload-mem/transfer"
)

type endpoint struct {
	Type api.MemoryType
	ID   int64
}

func (e endpoint) String() string {
	if e.Type == api.MemoryGPU {
		return fmt.Sprintf("%s:%d", e.Type, e.ID)
	}
	return e.Type.String()
}

// pairResult is the outcome of one src -> dst copy.
type pairResult struct {
	Src, Dst   endpoint
	ActualSrc  api.MemoryType
	ActualDst  api.MemoryType
	Bytes      int
	DeviceUsed bool
	Checksum   uint64
	Err        error
}

type pairJob struct {
	token  string
	result *pairResult
	src    *memory.Allocated
	out    *response.Output
	stream device.Stream
}

// endpoints lists the host tiers and every supported device.
func endpoints(ctx context.Context, m *facade.Memory) ([]endpoint, error) {
	eps := []endpoint{{Type: api.MemoryCPU}, {Type: api.MemoryCPUPinned}}
	devs, err := m.Devices(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range devs {
		eps = append(eps, endpoint{Type: api.MemoryGPU, ID: int64(d.ID)})
	}
	return eps, nil
}

// runSelfTest copies size bytes across every ordered pair of endpoints.
func runSelfTest(ctx context.Context, m *facade.Memory, size int, seed uint64) ([]pairResult, error) {
	eps, err := endpoints(ctx, m)
	if err != nil {
		return nil, err
	}
	var jobs []*pairJob
	for _, src := range eps {
		for _, dst := range eps {
			jobs = append(jobs, &pairJob{
				token:  uuid.NewString(),
				result: &pairResult{Src: src, Dst: dst, Bytes: size},
			})
		}
	}
	defer func() {
		for _, j := range jobs {
			release(j)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return prepare(m, j, size, seed+uint64(i))
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := concurrency.NewSyncQueue[transfer.CopyResult]()
	byToken := make(map[string]*pairJob, len(jobs))
	for _, j := range jobs {
		byToken[j.token] = j
		data, _, _ := j.out.DataBuffer()
		srcData, _ := j.src.BufferAt(0)
		req := transfer.CopyRequest{
			Msg:          j.result.Src.String() + "->" + j.result.Dst.String(),
			SrcType:      j.result.ActualSrc,
			SrcID:        j.result.Src.ID,
			DstType:      j.result.ActualDst,
			DstID:        j.result.Dst.ID,
			Size:         size,
			Src:          srcData,
			Dst:          data,
			Stream:       j.stream,
			CopyOnStream: j.stream != nil,
		}
		if err := m.Copier().Dispatch(req, j.token, results); err != nil {
			return nil, err
		}
	}

	for range jobs {
		res, err := results.GetContext(ctx)
		if err != nil {
			return nil, err
		}
		j := byToken[res.Token.(string)]
		j.result.DeviceUsed = res.DeviceUsed
		j.result.Err = res.Err
		if res.Err == nil {
			j.result.Err = verify(m.Copier(), j)
		}
	}

	out := make([]pairResult, len(jobs))
	for i, j := range jobs {
		out[i] = *j.result
	}
	return out, nil
}

func prepare(m *facade.Memory, j *pairJob, size int, seed uint64) error {
	r := j.result
	if rt := m.Runtime(); rt != nil {
		s, err := rt.NewStream()
		if err != nil {
			return errors.Wrap(err, "create stream")
		}
		j.stream = s
	}

	j.src = memory.NewAllocated(size, r.Src.Type, r.Src.ID)
	data, attr := j.src.BufferAt(0)
	if data == nil {
		return errors.Wrapf(j.src.Err(), "allocate source %s", r.Src)
	}
	r.ActualSrc = attr.MemoryType

	pattern := make([]byte, size)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := range pattern {
		pattern[i] = byte(rng.Uint32())
	}
	r.Checksum = xxhash.Sum64(pattern)
	// Device spans can only be written through the runtime.
	used, err := m.Copier().CopyBuffer("fill "+r.Src.String(), api.MemoryCPU, 0,
		r.ActualSrc, r.Src.ID, size, pattern, data, j.stream, j.stream != nil)
	if err != nil {
		return err
	}
	if used {
		if err := j.stream.Synchronize(); err != nil {
			return errors.Wrap(err, "synchronize fill")
		}
	}

	j.out = m.NewOutput(j.token)
	_, mt, _, err := j.out.AllocateDataBuffer(size, r.Dst.Type, r.Dst.ID)
	if err != nil {
		return errors.Wrapf(err, "allocate destination %s", r.Dst)
	}
	r.ActualDst = mt
	return nil
}

func verify(c *transfer.Copier, j *pairJob) error {
	if j.result.DeviceUsed && j.stream != nil {
		if err := j.stream.Synchronize(); err != nil {
			return errors.Wrap(err, "synchronize")
		}
	}
	data, attr, _ := j.out.DataBuffer()
	if attr.MemoryType == api.MemoryGPU {
		// Device spans are not host readable, hash a copy instead.
		scratch := make([]byte, len(data))
		used, err := c.CopyBuffer("read back "+j.result.Dst.String(), api.MemoryGPU, attr.MemoryTypeID,
			api.MemoryCPU, 0, len(data), data, scratch, j.stream, j.stream != nil)
		if err != nil {
			return err
		}
		if used && j.stream != nil {
			if err := j.stream.Synchronize(); err != nil {
				return errors.Wrap(err, "synchronize read back")
			}
		}
		data = scratch
	}
	if got := xxhash.Sum64(data); got != j.result.Checksum {
		return api.Errorf(api.ErrCodeInternal, "checksum mismatch: want %#x got %#x", j.result.Checksum, got)
	}
	return nil
}

func release(j *pairJob) {
	if j.stream != nil {
		if err := j.stream.Destroy(); err != nil {
			klog.Warningf("[memtier] destroy stream: %v", err)
		}
	}
	if j.out != nil {
		if err := j.out.ReleaseDataBuffer(); err != nil {
			klog.Warningf("[memtier] release output %s: %v", j.token, err)
		}
	}
	if j.src != nil {
		j.src.Release()
	}
}
