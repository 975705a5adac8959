// File: pool/pinned.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// PinnedMemoryManager serves page-locked host memory from fixed arenas, one
// per NUMA node mask. Every span it hands out, pinned or heap fallback, is
// recorded in a live map keyed by address so Free can route it back to the
// right place.

package pool

import (
	"fmt"
	"math"
	"runtime"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/momentics/hioload-mem/affinity"
	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/device"
)

const pinnedAlignment = 64

// PinnedOptions configures a PinnedMemoryManager.
type PinnedOptions struct {
	// ByteSize is the arena size of every pool. 0 disables pinned pools.
	ByteSize uint64
	// HostPolicy, when non-empty, creates one pool per distinct "numa-node".
	HostPolicy api.HostPolicyMap
	// NUMA overrides the thread NUMA controls; nil uses the affinity package.
	NUMA NUMAController
}

type pinnedPool struct {
	mu     sync.Mutex
	mask   uint64
	region []byte
	arena  *arena

	fallbacks atomic.Uint64
}

func newPinnedPool(mask uint64, region []byte) *pinnedPool {
	return &pinnedPool{mask: mask, region: region, arena: newArena(region, pinnedAlignment)}
}

func (p *pinnedPool) alloc(size int) ([]byte, error) {
	if p.region == nil {
		return nil, api.NewError(api.ErrCodeUnavailable, "failed to allocate pinned system memory: no pinned memory pool")
	}
	p.mu.Lock()
	buf := p.arena.alloc(size)
	p.mu.Unlock()
	if buf == nil {
		return nil, api.Errorf(api.ErrCodeUnavailable,
			"failed to allocate pinned system memory of byte size %d", size)
	}
	return buf, nil
}

func (p *pinnedPool) release(buf []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.arena.release(buf)
}

type pinnedEntry struct {
	pinned bool
	pool   *pinnedPool
	buf    []byte
}

// PinnedMemoryManager owns the pinned pools and the live-pointer map.
type PinnedMemoryManager struct {
	rt       device.Runtime
	numa     NUMAController
	byteSize uint64

	pools map[uint64]*pinnedPool
	masks []uint64 // sorted

	mu   sync.Mutex
	live map[uintptr]pinnedEntry

	fallbackWarning sync.Once
}

// NewPinnedMemoryManager builds the pools described by opts. Pools whose
// registration fails stay in place without a region and serve nothing but
// heap fallbacks. rt may be nil when no device runtime is present.
func NewPinnedMemoryManager(rt device.Runtime, opts PinnedOptions) (*PinnedMemoryManager, error) {
	if opts.ByteSize > math.MaxInt {
		return nil, api.Errorf(api.ErrCodeInvalidArgument,
			"pinned memory pool byte size %d exceeds the addressable maximum", opts.ByteSize)
	}
	m := &PinnedMemoryManager{
		rt:       rt,
		numa:     opts.NUMA,
		byteSize: opts.ByteSize,
		pools:    make(map[uint64]*pinnedPool),
		live:     make(map[uintptr]pinnedEntry),
	}
	if m.numa == nil {
		m.numa = SystemNUMA()
	}
	size := int(opts.ByteSize)

	if len(opts.HostPolicy) == 0 {
		m.addPool(newPinnedPool(0, m.registerRegion(size)))
		return m, nil
	}

	for _, np := range distinctNodes(opts.HostPolicy) {
		if p := m.nodePool(np.node, np.policy, size); p != nil {
			m.addPool(p)
		}
	}
	if len(m.pools) == 0 {
		klog.Warningf("[pinned] no NUMA node yielded a pinned memory pool, all allocations use system memory")
		m.addPool(newPinnedPool(0, nil))
	}
	return m, nil
}

type nodePolicy struct {
	node   int
	policy api.HostPolicy
}

// distinctNodes lists the NUMA nodes referenced by policies in node order.
// When several policies name one node the first policy by name wins.
func distinctNodes(policies api.HostPolicyMap) []nodePolicy {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[int]bool)
	var out []nodePolicy
	for _, name := range names {
		v, ok := policies[name][api.HostPolicyNUMANode]
		if !ok {
			continue
		}
		node, err := affinity.ParseNUMANode(v)
		if err != nil {
			klog.Warningf("[pinned] host policy %q: %v", name, err)
			continue
		}
		if seen[node] {
			continue
		}
		seen[node] = true
		out = append(out, nodePolicy{node: node, policy: policies[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].node < out[j].node })
	return out
}

// nodePool builds the pool for one node on a dedicated OS thread. The thread
// is never unlocked, so the affinity it picked up dies with it.
func (m *PinnedMemoryManager) nodePool(node int, policy api.HostPolicy, size int) *pinnedPool {
	done := make(chan *pinnedPool, 1)
	go func() {
		runtime.LockOSThread()
		if err := m.numa.SetNUMAConfigOnThread(policy); err != nil {
			klog.Warningf("[pinned] unable to allocate pinned system memory for NUMA node %d: %v", node, err)
			done <- nil
			return
		}
		mask, err := m.numa.GetNUMAMemoryPolicyNodeMask()
		if err != nil {
			klog.Warningf("[pinned] unable to get NUMA node set for current thread: %v", err)
			done <- nil
			return
		}
		region := m.registerRegion(size)
		if err := m.numa.ResetNUMAMemoryPolicy(); err != nil {
			klog.Warningf("[pinned] unable to reset NUMA memory policy: %v", err)
		}
		done <- newPinnedPool(mask, region)
	}()
	return <-done
}

func (m *PinnedMemoryManager) addPool(p *pinnedPool) {
	if _, dup := m.pools[p.mask]; dup {
		klog.Warningf("[pinned] node mask %#x already has a pinned memory pool", p.mask)
		m.freeRegion(p.region)
		return
	}
	m.pools[p.mask] = p
	i, _ := slices.BinarySearch(m.masks, p.mask)
	m.masks = slices.Insert(m.masks, i, p.mask)
}

// registerRegion reserves a page-locked arena, or returns nil when pinned
// memory is disabled or unavailable.
func (m *PinnedMemoryManager) registerRegion(size int) []byte {
	if m.rt == nil {
		klog.V(1).Infof("[pinned] no device runtime, pinned memory pool will not be available")
		return nil
	}
	if size == 0 {
		klog.Infof("[pinned] Pinned memory pool disabled")
		return nil
	}
	region, err := m.rt.HostAlloc(size)
	if err != nil {
		klog.Warningf("[pinned] Unable to allocate pinned system memory, pinned memory pool will not be available: %v", err)
		return nil
	}
	klog.Infof("[pinned] Pinned memory pool is created at %#x with size %s",
		address(region), humanize.IBytes(uint64(size)))
	return region
}

func (m *PinnedMemoryManager) freeRegion(region []byte) {
	if region == nil || m.rt == nil {
		return
	}
	if err := m.rt.FreeHost(region); err != nil {
		klog.Errorf("[pinned] failed to release pinned memory pool at %#x: %v", address(region), err)
	}
}

// selectPool returns the pool of the caller's memory-policy node mask, or
// the lowest-mask pool when there is one pool or no match.
func (m *PinnedMemoryManager) selectPool() *pinnedPool {
	p := m.pools[m.masks[0]]
	if len(m.pools) > 1 {
		if mask, err := m.numa.GetNUMAMemoryPolicyNodeMask(); err == nil {
			if np, ok := m.pools[mask]; ok {
				p = np
			}
		}
	}
	return p
}

// Alloc returns size bytes of pinned memory and MemoryCPUPinned. When the
// pool cannot serve the request and allowFallback is set the span comes from
// the heap and the tier is MemoryCPU.
func (m *PinnedMemoryManager) Alloc(size int, allowFallback bool) ([]byte, api.MemoryType, error) {
	if size <= 0 {
		return nil, api.MemoryCPU, api.Errorf(api.ErrCodeInvalidArgument, "invalid pinned allocation size %d", size)
	}
	pool := m.selectPool()
	buf, err := pool.alloc(size)
	pinned := err == nil
	if err != nil {
		if !allowFallback {
			return nil, api.MemoryCPU, err
		}
		m.fallbackWarning.Do(func() {
			klog.Warningf("[pinned] %v, falling back to non-pinned system memory", err)
		})
		if buf, err = HeapAlloc(size); err != nil {
			return nil, api.MemoryCPU, err
		}
		pool.fallbacks.Add(1)
	}

	if err := m.register(buf, pinned, pool); err != nil {
		if pinned {
			pool.release(buf)
		}
		return nil, api.MemoryCPU, err
	}
	if pinned {
		return buf, api.MemoryCPUPinned, nil
	}
	return buf, api.MemoryCPU, nil
}

func (m *PinnedMemoryManager) register(buf []byte, pinned bool, pool *pinnedPool) error {
	addr := address(buf)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.live[addr]; dup {
		err := api.Errorf(api.ErrCodeInternal, "unexpected memory address collision, '%#x' has been managed", addr)
		klog.Error(err)
		return err
	}
	m.live[addr] = pinnedEntry{pinned: pinned, pool: pool, buf: buf}
	klog.V(2).Infof("[pinned] %spinned memory allocation: size %d, addr %#x", nonPrefix(pinned), len(buf), addr)
	return nil
}

// Free releases a span returned by Alloc. Any other span fails with NotFound.
func (m *PinnedMemoryManager) Free(buf []byte) error {
	addr := address(buf)
	m.mu.Lock()
	e, ok := m.live[addr]
	if ok {
		delete(m.live, addr)
		klog.V(2).Infof("[pinned] %spinned memory deallocation: addr %#x", nonPrefix(e.pinned), addr)
	}
	m.mu.Unlock()
	if !ok {
		return api.Errorf(api.ErrCodeNotFound, "unexpected memory address '%#x' is not being managed", addr)
	}
	if e.pinned && !e.pool.release(e.buf) {
		return api.Errorf(api.ErrCodeInternal, "pinned memory at '%#x' is not part of its pool", addr)
	}
	return nil
}

// ByteSize returns the configured per-pool size.
func (m *PinnedMemoryManager) ByteSize() uint64 { return m.byteSize }

// NodeMasks returns the node masks that own a pool, in ascending order.
func (m *PinnedMemoryManager) NodeMasks() []uint64 {
	return slices.Clone(m.masks)
}

// LiveAllocations returns the number of spans not yet freed.
func (m *PinnedMemoryManager) LiveAllocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Stats returns one snapshot per pool.
func (m *PinnedMemoryManager) Stats() []PoolStats {
	out := make([]PoolStats, 0, len(m.masks))
	for _, mask := range m.masks {
		p := m.pools[mask]
		p.mu.Lock()
		out = append(out, PoolStats{
			Tier:            api.MemoryCPUPinned.String(),
			Pool:            fmt.Sprintf("node-mask-%#x", mask),
			CapacityBytes:   uint64(p.arena.capacity()),
			UsedBytes:       uint64(p.arena.inUse()),
			LargestFree:     uint64(p.arena.largestFree()),
			LiveAllocations: p.arena.liveBlocks(),
			Fallbacks:       p.fallbacks.Load(),
		})
		p.mu.Unlock()
	}
	return out
}

// Close returns every pool region to the runtime. Spans still live become
// invalid; heap fallbacks are left to the garbage collector.
func (m *PinnedMemoryManager) Close() {
	m.mu.Lock()
	m.live = make(map[uintptr]pinnedEntry)
	m.mu.Unlock()
	for _, mask := range m.masks {
		m.freeRegion(m.pools[mask].region)
	}
}

func nonPrefix(pinned bool) string {
	if pinned {
		return ""
	}
	return "non-"
}

func address(buf []byte) uintptr {
	if cap(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}
