// File: device/sim.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SimRuntime emulates a multi-device accelerator runtime in host memory.
// Device memory is ordinary Go memory accounted against each device's
// capacity; the current device is tracked per OS thread like a real runtime
// context. Streams execute their work in order on a dedicated worker.

package device

import (
	"sync"
	"unsafe"

	"github.com/momentics/hioload-mem/core/concurrency"
)

// SimDevice configures one simulated device.
type SimDevice struct {
	Name             string
	Major, Minor     int
	TotalMemory      uint64
	Integrated       bool
	CanMapHostMemory bool
}

// SimConfig configures a SimRuntime.
type SimConfig struct {
	Devices []SimDevice
	// NoPeerAccess makes CanAccessPeer report false for every pair.
	NoPeerAccess bool
	// HostMemoryLimit caps page-locked host memory; 0 means unlimited.
	HostMemoryLimit uint64
}

type simAlloc struct {
	device int // -1 for page-locked host memory
	size   int
}

// SimStats counts runtime calls.
type SimStats struct {
	Mallocs, Frees        int
	HostAllocs, HostFrees int
	Memcpys, HostFuncs    int
	SetDevices            int
	DeviceBytesInUse      []uint64
	PinnedHostBytesInUse  uint64
}

// SimRuntime is a Runtime backed by host memory.
type SimRuntime struct {
	mu       sync.Mutex
	cfg      SimConfig
	used     []uint64
	hostUsed uint64
	current  map[int]int
	allocs   map[uintptr]simAlloc
	peers    map[[2]int]bool
	stats    SimStats
}

var _ Runtime = (*SimRuntime)(nil)

// NewSimRuntime returns a simulated runtime with the given devices.
func NewSimRuntime(cfg SimConfig) *SimRuntime {
	return &SimRuntime{
		cfg:     cfg,
		used:    make([]uint64, len(cfg.Devices)),
		current: make(map[int]int),
		allocs:  make(map[uintptr]simAlloc),
		peers:   make(map[[2]int]bool),
	}
}

// DefaultSimConfig returns n identical compute capability 8.0 devices with
// 1GiB each.
func DefaultSimConfig(n int) SimConfig {
	cfg := SimConfig{}
	for i := 0; i < n; i++ {
		cfg.Devices = append(cfg.Devices, SimDevice{
			Name:             "hioload-sim",
			Major:            8,
			Minor:            0,
			TotalMemory:      1 << 30,
			CanMapHostMemory: true,
		})
	}
	return cfg
}

func (s *SimRuntime) Name() string { return "sim" }

func (s *SimRuntime) DeviceCount() (int, error) {
	return len(s.cfg.Devices), nil
}

func (s *SimRuntime) Properties(device int) (Properties, error) {
	if err := s.checkDevice("cudaGetDeviceProperties", device); err != nil {
		return Properties{}, err
	}
	d := s.cfg.Devices[device]
	return Properties{
		Name:             d.Name,
		Major:            d.Major,
		Minor:            d.Minor,
		Integrated:       d.Integrated,
		CanMapHostMemory: d.CanMapHostMemory,
		TotalMemory:      d.TotalMemory,
	}, nil
}

func (s *SimRuntime) GetDevice() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cfg.Devices) == 0 {
		return 0, &Error{Op: "cudaGetDevice", Code: CodeInvalidDevice, Msg: "no CUDA-capable device is detected"}
	}
	return s.current[threadID()], nil
}

func (s *SimRuntime) SetDevice(device int) error {
	if err := s.checkDevice("cudaSetDevice", device); err != nil {
		return err
	}
	s.mu.Lock()
	s.current[threadID()] = device
	s.stats.SetDevices++
	s.mu.Unlock()
	return nil
}

func (s *SimRuntime) Malloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, &Error{Op: "cudaMalloc", Code: CodeInvalidValue, Msg: "invalid argument"}
	}
	if size == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dev := s.current[threadID()]
	if dev >= len(s.cfg.Devices) {
		return nil, &Error{Op: "cudaMalloc", Code: CodeInvalidDevice, Msg: "invalid device ordinal"}
	}
	if s.used[dev]+uint64(size) > s.cfg.Devices[dev].TotalMemory {
		return nil, &Error{Op: "cudaMalloc", Code: CodeMemoryAllocation, Msg: "out of memory"}
	}
	buf := make([]byte, size)
	s.used[dev] += uint64(size)
	s.allocs[base(buf)] = simAlloc{device: dev, size: size}
	s.stats.Mallocs++
	return buf, nil
}

func (s *SimRuntime) Free(buf []byte) error {
	return s.release("cudaFree", buf, false)
}

func (s *SimRuntime) HostAlloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, &Error{Op: "cudaHostAlloc", Code: CodeInvalidValue, Msg: "invalid argument"}
	}
	if size == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.HostMemoryLimit > 0 && s.hostUsed+uint64(size) > s.cfg.HostMemoryLimit {
		return nil, &Error{Op: "cudaHostAlloc", Code: CodeMemoryAllocation, Msg: "out of memory"}
	}
	buf := make([]byte, size)
	s.hostUsed += uint64(size)
	s.allocs[base(buf)] = simAlloc{device: -1, size: size}
	s.stats.HostAllocs++
	return buf, nil
}

func (s *SimRuntime) FreeHost(buf []byte) error {
	return s.release("cudaFreeHost", buf, true)
}

func (s *SimRuntime) release(op string, buf []byte, host bool) error {
	if len(buf) == 0 && cap(buf) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.allocs[base(buf)]
	if !ok || (a.device < 0) != host {
		return &Error{Op: op, Code: CodeInvalidValue, Msg: "invalid argument"}
	}
	delete(s.allocs, base(buf))
	if host {
		s.hostUsed -= uint64(a.size)
		s.stats.HostFrees++
	} else {
		s.used[a.device] -= uint64(a.size)
		s.stats.Frees++
	}
	return nil
}

func (s *SimRuntime) MemGetInfo() (uint64, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev := s.current[threadID()]
	if dev >= len(s.cfg.Devices) {
		return 0, 0, &Error{Op: "cudaMemGetInfo", Code: CodeInvalidDevice, Msg: "invalid device ordinal"}
	}
	total := s.cfg.Devices[dev].TotalMemory
	return total - s.used[dev], total, nil
}

func (s *SimRuntime) CanAccessPeer(device, peer int) (bool, error) {
	if err := s.checkDevice("cudaDeviceCanAccessPeer", device); err != nil {
		return false, err
	}
	if err := s.checkDevice("cudaDeviceCanAccessPeer", peer); err != nil {
		return false, err
	}
	return !s.cfg.NoPeerAccess && device != peer, nil
}

func (s *SimRuntime) EnablePeerAccess(peer int) error {
	if err := s.checkDevice("cudaDeviceEnablePeerAccess", peer); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dev := s.current[threadID()]
	if s.cfg.NoPeerAccess || dev == peer {
		return &Error{Op: "cudaDeviceEnablePeerAccess", Code: CodePeerAccessUnsupported, Msg: "peer access is not supported between these two devices"}
	}
	key := [2]int{dev, peer}
	if s.peers[key] {
		return &Error{Op: "cudaDeviceEnablePeerAccess", Code: CodePeerAccessAlreadyEnabled, Msg: "peer access is already enabled"}
	}
	s.peers[key] = true
	return nil
}

// PeerAccessEnabled reports whether device may access peer memory.
func (s *SimRuntime) PeerAccessEnabled(device, peer int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[[2]int{device, peer}]
}

func (s *SimRuntime) NewStream() (Stream, error) {
	pool, err := concurrency.NewThreadPool(1, concurrency.WithName("sim-stream"))
	if err != nil {
		return nil, err
	}
	return &simStream{pool: pool}, nil
}

func (s *SimRuntime) MemcpyAsync(dst, src []byte, stream Stream) error {
	if len(dst) < len(src) {
		return &Error{Op: "cudaMemcpyAsync", Code: CodeInvalidValue, Msg: "invalid argument"}
	}
	s.mu.Lock()
	s.stats.Memcpys++
	s.mu.Unlock()
	return s.enqueue("cudaMemcpyAsync", stream, func() { copy(dst, src) })
}

func (s *SimRuntime) LaunchHostFunc(stream Stream, fn func()) error {
	s.mu.Lock()
	s.stats.HostFuncs++
	s.mu.Unlock()
	return s.enqueue("cudaLaunchHostFunc", stream, fn)
}

// Stats returns a snapshot of call counters and usage.
func (s *SimRuntime) Stats() SimStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.DeviceBytesInUse = append([]uint64(nil), s.used...)
	out.PinnedHostBytesInUse = s.hostUsed
	return out
}

// LiveAllocations returns the number of outstanding runtime allocations.
func (s *SimRuntime) LiveAllocations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.allocs)
}

// enqueue runs work inline for the default stream.
func (s *SimRuntime) enqueue(op string, stream Stream, work func()) error {
	if stream == nil {
		work()
		return nil
	}
	ss, ok := stream.(*simStream)
	if !ok {
		return &Error{Op: op, Code: CodeInvalidResourceHandle, Msg: "invalid resource handle"}
	}
	if err := ss.pool.Submit(work); err != nil {
		return &Error{Op: op, Code: CodeInvalidResourceHandle, Msg: "invalid resource handle"}
	}
	return nil
}

func (s *SimRuntime) checkDevice(op string, device int) error {
	if device < 0 || device >= len(s.cfg.Devices) {
		return &Error{Op: op, Code: CodeInvalidDevice, Msg: "invalid device ordinal"}
	}
	return nil
}

type simStream struct {
	pool *concurrency.ThreadPool
}

func (st *simStream) Synchronize() error {
	done := make(chan struct{})
	if err := st.pool.Submit(func() { close(done) }); err != nil {
		return &Error{Op: "cudaStreamSynchronize", Code: CodeInvalidResourceHandle, Msg: "invalid resource handle"}
	}
	<-done
	return nil
}

func (st *simStream) Destroy() error {
	st.pool.Close()
	return nil
}

func base(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf[:cap(buf)])))
}
