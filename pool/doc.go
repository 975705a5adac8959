// Package pool
// Author: momentics <momentics@gmail.com>
//
// Fixed-size memory pools for the two fast tiers. PinnedMemoryManager keeps
// one page-locked host arena per NUMA node mask and falls back to plain heap
// memory on demand; DeviceMemoryManager keeps one non-growable arena per
// accelerator. Both are usable as explicit instances or through the
// process-wide singletons in default.go.
package pool
