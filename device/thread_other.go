//go:build !linux

// File: device/thread_other.go
// Author: momentics <momentics@gmail.com>
//
// Without a thread id every OS thread shares one simulated device context.

package device

func threadID() int { return 0 }
