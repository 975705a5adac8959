//go:build linux

// File: device/thread_linux.go
// Author: momentics <momentics@gmail.com>

package device

import "golang.org/x/sys/unix"

func threadID() int { return unix.Gettid() }
