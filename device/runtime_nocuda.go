//go:build !cuda

// File: device/runtime_nocuda.go
// Author: momentics <momentics@gmail.com>
//
// Builds without the cuda tag carry no device runtime. Install one with
// SetDefault, for example a SimRuntime.

package device

func platformRuntime() Runtime { return nil }
