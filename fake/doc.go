// Package fake
// Author: momentics <momentics@gmail.com>
//
// Test doubles for hioload-mem.
package fake
