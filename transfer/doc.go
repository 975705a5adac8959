// Package transfer
// Author: momentics <momentics@gmail.com>
//
// Cross-tier and cross-device buffer copies, synchronous and asynchronous.
package transfer
