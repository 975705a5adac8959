// Package response
// Author: momentics <momentics@gmail.com>
//
// Acquisition boundary between response tensors and the memory tiers.
package response
