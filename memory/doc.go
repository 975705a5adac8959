// Package memory
// Author: momentics <momentics@gmail.com>
//
// Buffer providers implementing api.Memory: Reference gathers spans owned by
// someone else, Mutable wraps one writable span, and Allocated owns one span
// obtained from the fastest tier that can serve it.
package memory
