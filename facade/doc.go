// Package facade
// Author: momentics <momentics@gmail.com>
//
// Single entry point that starts and stops the memory layer from a
// control.Config.
package facade
