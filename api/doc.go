// Package api
// Author: momentics <momentics@gmail.com>
//
// Pure contracts of hioload-mem: memory tiers, buffer attributes, the
// buffer-provider interface, executor and host-policy definitions, and the
// structured error taxonomy. No package here depends on any other package of
// the module.
package api
