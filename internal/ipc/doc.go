// Package ipc carries the JSON-RPC surface between the carousel CLI and the
// daemon over a Unix domain socket. The server wraps daemon accessors; the
// client offers typed call wrappers so commands never touch net/rpc directly.
package ipc
