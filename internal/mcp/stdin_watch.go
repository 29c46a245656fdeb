package mcp

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// WatchStdin monitors for parent process death in a background
// goroutine. When the parent PID changes (the MCP host exited or
// restarted), it calls cancel to trigger graceful shutdown so server
// processes do not accumulate as zombies.
//
// IMPORTANT: This must NOT read from stdin — the MCP SDK's
// StdioTransport owns stdin exclusively. Reading from stdin here would
// steal bytes and corrupt the JSON-RPC protocol.
//
// The goroutine exits when ctx is canceled or parent death is detected.
func WatchStdin(ctx context.Context, cancel context.CancelFunc) {
	ppid := os.Getppid()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
				if os.Getppid() != ppid {
					slog.Warn("parent process died, initiating shutdown", "was_pid", ppid)
					cancel()
					return
				}
			}
		}
	}()
}
