//go:build !linux

package wsserver

import (
	"context"
	"net"
)

// Open the TCP listener. Socket options are left to the platform defaults.
func listen(ctx context.Context, addr string, reusePort bool) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}
