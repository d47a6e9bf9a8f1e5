package proxy

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// DialContextFunc matches net.Dialer.DialContext.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// NewDialer returns a dial function that reaches the broker through a SOCKS5
// proxy, or directly when socksAddr is empty.
func NewDialer(socksAddr string, timeout time.Duration) (DialContextFunc, error) {
	direct := &net.Dialer{Timeout: timeout}
	if socksAddr == "" {
		return direct.DialContext, nil
	}

	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 %s: %w", socksAddr, err)
	}

	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}
