package proxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDialerDirect(t *testing.T) {
	req := require.New(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	dial, err := NewDialer("", time.Second)
	req.NoError(err)

	conn, err := dial(context.Background(), "tcp", ln.Addr().String())
	req.NoError(err)
	req.NoError(conn.Close())
}

func TestNewDialerSocks(t *testing.T) {
	dial, err := NewDialer("127.0.0.1:1080", time.Second)
	require.NoError(t, err)
	require.NotNil(t, dial)
}
