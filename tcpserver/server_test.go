package tcpserver

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netreactor/reactorsock/buffer"
	"github.com/netreactor/reactorsock/poll"
	"github.com/netreactor/reactorsock/socket"
)

func newTestPool(t *testing.T) *poll.Pool {
	t.Helper()
	p := poll.NewPool()
	require.NoError(t, p.Initialize(2))
	t.Cleanup(p.Release)
	return p
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServer_StartTwiceFails(t *testing.T) {
	pool := newTestPool(t)
	srv := NewServer("srv", pool)
	port := freePort(t)

	require.NoError(t, srv.Start(port, "", 0))
	defer srv.Stop()

	require.Error(t, srv.Start(port, "", 0))
}

func TestServer_EchoViaSession(t *testing.T) {
	pool := newTestPool(t)
	port := freePort(t)

	srv := NewServer("srv", pool, WithOnNewSession(func(sess *Session) {
		sess.SetOnReceived(func(view buffer.View) {
			sess.Send(view.Data())
		})
	}))
	require.NoError(t, srv.Start(port, "", 0))
	defer srv.Stop()

	cli := socket.New("cli", pool.Acquire())
	require.NoError(t, cli.Initialize(socket.TcpClient, true))
	defer cli.Close()

	received := make(chan []byte, 1)
	cli.SetOnReadCallback(func(view buffer.View, _ *socket.Addr) {
		got := make([]byte, view.ContentSize())
		copy(got, view.Data())
		received <- got
	})

	connectDone := make(chan error, 1)
	cli.Connect("127.0.0.1", port, func(err error) { connectDone <- err }, 2*time.Second)

	select {
	case err := <-connectDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("connect did not complete")
	}

	cli.Send([]byte("ping"), true)

	select {
	case got := <-received:
		assert.Equal(t, "ping", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("echo did not arrive")
	}
}

func TestServer_SessionRemoteAddrIsCached(t *testing.T) {
	pool := newTestPool(t)
	port := freePort(t)

	sessions := make(chan *Session, 1)
	srv := NewServer("srv", pool, WithOnNewSession(func(sess *Session) {
		sessions <- sess
	}))
	require.NoError(t, srv.Start(port, "", 0))
	defer srv.Stop()

	cli := socket.New("cli", pool.Acquire())
	require.NoError(t, cli.Initialize(socket.TcpClient, true))
	defer cli.Close()

	connectDone := make(chan error, 1)
	cli.Connect("127.0.0.1", port, func(err error) { connectDone <- err }, 2*time.Second)
	require.NoError(t, <-connectDone)

	select {
	case sess := <-sessions:
		addr := sess.RemoteAddr()
		require.NotNil(t, addr)
		tcpAddr, ok := addr.(*net.TCPAddr)
		require.True(t, ok)
		assert.Equal(t, "127.0.0.1", tcpAddr.IP.String())
	case <-time.After(2 * time.Second):
		t.Fatal("session was never announced")
	}
}

func TestServer_DisconnectedCallbackFiresOnClose(t *testing.T) {
	pool := newTestPool(t)
	port := freePort(t)

	disconnected := make(chan struct{}, 1)
	srv := NewServer("srv", pool, WithOnNewSession(func(sess *Session) {
		sess.SetOnDisconnected(func() { disconnected <- struct{}{} })
	}))
	require.NoError(t, srv.Start(port, "", 0))
	defer srv.Stop()

	cli := socket.New("cli", pool.Acquire())
	require.NoError(t, cli.Initialize(socket.TcpClient, true))

	connectDone := make(chan error, 1)
	cli.Connect("127.0.0.1", port, func(err error) { connectDone <- err }, 2*time.Second)
	require.NoError(t, <-connectDone)

	cli.Close()

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnected callback never fired")
	}
}

func TestServer_AcceptRateLimitDefersAnnouncement(t *testing.T) {
	pool := newTestPool(t)
	port := freePort(t)

	var announced int
	announcedCh := make(chan struct{}, 4)
	srv := NewServer("srv", pool,
		WithAcceptRateLimit(map[time.Duration]int{time.Second: 1}),
		WithOnNewSession(func(sess *Session) {
			announced++
			announcedCh <- struct{}{}
		}),
	)
	require.NoError(t, srv.Start(port, "", 0))
	defer srv.Stop()

	var clients []*socket.Socket
	for i := 0; i < 2; i++ {
		cli := socket.New("cli", pool.Acquire())
		require.NoError(t, cli.Initialize(socket.TcpClient, true))
		clients = append(clients, cli)
		done := make(chan error, 1)
		cli.Connect("127.0.0.1", port, func(err error) { done <- err }, 2*time.Second)
		require.NoError(t, <-done)
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	select {
	case <-announcedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("first session was never announced")
	}

	select {
	case <-announcedCh:
		t.Fatal("second session should have been deferred by the rate limit")
	case <-time.After(300 * time.Millisecond):
	}

	select {
	case <-announcedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("second session was never eventually announced")
	}
}
