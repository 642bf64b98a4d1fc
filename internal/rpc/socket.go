package rpc

import (
	"net"
	"time"
)

// Socket abstracts the subset of *net.UDPConn the transport needs, so
// tests can exercise the dispatch and membership logic without opening
// real sockets.
type Socket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (n int, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// SocketFactory creates Sockets bound to a local address. Production code
// uses RealSocketFactory; tests substitute a fake.
type SocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (Socket, error)
}

// RealSocket wraps *net.UDPConn to implement Socket.
type RealSocket struct {
	conn *net.UDPConn
}

// NewRealSocket wraps an existing *net.UDPConn.
func NewRealSocket(conn *net.UDPConn) *RealSocket {
	return &RealSocket{conn: conn}
}

func (r *RealSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	return r.conn.ReadFromUDP(b)
}

func (r *RealSocket) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	return r.conn.WriteToUDP(b, addr)
}

func (r *RealSocket) SetReadBuffer(bytes int) error { return r.conn.SetReadBuffer(bytes) }

func (r *RealSocket) SetReadDeadline(t time.Time) error { return r.conn.SetReadDeadline(t) }

func (r *RealSocket) Close() error { return r.conn.Close() }

func (r *RealSocket) LocalAddr() net.Addr { return r.conn.LocalAddr() }

// RealSocketFactory implements SocketFactory using net.ListenUDP.
type RealSocketFactory struct{}

// ListenUDP binds a UDP socket. Passing a nil laddr.IP binds to all
// interfaces on the given port — used by the client, which broadcasts
// before it knows the leader's address.
func (RealSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (Socket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return NewRealSocket(conn), nil
}
