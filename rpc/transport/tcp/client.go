package tcp

import (
	"net"
	"time"

	"github.com/ValentinKolb/kvdown/rpc/transport"
	"github.com/ValentinKolb/kvdown/rpc/transport/base"
)

const (
	dialTimeout     = 5 * time.Second
	clientKeepAlive = 30 * time.Second
)

// clientConnector dials TCP connections with Nagle disabled, requests are
// small and latency bound
type clientConnector struct {
	dialer net.Dialer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	conn, err := c.dialer.Dial("tcp", endpoint)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPClientTransport creates a new TCP client transport
func NewTCPClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{
		dialer: net.Dialer{Timeout: dialTimeout, KeepAlive: clientKeepAlive},
	})
}
