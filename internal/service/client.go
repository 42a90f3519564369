package service

import (
	"context"
	"net"
	"strings"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/mrstats/moments"
)

// Network returns the network type and address for addr. An address
// containing a slash, or with no port, names a Unix-domain socket; otherwise
// addr is a TCP host:port.
func Network(addr string) (network, address string) {
	if strings.Contains(addr, "/") || !strings.Contains(addr, ":") {
		return "unix", addr
	}
	return "tcp", addr
}

// A Client calls the methods of a remote Service.
type Client struct {
	cli *jrpc2.Client
}

// NewClient returns a Client that delivers calls through cli.
func NewClient(cli *jrpc2.Client) *Client { return &Client{cli: cli} }

// Dial connects to the service at addr. See Network for the address format.
func Dial(ctx context.Context, addr string) (*Client, error) {
	network, address := Network(addr)
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return NewClient(jrpc2.NewClient(channel.Line(conn, conn), nil)), nil
}

// Close closes the connection to the service.
func (c *Client) Close() error { return c.cli.Close() }

// Fold sends record lines to be folded by the service.
func (c *Client) Fold(ctx context.Context, lines []string) (*FoldReply, error) {
	var rsp FoldReply
	if err := c.cli.CallResult(ctx, "Fold", FoldRequest{Lines: lines}, &rsp); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// Merge merges a partial state into the service, and returns the new state.
func (c *Client) Merge(ctx context.Context, part moments.State) (moments.State, error) {
	var rsp moments.State
	err := c.cli.CallResult(ctx, "Merge", part, &rsp)
	return rsp, err
}

// Result returns the current summary of the service.
func (c *Client) Result(ctx context.Context) (*ResultReply, error) {
	var rsp ResultReply
	if err := c.cli.CallResult(ctx, "Result", nil, &rsp); err != nil {
		return nil, err
	}
	return &rsp, nil
}

// State returns the current raw state of the service.
func (c *Client) State(ctx context.Context) (moments.State, error) {
	var rsp moments.State
	err := c.cli.CallResult(ctx, "State", nil, &rsp)
	return rsp, err
}

// Reset clears the state of the service, and returns the state before the
// reset.
func (c *Client) Reset(ctx context.Context) (moments.State, error) {
	var rsp moments.State
	err := c.cli.CallResult(ctx, "Reset", nil, &rsp)
	return rsp, err
}
