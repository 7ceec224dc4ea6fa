// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package irondomo

import (
	"container/list"
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/waterviewsrl/IronDomo/internal/logger"
)

// ClientConfig configures a Client's connection and retry behavior.
type ClientConfig struct {
	Endpoint string
	Curve    *CurveCredentials

	Timeout time.Duration
	Retries int
}

// DefaultClientConfig returns conservative defaults matching the
// original's idcli_set_timeout/idcli_set_retries defaults (2.5s, 3
// attempts).
func DefaultClientConfig(endpoint string) ClientConfig {
	return ClientConfig{
		Endpoint: endpoint,
		Timeout:  2500 * time.Millisecond,
		Retries:  3,
	}
}

// inflightCall is bookkeeping for one outstanding asynchronous
// request: which service it targeted and when it was sent, so stale
// entries can be recognized and dropped even if no reply ever comes.
type inflightCall struct {
	service string
	sentAt  time.Time
}

// Client is the Irondomo client adapter: a DEALER socket connected to
// one broker endpoint, supporting both a synchronous retrying Send
// (idcli_send) and a split SendAsync/RecvAsync pair (idcli_send2/
// idcli_recv2) for pipelining multiple outstanding requests.
//
// Correlation for the async path is by send order, not by an
// application-level request ID: the wire format carries none, and
// nothing about a REPLY guarantees a worker echoed one back. This
// mirrors the original's same limitation. callOrder is a FIFO of
// service names in the order requests were sent; inflight additionally
// bounds how many are tracked so a client that never reads replies
// can't grow this queue without limit.
type Client struct {
	transport PeerTransport
	cfg       ClientConfig

	// dial opens a fresh transport to the broker. Send calls it to
	// reconnect between retries, mirroring Worker.connect(); tests
	// substitute a fake so reconnect exercises no live socket.
	dial func() (PeerTransport, error)

	callOrder *list.List // of string (service name), oldest first
	inflight  *lru.Cache[string, inflightCall]
	seq       uint64
}

// NewClient connects a Client to cfg.Endpoint. inflightCapacity bounds
// the async correlation cache; 0 selects a sane default.
func NewClient(cfg ClientConfig, inflightCapacity int) (*Client, error) {
	dial := func() (PeerTransport, error) {
		return NewZMQPeerTransport(cfg.Endpoint, "", cfg.Curve)
	}
	transport, err := dial()
	if err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultClientConfig(cfg.Endpoint).Timeout
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultClientConfig(cfg.Endpoint).Retries
	}
	if inflightCapacity <= 0 {
		inflightCapacity = 1024
	}
	cache, err := lru.New[string, inflightCall](inflightCapacity)
	if err != nil {
		return nil, fmt.Errorf("irondomo: new inflight cache: %w", err)
	}
	return &Client{
		transport: transport,
		dial:      dial,
		cfg:       cfg,
		callOrder: list.New(),
		inflight:  cache,
	}, nil
}

// Send performs a synchronous request/reply exchange against service,
// retrying up to cfg.Retries times on timeout. Grounded on idcli_send.
func (c *Client) Send(ctx context.Context, service string, payload [][]byte) ([][]byte, error) {
	retriesLeft := c.cfg.Retries
	for {
		select {
		case <-ctx.Done():
			return nil, ErrInterrupted
		default:
		}

		frames := append([][]byte{[]byte(""), []byte(ClientHeader), []byte(service)}, payload...)
		if err := c.transport.Send(frames); err != nil {
			return nil, err
		}

		ok, err := c.transport.Poll(c.cfg.Timeout)
		if err != nil {
			return nil, err
		}
		if ok {
			reply, err := c.transport.Recv()
			if err != nil {
				return nil, err
			}
			return parseClientReply(reply)
		}

		retriesLeft--
		if retriesLeft <= 0 {
			return nil, ErrSendFailed
		}
		logger.Warn(fmt.Sprintf("no reply from %s within %s, reconnecting and retrying (%d left)", service, c.cfg.Timeout, retriesLeft))
		if err := c.reconnect(); err != nil {
			return nil, err
		}
	}
}

// reconnect discards the current transport and dials a fresh one,
// mirroring the original's idcli_connect_to_broker call between
// retries in idcli_send: a broker that silently dropped the
// connection needs a new socket, not just another send on the old one.
func (c *Client) reconnect() error {
	_ = c.transport.Close()
	transport, err := c.dial()
	if err != nil {
		return err
	}
	c.transport = transport
	return nil
}

// SendAsync enqueues one request without waiting for a reply,
// recording it in send order so a later RecvAsync can report which
// service it most likely answers. Grounded on idcli_send2.
func (c *Client) SendAsync(service string, payload [][]byte) error {
	frames := append([][]byte{[]byte(""), []byte(ClientHeader), []byte(service)}, payload...)
	if err := c.transport.Send(frames); err != nil {
		return err
	}
	c.seq++
	key := fmt.Sprintf("%d", c.seq)
	c.inflight.Add(key, inflightCall{service: service, sentAt: time.Now()})
	c.callOrder.PushBack(key)
	return nil
}

// RecvAsync blocks up to timeout for the next reply and returns the
// service it correlates to (by send order) and its payload. Grounded
// on idcli_recv2.
func (c *Client) RecvAsync(timeout time.Duration) (service string, payload [][]byte, err error) {
	ok, err := c.transport.Poll(timeout)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrSendFailed
	}
	raw, err := c.transport.Recv()
	if err != nil {
		return "", nil, err
	}
	payload, err = parseClientReply(raw)
	if err != nil {
		return "", nil, err
	}

	elem := c.callOrder.Front()
	if elem == nil {
		return "", payload, nil
	}
	c.callOrder.Remove(elem)
	key := elem.Value.(string)
	call, _ := c.inflight.Get(key)
	c.inflight.Remove(key)
	return call.service, payload, nil
}

func parseClientReply(frames [][]byte) ([][]byte, error) {
	if len(frames) < 3 || len(frames[0]) != 0 || string(frames[1]) != ClientHeader {
		return nil, fmt.Errorf("%w: unexpected client reply header", ErrMalformedEnvelope)
	}
	return frames[3:], nil
}

// Close releases the client's connection.
func (c *Client) Close() error {
	return c.transport.Close()
}
