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
	"fmt"
	"time"

	"github.com/pebbe/zmq4"
)

// CurveCredentials holds a Z85-encoded CURVE keypair. ServerKey is
// only needed by clients and workers talking to a CURVE-protected
// broker endpoint; it is the broker's public key.
type CurveCredentials struct {
	PublicKey string
	SecretKey string
	ServerKey string
}

// Transport is the broker side of the wire: two ROUTER sockets (clear
// and, optionally, CURVE-protected) polled together. It is the seam
// that lets broker.go be tested without a live libzmq context — see
// faketransport_test.go.
type Transport interface {
	// Poll blocks up to timeout waiting for a message on either
	// channel, returning which channel became ready. A zero Channel
	// value with ok=false means the timeout elapsed.
	Poll(timeout time.Duration) (ch Channel, ok bool, err error)

	// Recv reads one multi-part message off the given channel. Must
	// only be called right after Poll reports that channel ready.
	Recv(ch Channel) (identity string, frames [][]byte, err error)

	// Send writes one multi-part message (identity frame included)
	// to the given channel.
	Send(ch Channel, frames [][]byte) error

	// Close releases both sockets and any authenticator.
	Close() error
}

// zmqTransport is the production Transport, backed by pebbe/zmq4
// ROUTER sockets. The clear channel is always bound; the curve
// channel is only bound when curveEndpoint is non-empty.
type zmqTransport struct {
	clear  *zmq4.Socket
	curve  *zmq4.Socket
	poller *zmq4.Poller
	auth   *authenticator

	hasCurve bool
}

// NewZMQTransport binds the clear endpoint, and additionally binds
// and CURVE-secures curveEndpoint when it is non-empty. linger/hwm
// follow the teacher's gateway socket tuning conventions.
func NewZMQTransport(clearEndpoint, curveEndpoint string, creds CurveCredentials) (Transport, error) {
	clear, err := zmq4.NewSocket(zmq4.ROUTER)
	if err != nil {
		return nil, fmt.Errorf("irondomo: new clear router socket: %w", err)
	}
	if err := tuneRouter(clear); err != nil {
		return nil, err
	}
	if err := clear.Bind(clearEndpoint); err != nil {
		return nil, fmt.Errorf("irondomo: bind clear endpoint %s: %w", clearEndpoint, err)
	}

	t := &zmqTransport{clear: clear}

	if curveEndpoint != "" {
		var auth *authenticator
		auth, err = newAuthenticator()
		if err != nil {
			return nil, err
		}

		curve, err := zmq4.NewSocket(zmq4.ROUTER)
		if err != nil {
			return nil, fmt.Errorf("irondomo: new curve router socket: %w", err)
		}
		if err := tuneRouter(curve); err != nil {
			return nil, err
		}
		if err := curve.ServerAuthCurve("*", creds.SecretKey); err != nil {
			return nil, fmt.Errorf("irondomo: enable curve on router socket: %w", err)
		}
		if err := curve.Bind(curveEndpoint); err != nil {
			return nil, fmt.Errorf("irondomo: bind curve endpoint %s: %w", curveEndpoint, err)
		}

		t.curve = curve
		t.auth = auth
		t.hasCurve = true
	}

	poller := zmq4.NewPoller()
	poller.Add(clear, zmq4.POLLIN)
	if t.hasCurve {
		poller.Add(t.curve, zmq4.POLLIN)
	}
	t.poller = poller

	return t, nil
}

func tuneRouter(sock *zmq4.Socket) error {
	if err := sock.SetLinger(0); err != nil {
		return fmt.Errorf("irondomo: set linger: %w", err)
	}
	if err := sock.SetRcvhwm(10000); err != nil {
		return fmt.Errorf("irondomo: set rcvhwm: %w", err)
	}
	if err := sock.SetSndhwm(10000); err != nil {
		return fmt.Errorf("irondomo: set sndhwm: %w", err)
	}
	return nil
}

func (t *zmqTransport) Poll(timeout time.Duration) (Channel, bool, error) {
	polled, err := t.poller.Poll(timeout)
	if err != nil {
		return ChannelClear, false, fmt.Errorf("irondomo: poll: %w", err)
	}
	for _, p := range polled {
		switch p.Socket {
		case t.clear:
			return ChannelClear, true, nil
		case t.curve:
			return ChannelCurve, true, nil
		}
	}
	return ChannelClear, false, nil
}

func (t *zmqTransport) socketFor(ch Channel) *zmq4.Socket {
	if ch == ChannelCurve {
		return t.curve
	}
	return t.clear
}

func (t *zmqTransport) Recv(ch Channel) (string, [][]byte, error) {
	sock := t.socketFor(ch)
	msg, err := sock.RecvMessageBytes(0)
	if err != nil {
		return "", nil, fmt.Errorf("irondomo: recv on %s channel: %w", ch, err)
	}
	if len(msg) < 1 {
		return "", nil, fmt.Errorf("%w: empty message", ErrMalformedEnvelope)
	}
	return string(msg[0]), msg[1:], nil
}

func (t *zmqTransport) Send(ch Channel, frames [][]byte) error {
	sock := t.socketFor(ch)
	if _, err := sock.SendMessage(frames); err != nil {
		return fmt.Errorf("irondomo: send on %s channel: %w", ch, err)
	}
	return nil
}

func (t *zmqTransport) Close() error {
	if t.auth != nil {
		t.auth.stop()
	}
	if t.curve != nil {
		_ = t.curve.Close()
	}
	if err := t.clear.Close(); err != nil {
		return fmt.Errorf("irondomo: close clear socket: %w", err)
	}
	return nil
}

// PeerTransport is the client/worker side of the wire: a single
// DEALER socket connected to one broker endpoint, optionally
// CURVE-secured. Client and Worker both depend on this interface
// rather than *zmq4.Socket directly, for the same fake-backed testing
// reason Transport exists on the broker side.
type PeerTransport interface {
	Send(frames [][]byte) error
	Recv() (frames [][]byte, err error)
	// Poller returns whatever is needed to wait for readability with
	// a timeout; Poll blocks up to timeout and reports whether a
	// message became available.
	Poll(timeout time.Duration) (ok bool, err error)
	Close() error
}

type zmqPeerTransport struct {
	sock   *zmq4.Socket
	poller *zmq4.Poller
}

// NewZMQPeerTransport connects a DEALER socket identified by identity
// to endpoint. When creds.ServerKey is non-empty the connection is
// CURVE-secured using creds as the client's own keypair, matching
// idcli_setup_curve/idwrk_setup_curve.
func NewZMQPeerTransport(endpoint, identity string, creds *CurveCredentials) (PeerTransport, error) {
	sock, err := zmq4.NewSocket(zmq4.DEALER)
	if err != nil {
		return nil, fmt.Errorf("irondomo: new dealer socket: %w", err)
	}
	if err := sock.SetIdentity(identity); err != nil {
		return nil, fmt.Errorf("irondomo: set dealer identity: %w", err)
	}
	if err := sock.SetLinger(0); err != nil {
		return nil, fmt.Errorf("irondomo: set linger: %w", err)
	}

	if creds != nil && creds.ServerKey != "" {
		if err := sock.ClientAuthCurve(creds.ServerKey, creds.PublicKey, creds.SecretKey); err != nil {
			return nil, fmt.Errorf("irondomo: enable curve on dealer socket: %w", err)
		}
	}

	if err := sock.Connect(endpoint); err != nil {
		return nil, fmt.Errorf("irondomo: connect to %s: %w", endpoint, err)
	}

	poller := zmq4.NewPoller()
	poller.Add(sock, zmq4.POLLIN)

	return &zmqPeerTransport{sock: sock, poller: poller}, nil
}

func (t *zmqPeerTransport) Send(frames [][]byte) error {
	if _, err := t.sock.SendMessage(frames); err != nil {
		return fmt.Errorf("irondomo: peer send: %w", err)
	}
	return nil
}

func (t *zmqPeerTransport) Recv() ([][]byte, error) {
	msg, err := t.sock.RecvMessageBytes(0)
	if err != nil {
		return nil, fmt.Errorf("irondomo: peer recv: %w", err)
	}
	return msg, nil
}

func (t *zmqPeerTransport) Poll(timeout time.Duration) (bool, error) {
	polled, err := t.poller.Poll(timeout)
	if err != nil {
		return false, fmt.Errorf("irondomo: peer poll: %w", err)
	}
	return len(polled) > 0, nil
}

func (t *zmqPeerTransport) Close() error {
	if err := t.sock.Close(); err != nil {
		return fmt.Errorf("irondomo: close peer socket: %w", err)
	}
	return nil
}
