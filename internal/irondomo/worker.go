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
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/waterviewsrl/IronDomo/internal/logger"
)

// WorkerConfig configures a Worker's connection, identity and
// heartbeat tuning.
type WorkerConfig struct {
	Endpoint string
	Service  string
	Curve    *CurveCredentials

	HeartbeatInterval time.Duration
	HeartbeatLiveness int
	ReconnectInterval time.Duration
}

// DefaultWorkerConfig returns the RFC defaults for heartbeat interval,
// liveness and reconnect backoff.
func DefaultWorkerConfig(endpoint, service string) WorkerConfig {
	return WorkerConfig{
		Endpoint:          endpoint,
		Service:           service,
		HeartbeatInterval: DefaultHeartbeatInterval * time.Millisecond,
		HeartbeatLiveness: DefaultHeartbeatLiveness,
		ReconnectInterval: DefaultHeartbeatInterval * time.Millisecond,
	}
}

// Handler computes a reply for one request payload. Returning an
// error causes the worker to reply with a single frame describing the
// failure rather than crash the worker loop.
type Handler func(ctx context.Context, request [][]byte) ([][]byte, error)

// workerIdentity returns a unique identity for service: the service
// name followed by a random UUID suffix, guarding against the
// collision risk a short random suffix would carry under the
// original's naming scheme. Grounded on the teacher's hub identity
// generation (GenerateHubID).
func workerIdentity(service string) string {
	return fmt.Sprintf("%s-%s", service, uuid.New().String())
}

// Worker is the Irondomo worker adapter: it connects a DEALER socket,
// announces READY for one service, then loops receiving REQUEST
// frames, invoking a Handler, and replying, all while tracking its
// own heartbeat liveness against the broker. Grounded on
// idwrk_recv's combined send-pending-reply/poll/return-next-request
// loop.
type Worker struct {
	cfg      WorkerConfig
	identity string
	handler  Handler

	transport PeerTransport

	liveness    int
	heartbeatAt time.Time
	expiry      time.Time
}

// NewWorker connects a Worker to cfg.Endpoint and sends READY for
// cfg.Service. identity prefixes with cfg.Service are rejected by the
// broker's MMI reservation, so the generated identity never begins
// with "mmi.".
func NewWorker(cfg WorkerConfig, handler Handler) (*Worker, error) {
	if cfg.HeartbeatInterval == 0 {
		def := DefaultWorkerConfig(cfg.Endpoint, cfg.Service)
		cfg.HeartbeatInterval = def.HeartbeatInterval
		cfg.HeartbeatLiveness = def.HeartbeatLiveness
		cfg.ReconnectInterval = def.ReconnectInterval
	}

	identity := workerIdentity(cfg.Service)
	w := &Worker{cfg: cfg, identity: identity, handler: handler}
	if err := w.connect(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Worker) connect() error {
	transport, err := NewZMQPeerTransport(w.cfg.Endpoint, w.identity, w.cfg.Curve)
	if err != nil {
		return err
	}
	w.transport = transport
	w.liveness = w.cfg.HeartbeatLiveness
	now := time.Now()
	w.heartbeatAt = now.Add(w.cfg.HeartbeatInterval)
	w.expiry = now.Add(w.cfg.HeartbeatInterval * time.Duration(w.cfg.HeartbeatLiveness))

	if err := w.transport.Send(encodeWorkerMessage("", CmdReady, [][]byte{[]byte(w.cfg.Service)})[1:]); err != nil {
		return err
	}
	logger.Debug("worker " + w.identity + " ready for service " + w.cfg.Service)
	return nil
}

// Run polls for REQUEST/HEARTBEAT/DISCONNECT frames until ctx is
// cancelled, invoking handler for each REQUEST and replying with its
// result. If the broker's heartbeats lapse past liveness, the worker
// reconnects from scratch, matching the original's expire_at handling
// in idwrk_recv.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pollTimeout := w.cfg.HeartbeatInterval
		ok, err := w.transport.Poll(pollTimeout)
		if err != nil {
			return err
		}

		if ok {
			raw, err := w.transport.Recv()
			if err != nil {
				logger.Warn("worker recv failed: " + err.Error())
				continue
			}
			if err := w.handleFrames(ctx, raw); err != nil {
				logger.Warn("worker dropping malformed message: " + err.Error())
			}
			w.liveness = w.cfg.HeartbeatLiveness
		} else if time.Now().After(w.expiry) {
			logger.Warn("worker " + w.identity + " lost contact with broker, reconnecting")
			_ = w.transport.Close()
			time.Sleep(w.cfg.ReconnectInterval)
			if err := w.connect(); err != nil {
				return err
			}
			continue
		}

		w.sendHeartbeatIfDue()
	}
}

func (w *Worker) handleFrames(ctx context.Context, raw [][]byte) error {
	if len(raw) < 3 || len(raw[0]) != 0 || string(raw[1]) != WorkerHeader {
		return fmt.Errorf("%w: unexpected worker frame header", ErrMalformedEnvelope)
	}
	cmdFrame := raw[2]
	if len(cmdFrame) != 1 {
		return fmt.Errorf("%w: bad command frame", ErrMalformedEnvelope)
	}
	cmd := cmdFrame[0]
	body := raw[3:]

	switch cmd {
	case CmdRequest:
		return w.handleRequest(ctx, body)
	case CmdHeartbeat:
		return nil
	case CmdDisconnect:
		return w.connect()
	default:
		return fmt.Errorf("%w: unexpected command %s", ErrMalformedEnvelope, commandName(cmd))
	}
}

func (w *Worker) handleRequest(ctx context.Context, body [][]byte) error {
	clientID, clientCh, payload, err := decodeEmbeddedClientEnvelope(body)
	if err != nil {
		return err
	}

	reply, err := w.handler(ctx, payload)
	if err != nil {
		reply = [][]byte{[]byte("error: " + err.Error())}
	}

	replyBody := encodeEmbeddedClientFrames(clientID, clientCh, reply)
	frames := encodeWorkerMessage(w.identity, CmdReply, replyBody)[1:]
	return w.transport.Send(frames)
}

func (w *Worker) sendHeartbeatIfDue() {
	now := time.Now()
	if now.Before(w.heartbeatAt) {
		return
	}
	frames := encodeWorkerMessage(w.identity, CmdHeartbeat, nil)[1:]
	if err := w.transport.Send(frames); err != nil {
		logger.Warn("worker heartbeat send failed: " + err.Error())
	}
	w.heartbeatAt = now.Add(w.cfg.HeartbeatInterval)
}

// Close sends DISCONNECT and releases the worker's connection.
func (w *Worker) Close() error {
	frames := encodeWorkerMessage(w.identity, CmdDisconnect, nil)[1:]
	_ = w.transport.Send(frames)
	return w.transport.Close()
}
