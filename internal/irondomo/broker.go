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
	"time"

	"github.com/waterviewsrl/IronDomo/internal/logger"
)

// Broker is a single-threaded Irondomo broker: it owns every service
// and worker record and processes exactly one inbound message per
// iteration of Run's loop, the same event-driven shape as the
// original s_broker_loop. Concurrency safety comes from never being
// called from more than one goroutine, not from locking.
type Broker struct {
	transport Transport

	heartbeatInterval time.Duration
	heartbeatLiveness int

	services map[string]*service
	workers  map[string]*worker

	// heartbeatAt is the next instant a heartbeat sweep is due. The
	// Run loop may iterate far more often than the heartbeat interval
	// (every client request triggers an iteration), so heartbeats are
	// throttled to this schedule rather than sent every pass.
	heartbeatAt time.Time

	// waiting is the broker-wide FIFO of idle workers ordered by
	// heartbeat expiry (oldest first), mirroring the original's
	// zlist waiting queue. Because every worker's expiry advances by
	// the same fixed interval on each heartbeat, insertion order is
	// always expiry order, so purge only ever needs to look at the
	// head.
	waiting *list.List
}

// NewBroker constructs a Broker bound to the given transport. The
// transport must already have bound whatever sockets it needs; the
// broker never dials or binds itself.
func NewBroker(transport Transport) *Broker {
	return &Broker{
		transport:         transport,
		heartbeatInterval: DefaultHeartbeatInterval * time.Millisecond,
		heartbeatLiveness: DefaultHeartbeatLiveness,
		services:          make(map[string]*service),
		workers:           make(map[string]*worker),
		waiting:           list.New(),
		heartbeatAt:       time.Now().Add(DefaultHeartbeatInterval * time.Millisecond),
	}
}

// Run processes messages until ctx is cancelled or the transport
// returns a fatal error. Every iteration polls with a timeout equal
// to the heartbeat interval, processes at most one message, then
// unconditionally purges expired workers and sends heartbeats to
// those now due — matching the original's "always run the heartbeat
// pass, whether or not a message arrived" structure.
func (b *Broker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ch, ok, err := b.transport.Poll(b.heartbeatInterval)
		if err != nil {
			return err
		}
		if ok {
			identity, raw, err := b.transport.Recv(ch)
			if err != nil {
				logger.Warn("dropping unreadable message: " + err.Error())
			} else if err := b.dispatchEnvelope(ch, identity, raw); err != nil {
				logger.Warn("dropping malformed message: " + err.Error())
			}
		}

		b.purge()
		b.sendHeartbeats()
	}
}

func (b *Broker) dispatchEnvelope(ch Channel, identity string, raw [][]byte) error {
	env, err := DecodeEnvelope(identity, raw)
	if err != nil {
		return err
	}
	switch env.Kind {
	case KindWorker:
		b.handleWorkerMessage(ch, env)
	case KindClient:
		b.handleClientMessage(ch, env)
	}
	return nil
}

// --- worker-side state machine, grounded on s_broker_worker_msg ---

func (b *Broker) handleWorkerMessage(ch Channel, env Envelope) {
	cmd := env.Frames[0][0]
	body := env.Frames[1:]
	identity := env.Identity

	_, known := b.workers[identity]

	switch cmd {
	case CmdReady:
		if HasReservedPrefix(identity) {
			logger.Warn("rejecting worker with reserved identity: " + identity)
			b.deleteWorker(identity, false)
			return
		}
		if len(body) < 1 {
			logger.Warn("READY missing service name from " + identity)
			b.deleteWorker(identity, true)
			return
		}
		if known {
			// A worker re-sending READY is protocol abuse; drop it.
			b.deleteWorker(identity, true)
			return
		}
		svcName := string(body[0])
		w := b.requireWorker(identity, ch)
		w.service = b.requireService(svcName)
		w.service.workers++
		b.workerWaiting(w)

	case CmdReply:
		if !known {
			b.send(ch, encodeWorkerMessage(identity, CmdDisconnect, nil))
			return
		}
		w := b.workers[identity]
		clientID, clientCh, rest, err := decodeEmbeddedClientEnvelope(body)
		if err != nil {
			logger.Warn("malformed REPLY from " + identity + ": " + err.Error())
			b.deleteWorker(identity, true)
			return
		}
		b.send(clientCh, encodeClientMessage(clientID, w.service.name, rest))
		b.workerWaiting(w)

	case CmdHeartbeat:
		if !known {
			b.send(ch, encodeWorkerMessage(identity, CmdDisconnect, nil))
			return
		}
		w := b.workers[identity]
		w.expiry = time.Now().Add(b.heartbeatInterval * time.Duration(b.heartbeatLiveness))

	case CmdDisconnect:
		b.deleteWorker(identity, false)

	default:
		logger.Warn("unexpected command " + commandName(cmd) + " from " + identity)
	}
}

// requireWorker returns the existing worker record for identity, or
// creates a fresh one. Mirrors s_worker_require.
func (b *Broker) requireWorker(identity string, ch Channel) *worker {
	if w, ok := b.workers[identity]; ok {
		return w
	}
	w := &worker{identity: identity, channel: ch}
	b.workers[identity] = w
	logger.Debug("registering new worker: " + identity)
	return w
}

// requireService returns the service record named name, creating it
// if this is the first worker or request to reference it. Service
// records are never garbage collected afterward, even once empty,
// matching s_service_require.
func (b *Broker) requireService(name string) *service {
	if s, ok := b.services[name]; ok {
		return s
	}
	s := newService(name)
	b.services[name] = s
	logger.Debug("registering new service: " + name)
	return s
}

// workerWaiting marks w idle: pushes it onto both its service's idle
// FIFO and the broker-wide expiry-ordered waiting list, refreshes its
// expiry, then attempts to dispatch any backlog the service already
// has queued. Mirrors s_worker_waiting.
func (b *Broker) workerWaiting(w *worker) {
	w.service.addIdleWorker(w)
	w.expiry = time.Now().Add(b.heartbeatInterval * time.Duration(b.heartbeatLiveness))
	w.waitingElem = b.waiting.PushBack(w)
	b.dispatch(w.service)
}

// deleteWorker removes w's bookkeeping everywhere it is referenced:
// its service's idle FIFO, the broker-wide waiting list, and the
// identity table. If disconnect is true a DISCONNECT command is sent
// to the worker first, matching s_worker_delete's present flag.
func (b *Broker) deleteWorker(identity string, disconnect bool) {
	w, ok := b.workers[identity]
	if !ok {
		return
	}
	if disconnect {
		b.send(w.channel, encodeWorkerMessage(identity, CmdDisconnect, nil))
	}
	if w.service != nil {
		w.service.removeIdleWorker(w)
		w.service.workers--
	}
	if w.waitingElem != nil {
		b.waiting.Remove(w.waitingElem)
	}
	delete(b.workers, identity)
	logger.Debug("deleting worker: " + identity)
}

// --- client-side handling, grounded on s_broker_client_msg ---

func (b *Broker) handleClientMessage(ch Channel, env Envelope) {
	svcName := string(env.Frames[0])
	payload := env.Frames[1:]

	if HasReservedPrefix(svcName) {
		b.handleMMIRequest(ch, env.Identity, svcName, payload)
		return
	}

	svc := b.requireService(svcName)
	req := &pendingRequest{clientID: env.Identity, channel: ch, service: svcName, payload: payload}
	svc.enqueueRequest(req)
	b.dispatch(svc)
}

// handleMMIRequest answers the broker's own management-interface
// pseudo-service. mmi.service reports whether a service exists and has
// at least one worker ("200"/"404"); every other mmi.* name is
// unimplemented ("501"). Grounded on the original's MMI branch in
// s_broker_client_msg.
func (b *Broker) handleMMIRequest(ch Channel, clientID, svcName string, payload [][]byte) {
	var code string
	if svcName == "mmi.service" && len(payload) >= 1 {
		target := string(payload[0])
		if svc, ok := b.services[target]; ok && svc.workers > 0 {
			code = "200"
		} else {
			code = "404"
		}
	} else {
		code = "501"
	}
	b.send(ch, encodeClientMessage(clientID, svcName, [][]byte{[]byte(code)}))
}

// dispatch pairs queued requests with idle workers for svc, one pair
// per call until either side runs dry. Called both when a new request
// arrives and when a worker becomes idle again. Mirrors
// s_service_dispatch.
func (b *Broker) dispatch(svc *service) {
	for {
		req := svc.requests.Front()
		if req == nil {
			return
		}
		w := svc.popIdleWorker()
		if w == nil {
			return
		}
		if w.waitingElem != nil {
			b.waiting.Remove(w.waitingElem)
			w.waitingElem = nil
		}

		svc.requests.Remove(req)
		pr := req.Value.(*pendingRequest)

		body := encodeEmbeddedClientFrames(pr.clientID, pr.channel, pr.payload)
		b.send(w.channel, encodeWorkerMessage(w.identity, CmdRequest, body))
	}
}

// purge walks the waiting list from its oldest-expiry head and
// deletes every worker whose heartbeat has lapsed, stopping at the
// first worker still alive. This is safe in O(k) rather than O(n)
// because every worker's expiry is refreshed by the same constant
// interval, so the list stays expiry-ordered without needing to be
// re-sorted. Grounded on s_broker_purge.
func (b *Broker) purge() {
	now := time.Now()
	for {
		elem := b.waiting.Front()
		if elem == nil {
			return
		}
		w := elem.Value.(*worker)
		if w.expiry.After(now) {
			return
		}
		logger.Debug("expiring worker: " + w.identity)
		b.deleteWorker(w.identity, false)
	}
}

// sendHeartbeats sends a HEARTBEAT to every idle worker once per
// heartbeat interval, matching the original's heartbeat_at schedule:
// busy workers get an implicit heartbeat the next time they go idle,
// since workerWaiting resets their expiry.
func (b *Broker) sendHeartbeats() {
	now := time.Now()
	if now.Before(b.heartbeatAt) {
		return
	}
	for elem := b.waiting.Front(); elem != nil; elem = elem.Next() {
		w := elem.Value.(*worker)
		b.send(w.channel, encodeWorkerMessage(w.identity, CmdHeartbeat, nil))
	}
	b.heartbeatAt = now.Add(b.heartbeatInterval)
}

// send writes frames to the transport and logs, rather than panics or
// propagates, on failure: a single bad peer connection should never
// bring down the broker loop.
func (b *Broker) send(ch Channel, frames [][]byte) {
	if err := b.transport.Send(ch, frames); err != nil {
		logger.Warn("send failed: " + err.Error())
	}
}

// Close releases the broker's transport.
func (b *Broker) Close() error {
	return b.transport.Close()
}
