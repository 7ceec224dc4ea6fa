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
	"time"
)

// worker is the broker's record of one connected worker. It is indexed
// by identity in Broker.workers (an arena, not an owning tree), and
// wired into two container/list FIFOs by element reference so it can
// be unlinked from either in O(1): the service's idle queue, and the
// broker-wide expiry-ordered waiting list.
type worker struct {
	identity string
	service  *service
	channel  Channel
	expiry   time.Time

	// waitingElem is this worker's node in Broker.waiting, present
	// only while the worker is idle. nil when the worker is busy.
	waitingElem *list.Element
}

// pendingRequest is a client request queued against a service because
// no worker was idle to take it immediately.
type pendingRequest struct {
	clientID string
	channel  Channel
	service  string
	payload  [][]byte
}

// service is the broker's record of one named service: the FIFO of
// workers currently idle and able to take work, and the FIFO of
// requests waiting for a worker to become idle.
type service struct {
	name     string
	requests *list.List // of *pendingRequest
	waiting  *list.List // of *worker, idle workers for this service

	// workers counts every worker currently attached to this service,
	// idle or busy, so MMI's mmi.service query can answer "does this
	// service have at least one registered worker" without conflating
	// that with "does it have an idle one" (waiting.Len() only counts
	// idle workers).
	workers int

	// workerElems maps a worker identity to its element in waiting,
	// so a worker picked up for dispatch (or disconnected) can be
	// unlinked in O(1) without a linear scan.
	workerElems map[string]*list.Element
}

func newService(name string) *service {
	return &service{
		name:        name,
		requests:    list.New(),
		waiting:     list.New(),
		workerElems: make(map[string]*list.Element),
	}
}

// addIdleWorker appends w to the service's idle FIFO.
func (s *service) addIdleWorker(w *worker) {
	elem := s.waiting.PushBack(w)
	s.workerElems[w.identity] = elem
}

// popIdleWorker removes and returns the oldest idle worker for this
// service, or nil if none are idle.
func (s *service) popIdleWorker() *worker {
	elem := s.waiting.Front()
	if elem == nil {
		return nil
	}
	s.waiting.Remove(elem)
	w := elem.Value.(*worker)
	delete(s.workerElems, w.identity)
	return w
}

// removeIdleWorker unlinks w from the idle FIFO if present. Safe to
// call on a worker that is not currently idle (busy workers are not
// in workerElems).
func (s *service) removeIdleWorker(w *worker) {
	if elem, ok := s.workerElems[w.identity]; ok {
		s.waiting.Remove(elem)
		delete(s.workerElems, w.identity)
	}
}

// enqueueRequest appends a request to the service's backlog.
func (s *service) enqueueRequest(req *pendingRequest) {
	s.requests.PushBack(req)
}

// dequeueRequest removes and returns the oldest queued request for
// this service, or nil if the backlog is empty.
func (s *service) dequeueRequest() *pendingRequest {
	elem := s.requests.Front()
	if elem == nil {
		return nil
	}
	s.requests.Remove(elem)
	return elem.Value.(*pendingRequest)
}
