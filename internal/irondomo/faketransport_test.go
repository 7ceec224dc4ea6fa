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
	"time"
)

// fakeMessage is one recorded Send, keyed by which channel it went
// out on and who it was addressed to.
type fakeMessage struct {
	channel Channel
	frames  [][]byte
}

// fakeTransport is an in-memory Transport used to drive Broker
// without a live libzmq context, the same way the teacher's
// MockRequestHandler lets hermes's broker tests run without real
// sockets. Inbound messages are queued with deliver*; outbound sends
// are recorded in sent for assertions.
type fakeTransport struct {
	inbox []fakeMessage
	sent  []fakeMessage
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

// deliverWorker queues a worker-protocol message as if received on ch
// from identity.
func (f *fakeTransport) deliverWorker(ch Channel, identity string, cmd byte, body [][]byte) {
	frames := append([][]byte{[]byte(""), []byte(WorkerHeader), {cmd}}, body...)
	f.inbox = append(f.inbox, fakeMessage{channel: ch, frames: append([][]byte{[]byte(identity)}, frames...)})
}

// deliverClient queues a client-protocol message as if received on ch
// from identity, addressed to service.
func (f *fakeTransport) deliverClient(ch Channel, identity, service string, payload [][]byte) {
	frames := append([][]byte{[]byte(""), []byte(ClientHeader), []byte(service)}, payload...)
	f.inbox = append(f.inbox, fakeMessage{channel: ch, frames: append([][]byte{[]byte(identity)}, frames...)})
}

func (f *fakeTransport) Poll(timeout time.Duration) (Channel, bool, error) {
	if len(f.inbox) == 0 {
		return ChannelClear, false, nil
	}
	return f.inbox[0].channel, true, nil
}

func (f *fakeTransport) Recv(ch Channel) (string, [][]byte, error) {
	msg := f.inbox[0]
	f.inbox = f.inbox[1:]
	identity := string(msg.frames[0])
	return identity, msg.frames[1:], nil
}

func (f *fakeTransport) Send(ch Channel, frames [][]byte) error {
	cp := make([][]byte, len(frames))
	copy(cp, frames)
	f.sent = append(f.sent, fakeMessage{channel: ch, frames: cp})
	return nil
}

func (f *fakeTransport) Close() error { return nil }

// sentTo returns every recorded Send addressed to identity (frames[0]).
func (f *fakeTransport) sentTo(identity string) []fakeMessage {
	var out []fakeMessage
	for _, m := range f.sent {
		if string(m.frames[0]) == identity {
			out = append(out, m)
		}
	}
	return out
}
