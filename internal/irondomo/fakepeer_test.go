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
)

// fakePeerTransport is an in-memory PeerTransport for exercising
// Client and Worker without a live libzmq context.
type fakePeerTransport struct {
	inbox  [][][]byte
	sent   [][][]byte
	closed int
}

func newFakePeerTransport() *fakePeerTransport {
	return &fakePeerTransport{}
}

func (f *fakePeerTransport) deliver(frames [][]byte) {
	f.inbox = append(f.inbox, frames)
}

func (f *fakePeerTransport) Send(frames [][]byte) error {
	cp := make([][]byte, len(frames))
	copy(cp, frames)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakePeerTransport) Recv() ([][]byte, error) {
	if len(f.inbox) == 0 {
		return nil, fmt.Errorf("fakePeerTransport: empty inbox")
	}
	msg := f.inbox[0]
	f.inbox = f.inbox[1:]
	return msg, nil
}

func (f *fakePeerTransport) Poll(timeout time.Duration) (bool, error) {
	return len(f.inbox) > 0, nil
}

func (f *fakePeerTransport) Close() error {
	f.closed++
	return nil
}
