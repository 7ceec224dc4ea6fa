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
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func newTestWorker(fp *fakePeerTransport, handler Handler) *Worker {
	return &Worker{
		cfg: WorkerConfig{
			Service:           "echo",
			HeartbeatInterval: 10 * time.Millisecond,
			HeartbeatLiveness: 3,
		},
		identity:    "echo-test-worker",
		handler:     handler,
		transport:   fp,
		liveness:    3,
		heartbeatAt: time.Now().Add(time.Hour),
		expiry:      time.Now().Add(time.Hour),
	}
}

func TestWorkerHandleRequestRepliesThroughEmbeddedEnvelope(t *testing.T) {
	fp := newFakePeerTransport()
	handler := func(ctx context.Context, req [][]byte) ([][]byte, error) {
		out := make([][]byte, len(req))
		for i, f := range req {
			out[i] = bytes.ToUpper(f)
		}
		return out, nil
	}
	w := newTestWorker(fp, handler)

	body := encodeEmbeddedClientFrames("client-1", ChannelCurve, [][]byte{[]byte("hello")})
	raw := append([][]byte{[]byte(""), []byte(WorkerHeader), {CmdRequest}}, body...)

	if err := w.handleFrames(context.Background(), raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fp.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(fp.sent))
	}
	sent := fp.sent[0]
	if string(sent[1]) != WorkerHeader || sent[2][0] != CmdReply {
		t.Fatalf("reply frames = %v", sent)
	}
	clientID, ch, rest, err := decodeEmbeddedClientEnvelope(sent[3:])
	if err != nil {
		t.Fatalf("decodeEmbeddedClientEnvelope: %v", err)
	}
	if clientID != "client-1" {
		t.Fatalf("clientID = %q, want client-1", clientID)
	}
	if ch != ChannelCurve {
		t.Fatalf("channel = %v, want curve", ch)
	}
	if len(rest) != 1 || string(rest[0]) != "HELLO" {
		t.Fatalf("reply payload = %v, want [HELLO]", rest)
	}
}

func TestWorkerHandleRequestHandlerErrorStillReplies(t *testing.T) {
	fp := newFakePeerTransport()
	handler := func(ctx context.Context, req [][]byte) ([][]byte, error) {
		return nil, errors.New("boom")
	}
	w := newTestWorker(fp, handler)

	body := encodeEmbeddedClientFrames("client-1", ChannelClear, [][]byte{[]byte("hello")})
	raw := append([][]byte{[]byte(""), []byte(WorkerHeader), {CmdRequest}}, body...)

	if err := w.handleFrames(context.Background(), raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fp.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(fp.sent))
	}
}

func TestWorkerHandleFramesIgnoresHeartbeat(t *testing.T) {
	fp := newFakePeerTransport()
	w := newTestWorker(fp, func(ctx context.Context, req [][]byte) ([][]byte, error) { return req, nil })

	raw := [][]byte{[]byte(""), []byte(WorkerHeader), {CmdHeartbeat}}
	if err := w.handleFrames(context.Background(), raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fp.sent) != 0 {
		t.Fatal("heartbeat should not trigger a reply")
	}
}

func TestWorkerHandleFramesRejectsMalformed(t *testing.T) {
	fp := newFakePeerTransport()
	w := newTestWorker(fp, func(ctx context.Context, req [][]byte) ([][]byte, error) { return req, nil })

	raw := [][]byte{[]byte("not-empty"), []byte(WorkerHeader), {CmdRequest}}
	if err := w.handleFrames(context.Background(), raw); !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("err = %v, want ErrMalformedEnvelope", err)
	}
}

func TestWorkerSendHeartbeatIfDue(t *testing.T) {
	fp := newFakePeerTransport()
	w := newTestWorker(fp, nil)

	w.heartbeatAt = time.Now().Add(time.Hour)
	w.sendHeartbeatIfDue()
	if len(fp.sent) != 0 {
		t.Fatal("heartbeat should not fire before it is due")
	}

	w.heartbeatAt = time.Now().Add(-time.Millisecond)
	w.sendHeartbeatIfDue()
	if len(fp.sent) != 1 {
		t.Fatal("heartbeat should fire once due")
	}
	if fp.sent[0][2][0] != CmdHeartbeat {
		t.Fatalf("command = 0x%02x, want HEARTBEAT", fp.sent[0][2][0])
	}
}
