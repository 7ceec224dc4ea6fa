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
	"errors"
	"testing"
)

func TestDecodeEnvelopeClient(t *testing.T) {
	raw := [][]byte{[]byte(""), []byte(ClientHeader), []byte("echo"), []byte("hello")}
	env, err := DecodeEnvelope("client-1", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Kind != KindClient {
		t.Errorf("Kind = %v, want KindClient", env.Kind)
	}
	if string(env.Frames[0]) != "echo" {
		t.Errorf("service frame = %q, want echo", env.Frames[0])
	}
}

func TestDecodeEnvelopeWorker(t *testing.T) {
	raw := [][]byte{[]byte(""), []byte(WorkerHeader), {CmdReady}, []byte("echo")}
	env, err := DecodeEnvelope("worker-1", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Kind != KindWorker {
		t.Errorf("Kind = %v, want KindWorker", env.Kind)
	}
	if env.Frames[0][0] != CmdReady {
		t.Errorf("command byte = 0x%02x, want READY", env.Frames[0][0])
	}
}

func TestDecodeEnvelopeRejectsBadHeader(t *testing.T) {
	raw := [][]byte{[]byte(""), []byte("BOGUS01"), []byte("x")}
	_, err := DecodeEnvelope("x", raw)
	if !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("err = %v, want ErrMalformedEnvelope", err)
	}
}

func TestDecodeEnvelopeRejectsMissingDelimiter(t *testing.T) {
	raw := [][]byte{[]byte("not-empty"), []byte(ClientHeader), []byte("echo")}
	_, err := DecodeEnvelope("x", raw)
	if !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("err = %v, want ErrMalformedEnvelope", err)
	}
}

func TestDecodeEnvelopeRejectsUnknownWorkerCommand(t *testing.T) {
	raw := [][]byte{[]byte(""), []byte(WorkerHeader), {0x09}}
	_, err := DecodeEnvelope("x", raw)
	if !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("err = %v, want ErrMalformedEnvelope", err)
	}
}

func TestEncodeDecodeEmbeddedClientEnvelope(t *testing.T) {
	body := encodeEmbeddedClientFrames("client-1", ChannelCurve, [][]byte{[]byte("payload")})
	clientID, ch, rest, err := decodeEmbeddedClientEnvelope(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clientID != "client-1" {
		t.Errorf("clientID = %q, want client-1", clientID)
	}
	if ch != ChannelCurve {
		t.Errorf("channel = %v, want curve", ch)
	}
	if len(rest) != 1 || string(rest[0]) != "payload" {
		t.Errorf("rest = %v, want [payload]", rest)
	}
}
