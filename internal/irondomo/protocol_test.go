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

import "testing"

func TestHasReservedPrefix(t *testing.T) {
	cases := []struct {
		identity string
		want     bool
	}{
		{"mmi.service", true},
		{"mmi.", true},
		{"echo-worker", false},
		{"mm", false},
		{"", false},
	}
	for _, c := range cases {
		if got := HasReservedPrefix(c.identity); got != c.want {
			t.Errorf("HasReservedPrefix(%q) = %v, want %v", c.identity, got, c.want)
		}
	}
}

func TestIsValidWorkerCommand(t *testing.T) {
	for _, cmd := range []byte{CmdReady, CmdRequest, CmdReply, CmdHeartbeat, CmdDisconnect} {
		if !isValidWorkerCommand(cmd) {
			t.Errorf("isValidWorkerCommand(0x%02x) = false, want true", cmd)
		}
	}
	if isValidWorkerCommand(0x09) {
		t.Error("isValidWorkerCommand(0x09) = true, want false")
	}
}

func TestChannelString(t *testing.T) {
	if ChannelClear.String() != "clear" {
		t.Errorf("ChannelClear.String() = %q, want clear", ChannelClear.String())
	}
	if ChannelCurve.String() != "curve" {
		t.Errorf("ChannelCurve.String() = %q, want curve", ChannelCurve.String())
	}
}
