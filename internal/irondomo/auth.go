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

	"github.com/pebbe/zmq4"

	"github.com/waterviewsrl/IronDomo/internal/logger"
)

// authenticator wraps the background ZAP actor that pebbe/zmq4 starts
// for CURVE authentication. It is only started when the broker binds
// a CURVE endpoint, mirroring the original's zactor_new(zauth, ...)
// started alongside the broker's CURVE socket.
type authenticator struct{}

// newAuthenticator starts the ZAP handler and configures it to accept
// any client whose public key is presented (CURVE allow-any mode).
// Callers that need a fixed allow-list should extend this with
// AuthCurveAdd for specific client public keys instead.
func newAuthenticator() (*authenticator, error) {
	if err := zmq4.AuthStart(); err != nil {
		return nil, fmt.Errorf("irondomo: start auth actor: %w", err)
	}
	zmq4.AuthSetVerbose(false)
	zmq4.AuthCurveAdd("*", zmq4.CURVE_ALLOW_ANY)

	logger.Debug("curve authenticator started, allow-any mode")
	return &authenticator{}, nil
}

func (a *authenticator) stop() {
	zmq4.AuthStop()
}
