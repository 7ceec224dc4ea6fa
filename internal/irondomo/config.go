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
	"os"

	"gopkg.in/yaml.v3"
)

// CurveConfig is the YAML shape of a CURVE keypair, Z85-encoded.
type CurveConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	ServerKey string `yaml:"server_key,omitempty"`
}

// BrokerFileConfig is the on-disk shape of a broker's configuration.
type BrokerFileConfig struct {
	ClearEndpoint string      `yaml:"clear_endpoint"`
	CurveEndpoint string      `yaml:"curve_endpoint,omitempty"`
	Curve         CurveConfig `yaml:"curve,omitempty"`

	HeartbeatIntervalMS int `yaml:"heartbeat_interval_ms"`
	HeartbeatLiveness   int `yaml:"heartbeat_liveness"`
}

// DefaultBrokerConfig returns a broker configuration bound to the
// same loopback addresses as the zero-configuration E1/E2 examples,
// with the RFC default heartbeat tuning and the example CURVE keypair
// from the reference broker_certstore invocation.
func DefaultBrokerConfig() BrokerFileConfig {
	return BrokerFileConfig{
		ClearEndpoint: "tcp://127.0.0.1:5000",
		CurveEndpoint: "tcp://127.0.0.1:5001",
		Curve: CurveConfig{
			PublicKey: ".8Q^k*3E/4-Wg4()r^(4yTk2>qvZFDW?mXUyRPvr",
			SecretKey: "3vup%:I!lF>^QWT@[[g]dwa>1:(B-^3RWw^7tIMf",
		},
		HeartbeatIntervalMS: DefaultHeartbeatInterval,
		HeartbeatLiveness:   DefaultHeartbeatLiveness,
	}
}

// LoadBrokerConfig reads and parses a broker configuration file,
// falling back to DefaultBrokerConfig when path is empty.
func LoadBrokerConfig(path string) (BrokerFileConfig, error) {
	if path == "" {
		return DefaultBrokerConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return BrokerFileConfig{}, fmt.Errorf("irondomo: read config %s: %w", path, err)
	}
	cfg := DefaultBrokerConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return BrokerFileConfig{}, fmt.Errorf("irondomo: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// CurveCredentialsFromConfig converts a CurveConfig into the runtime
// CurveCredentials shape used by Transport and PeerTransport.
func CurveCredentialsFromConfig(c CurveConfig) CurveCredentials {
	return CurveCredentials{PublicKey: c.PublicKey, SecretKey: c.SecretKey, ServerKey: c.ServerKey}
}
