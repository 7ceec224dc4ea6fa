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

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/waterviewsrl/IronDomo/internal/irondomo"
)

var (
	clientEndpoint  string
	clientService   string
	clientServerKey string
)

var clientCmd = &cobra.Command{
	Use:   "client [message]",
	Short: "Send one request to a service and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := irondomo.DefaultClientConfig(clientEndpoint)
		if clientServerKey != "" {
			cfg.Curve = &irondomo.CurveCredentials{ServerKey: clientServerKey}
		}

		c, err := irondomo.NewClient(cfg, 0)
		if err != nil {
			return err
		}
		defer c.Close()

		payload := [][]byte{[]byte(strings.Join(args, " "))}
		reply, err := c.Send(context.Background(), clientService, payload)
		if err != nil {
			exitWithError(err)
			return nil
		}

		for _, frame := range reply {
			fmt.Println(string(frame))
		}
		return nil
	},
}

func init() {
	clientCmd.Flags().StringVar(&clientEndpoint, "endpoint", "tcp://127.0.0.1:5000", "broker endpoint to connect to")
	clientCmd.Flags().StringVar(&clientService, "service", "echo", "service name to request")
	clientCmd.Flags().StringVar(&clientServerKey, "server-key", "", "broker CURVE public key, if connecting over the curve endpoint")
}
