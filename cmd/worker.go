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
	"bytes"
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waterviewsrl/IronDomo/internal/irondomo"
)

var (
	workerEndpoint  string
	workerService   string
	workerServerKey string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker that echoes its request payload back as the reply",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := irondomo.DefaultWorkerConfig(workerEndpoint, workerService)
		if workerServerKey != "" {
			cfg.Curve = &irondomo.CurveCredentials{ServerKey: workerServerKey}
		}

		handler := func(ctx context.Context, request [][]byte) ([][]byte, error) {
			reply := make([][]byte, len(request))
			for i, frame := range request {
				reply[i] = bytes.ToUpper(frame)
			}
			return reply, nil
		}

		w, err := irondomo.NewWorker(cfg, handler)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.Info().Str("service", workerService).Str("endpoint", workerEndpoint).Msg("worker starting")
		err = w.Run(ctx)
		closeErr := w.Close()
		if err != nil && err != context.Canceled {
			return err
		}
		return closeErr
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerEndpoint, "endpoint", "tcp://127.0.0.1:5000", "broker endpoint to connect to")
	workerCmd.Flags().StringVar(&workerService, "service", "echo", "service name to advertise")
	workerCmd.Flags().StringVar(&workerServerKey, "server-key", "", "broker CURVE public key, if connecting over the curve endpoint")
}
