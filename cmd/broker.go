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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waterviewsrl/IronDomo/internal/irondomo"
)

var brokerConfigPath string

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Run an Irondomo broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := irondomo.LoadBrokerConfig(brokerConfigPath)
		if err != nil {
			return err
		}

		creds := irondomo.CurveCredentialsFromConfig(cfg.Curve)
		transport, err := irondomo.NewZMQTransport(cfg.ClearEndpoint, cfg.CurveEndpoint, creds)
		if err != nil {
			return err
		}

		broker := irondomo.NewBroker(transport)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.Info().Str("clear", cfg.ClearEndpoint).Str("curve", cfg.CurveEndpoint).Msg("broker starting")
		err = broker.Run(ctx)
		closeErr := broker.Close()
		if err != nil && err != context.Canceled {
			return err
		}
		return closeErr
	},
}

func init() {
	brokerCmd.Flags().StringVarP(&brokerConfigPath, "config", "c", "", "path to broker config YAML (defaults built in if omitted)")
}
