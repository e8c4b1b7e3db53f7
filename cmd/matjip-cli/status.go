// Copyright 2026 matjip Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/matjip-io/matjip/common/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	cliCommand.AddCommand(statusCommand)
}

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show performance of scoring algorithms",
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpen(cmd)
		defer s.Close()
		records, err := s.engine.Performances(context.Background())
		if err != nil {
			log.Logger().Fatal("failed to load performance", zap.Error(err))
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header([]string{"algorithm", "active", "score", "ctr", "conversion", "hit rate", "latency", "anomalies"})
		for _, p := range records {
			if err = table.Append([]string{
				p.Algorithm,
				fmt.Sprint(p.Active),
				fmt.Sprintf("%.3f", p.CalculatePerformanceScore()),
				fmt.Sprintf("%.3f", p.Metrics.Engagement.CTR),
				fmt.Sprintf("%.3f", p.Metrics.Engagement.ConversionRate),
				fmt.Sprintf("%.3f", p.Metrics.Accuracy.HitRate),
				fmt.Sprintf("%.0fms", p.Metrics.System.LatencyMs),
				fmt.Sprint(len(p.Anomalies)),
			}); err != nil {
				log.Logger().Fatal("failed to render table", zap.Error(err))
			}
		}
		if err = table.Render(); err != nil {
			log.Logger().Fatal("failed to render table", zap.Error(err))
		}
	},
}
