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
	"strings"

	"github.com/matjip-io/matjip/common/log"
	"github.com/matjip-io/matjip/logics"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	cliCommand.AddCommand(recommendCommand)
	recommendCommand.Flags().IntP("n", "n", 10, "number of recommendations")
	recommendCommand.Flags().String("companion", "", "solo, date, friends, family or business")
	recommendCommand.Flags().String("meal-time", "", "breakfast, brunch, lunch, dinner or late_night")
	recommendCommand.Flags().String("algorithm", "", "scoring algorithm, or auto")
	cliCommand.AddCommand(similarCommand)
	similarCommand.Flags().IntP("n", "n", 10, "number of similar users")
}

var recommendCommand = &cobra.Command{
	Use:   "recommend user-id",
	Short: "Generate recommendations for a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpen(cmd)
		defer s.Close()
		n, _ := cmd.Flags().GetInt("n")
		companion, _ := cmd.Flags().GetString("companion")
		mealTime, _ := cmd.Flags().GetString("meal-time")
		algorithm, _ := cmd.Flags().GetString("algorithm")
		response, err := s.engine.Recommend(context.Background(), logics.Request{
			UserId:                args[0],
			RecommendationContext: logics.RecommendationContext{Companion: companion, MealTime: mealTime},
			N:                     n,
			Algorithm:             algorithm,
		})
		if err != nil {
			log.Logger().Fatal("failed to recommend", zap.Error(err))
		}
		fmt.Println("status:", response.Status)
		table := tablewriter.NewWriter(os.Stdout)
		table.Header([]string{"rank", "restaurant", "algorithm", "score", "reason"})
		for _, record := range response.Recommendations {
			if err = table.Append([]string{
				fmt.Sprint(record.Rank),
				record.TargetId,
				record.Algorithm,
				fmt.Sprintf("%.2f", record.Score),
				strings.Join(append([]string{record.Reason.Primary}, record.Reason.Secondary...), "; "),
			}); err != nil {
				log.Logger().Fatal("failed to render table", zap.Error(err))
			}
		}
		if err = table.Render(); err != nil {
			log.Logger().Fatal("failed to render table", zap.Error(err))
		}
	},
}

var similarCommand = &cobra.Command{
	Use:   "similar user-id",
	Short: "Show the most similar users",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpen(cmd)
		defer s.Close()
		n, _ := cmd.Flags().GetInt("n")
		neighbors, err := s.engine.Similarity.TopSimilar(context.Background(), args[0], n, s.engine.Now())
		if err != nil {
			log.Logger().Fatal("failed to load similar users", zap.Error(err))
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header([]string{"user", "similarity", "confidence"})
		for _, neighbor := range neighbors {
			if err = table.Append([]string{
				neighbor.UserId,
				fmt.Sprintf("%.3f", neighbor.Similarity),
				fmt.Sprintf("%.3f", neighbor.Confidence),
			}); err != nil {
				log.Logger().Fatal("failed to render table", zap.Error(err))
			}
		}
		if err = table.Render(); err != nil {
			log.Logger().Fatal("failed to render table", zap.Error(err))
		}
	},
}
