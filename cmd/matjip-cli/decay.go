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

	"github.com/matjip-io/matjip/common/log"
	"github.com/matjip-io/matjip/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	cliCommand.AddCommand(decayCommand)
}

var decayCommand = &cobra.Command{
	Use:   "decay",
	Short: "Fade confidence of every taste vector now",
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpen(cmd)
		defer s.Close()
		w := worker.NewWorker(s.config, s.engine)
		bar := progressbar.Default(-1, "decay taste vectors")
		w.SetProgress(bar)
		if err := w.Decay(context.Background()); err != nil {
			log.Logger().Fatal("failed to decay taste vectors", zap.Error(err))
		}
		_ = bar.Finish()
		for _, status := range w.Status() {
			if status.Name == worker.JobDecay {
				log.Logger().Info("decay taste vectors",
					zap.Int64("processed", status.Processed),
					zap.Int64("failed", status.Failed))
			}
		}
	},
}
