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
	"os/signal"
	"syscall"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/cmd/version"
	"github.com/matjip-io/matjip/common/log"
	"github.com/matjip-io/matjip/config"
	"github.com/matjip-io/matjip/logics"
	"github.com/matjip-io/matjip/storage/cache"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/matjip-io/matjip/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var workerCommand = &cobra.Command{
	Use:   "matjip-worker",
	Short: "The batch worker of matjip restaurant recommender.",
	Run: func(cmd *cobra.Command, args []string) {
		// show version
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}
		// setup logger
		debug, _ := cmd.PersistentFlags().GetBool("debug")
		log.SetLogger(cmd.PersistentFlags(), debug)

		// load config
		configPath, _ := cmd.PersistentFlags().GetString("config")
		log.Logger().Info("load config", zap.String("config", configPath))
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		if cmd.PersistentFlags().Changed("jobs") {
			conf.Worker.Jobs, _ = cmd.PersistentFlags().GetInt("jobs")
		}
		tp, err := conf.Tracing.NewTracerProvider()
		if err != nil {
			log.Logger().Fatal("failed to create trace provider", zap.Error(err))
		}
		otel.SetTracerProvider(tp)
		otel.SetErrorHandler(log.GetErrorHandler())

		// open databases
		dataStore, err := data.Open(conf.Database.DataStore, conf.Database.DataTablePrefix)
		if err != nil {
			log.Logger().Fatal("failed to connect data store",
				zap.String("data_store", log.RedactDBURL(conf.Database.DataStore)), zap.Error(err))
		}
		cacheStore, err := cache.Open(conf.Database.CacheStore, conf.Database.CacheTablePrefix)
		if err != nil {
			log.Logger().Fatal("failed to connect cache store",
				zap.String("cache_store", log.RedactDBURL(conf.Database.CacheStore)), zap.Error(err))
		}
		if err = cacheStore.Init(); err != nil {
			log.Logger().Fatal("failed to init cache store", zap.Error(err))
		}
		defer func() {
			if err := dataStore.Close(); err != nil {
				log.Logger().Error("failed to close data store", zap.Error(err))
			}
			if err := cacheStore.Close(); err != nil {
				log.Logger().Error("failed to close cache store", zap.Error(err))
			}
		}()
		engine, err := logics.NewEngine(conf, dataStore, cacheStore)
		if err != nil {
			log.Logger().Fatal("failed to create engine", zap.Error(err))
		}
		w := worker.NewWorker(conf, engine)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if once, _ := cmd.PersistentFlags().GetBool("once"); once {
			bar := progressbar.Default(-1, "process users")
			w.SetProgress(bar)
			if err = w.RunAll(ctx); err != nil {
				log.Logger().Fatal("failed to run jobs", zap.Error(err))
			}
			_ = bar.Finish()
			return
		}
		if err = w.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Logger().Fatal("failed to serve", zap.Error(err))
		}
		log.Logger().Info("stop matjip-worker successfully")
	},
}

func init() {
	log.AddFlags(workerCommand.PersistentFlags())
	workerCommand.PersistentFlags().BoolP("version", "v", false, "matjip version")
	workerCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	workerCommand.PersistentFlags().IntP("jobs", "j", 1, "number of working jobs")
	workerCommand.PersistentFlags().Bool("once", false, "run every job once and exit")
}

func main() {
	if err := workerCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
