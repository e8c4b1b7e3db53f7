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
	"time"

	"github.com/matjip-io/matjip/cmd/version"
	"github.com/matjip-io/matjip/common/log"
	"github.com/matjip-io/matjip/config"
	"github.com/matjip-io/matjip/logics"
	"github.com/matjip-io/matjip/server"
	"github.com/matjip-io/matjip/storage/cache"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

var serverCommand = &cobra.Command{
	Use:   "matjip-server",
	Short: "The REST server of matjip restaurant recommender.",
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
		if cmd.PersistentFlags().Changed("port") {
			conf.Server.Port, _ = cmd.PersistentFlags().GetInt("port")
		}

		// setup tracing
		tp, err := conf.Tracing.NewTracerProvider()
		if err != nil {
			log.Logger().Fatal("failed to create trace provider", zap.Error(err))
		}
		otel.SetTracerProvider(tp)
		otel.SetErrorHandler(log.GetErrorHandler())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

		// open databases
		dataStore, err := data.Open(conf.Database.DataStore, conf.Database.DataTablePrefix)
		if err != nil {
			log.Logger().Fatal("failed to connect data store",
				zap.String("data_store", log.RedactDBURL(conf.Database.DataStore)), zap.Error(err))
		}
		if err = dataStore.Init(); err != nil {
			log.Logger().Fatal("failed to init data store", zap.Error(err))
		}
		cacheStore, err := cache.Open(conf.Database.CacheStore, conf.Database.CacheTablePrefix)
		if err != nil {
			log.Logger().Fatal("failed to connect cache store",
				zap.String("cache_store", log.RedactDBURL(conf.Database.CacheStore)), zap.Error(err))
		}
		if err = cacheStore.Init(); err != nil {
			log.Logger().Fatal("failed to init cache store", zap.Error(err))
		}
		catalog := server.NewCachedCatalog(dataStore, conf.Server.RestaurantCacheTTL)
		engine, err := logics.NewEngine(conf, catalog, cacheStore)
		if err != nil {
			log.Logger().Fatal("failed to create engine", zap.Error(err))
		}

		// start server
		s := server.NewServer(conf, engine)
		done := make(chan struct{})
		go func() {
			sigint := make(chan os.Signal, 1)
			signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
			<-sigint
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.Shutdown(ctx); err != nil {
				log.Logger().Error("failed to shutdown server", zap.Error(err))
			}
			close(done)
		}()
		if err = s.Serve(); err != nil {
			log.Logger().Fatal("failed to serve", zap.Error(err))
		}
		<-done

		if shutdown, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
			if err = shutdown.Shutdown(context.Background()); err != nil {
				log.Logger().Error("failed to flush spans", zap.Error(err))
			}
		}
		if err = catalog.Close(); err != nil {
			log.Logger().Error("failed to close data store", zap.Error(err))
		}
		if err = cacheStore.Close(); err != nil {
			log.Logger().Error("failed to close cache store", zap.Error(err))
		}
		log.Logger().Info("stop matjip-server successfully")
	},
}

func init() {
	log.AddFlags(serverCommand.PersistentFlags())
	serverCommand.PersistentFlags().BoolP("version", "v", false, "matjip version")
	serverCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	serverCommand.PersistentFlags().Int("port", 8087, "port of RESTful API")
}

func main() {
	if err := serverCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
