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
	"fmt"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/cmd/version"
	"github.com/matjip-io/matjip/common/log"
	"github.com/matjip-io/matjip/config"
	"github.com/matjip-io/matjip/logics"
	"github.com/matjip-io/matjip/storage/cache"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cliCommand = &cobra.Command{
	Use:   "matjip-cli",
	Short: "CLI for matjip restaurant recommender",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show the version of matjip",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.BuildInfo())
	},
}

// session holds the stores opened by a command.
type session struct {
	config *config.Config
	data   data.Database
	cache  cache.Database
	engine *logics.Engine
}

func openSession(cmd *cobra.Command) (*session, error) {
	configPath, _ := cmd.Flags().GetString("config")
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	s := &session{config: conf}
	if s.data, err = data.Open(conf.Database.DataStore, conf.Database.DataTablePrefix); err != nil {
		return nil, errors.Annotatef(err, "failed to connect %s", log.RedactDBURL(conf.Database.DataStore))
	}
	if err = s.data.Init(); err != nil {
		return nil, errors.Trace(err)
	}
	if s.cache, err = cache.Open(conf.Database.CacheStore, conf.Database.CacheTablePrefix); err != nil {
		return nil, errors.Annotatef(err, "failed to connect %s", log.RedactDBURL(conf.Database.CacheStore))
	}
	if err = s.cache.Init(); err != nil {
		return nil, errors.Trace(err)
	}
	if s.engine, err = logics.NewEngine(conf, s.data, s.cache); err != nil {
		return nil, errors.Trace(err)
	}
	return s, nil
}

func (s *session) Close() {
	if err := s.data.Close(); err != nil {
		log.Logger().Error("failed to close data store", zap.Error(err))
	}
	if err := s.cache.Close(); err != nil {
		log.Logger().Error("failed to close cache store", zap.Error(err))
	}
}

// mustOpen opens a session or exits.
func mustOpen(cmd *cobra.Command) *session {
	s, err := openSession(cmd)
	if err != nil {
		log.Logger().Fatal("failed to open stores", zap.Error(err))
	}
	return s
}

func init() {
	log.AddFlags(cliCommand.PersistentFlags())
	cliCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	cliCommand.AddCommand(versionCommand)
}

func main() {
	if err := cliCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
