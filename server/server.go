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

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/go-openapi/spec"
	"github.com/juju/errors"
	"github.com/matjip-io/matjip/cmd/version"
	"github.com/matjip-io/matjip/common/log"
	"github.com/matjip-io/matjip/config"
	"github.com/matjip-io/matjip/logics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggest/swgui/v5emb"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	apiDocsPath = "/apidocs/"
	apiSpecPath = "/apidocs.json"
)

// Server exposes the engine over REST.
type Server struct {
	Config     *config.Config
	Engine     *logics.Engine
	WebService *restful.WebService

	container  *restful.Container
	ready      atomic.Bool
	httpServer *http.Server
}

// NewServer creates a server with every route, the API docs and the metrics
// endpoint registered.
func NewServer(cfg *config.Config, engine *logics.Engine) *Server {
	s := &Server{
		Config:     cfg,
		Engine:     engine,
		WebService: new(restful.WebService),
		container:  restful.NewContainer(),
	}
	s.CreateWebService()
	s.container.Filter(otelrestful.OTelFilter("matjip-server"))
	s.container.Add(s.WebService)
	specConfig := restfulspec.Config{
		WebServices:                   s.container.RegisteredWebServices(),
		APIPath:                       apiSpecPath,
		PostBuildSwaggerObjectHandler: enrichSwaggerObject,
	}
	s.container.Add(restfulspec.NewOpenAPIService(specConfig))
	s.container.Handle(apiDocsPath, v5emb.New("matjip", apiSpecPath, apiDocsPath))
	s.container.Handle("/metrics", promhttp.Handler())
	return s
}

func enrichSwaggerObject(swo *spec.Swagger) {
	swo.Info = &spec.Info{
		InfoProps: spec.InfoProps{
			Title:       "matjip",
			Description: "Restaurant recommendation engine",
			Version:     version.APIVersion,
		},
	}
	swo.Tags = []spec.Tag{
		{TagProps: spec.TagProps{Name: "recommendation", Description: "Generate and track recommendations"}},
		{TagProps: spec.TagProps{Name: "user", Description: "Feedback, preferences and taste"}},
		{TagProps: spec.TagProps{Name: "similarity", Description: "Similar users"}},
		{TagProps: spec.TagProps{Name: "algorithm", Description: "Algorithm performance and A/B tests"}},
		{TagProps: spec.TagProps{Name: "health", Description: "Liveness and readiness"}},
	}
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.container
}

// SetReady marks the server ready to take traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Serve listens on the configured address until Shutdown.
func (s *Server) Serve() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.container,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.SetReady(true)
	log.Logger().Info("start http server", zap.String("url", "http://"+addr),
		zap.String("docs", "http://"+addr+apiDocsPath))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Trace(err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for the active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetReady(false)
	if s.httpServer == nil {
		return nil
	}
	return errors.Trace(s.httpServer.Shutdown(ctx))
}
