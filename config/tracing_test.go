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

package config

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewTracerProvider(t *testing.T) {
	cfg := GetDefaultConfig().Tracing
	tp, err := cfg.NewTracerProvider()
	assert.NoError(t, err)
	assert.IsType(t, noop.TracerProvider{}, tp)

	for _, exporter := range []string{"otlp", "otlphttp", "zipkin"} {
		cfg.EnableTracing = true
		cfg.Exporter = exporter
		cfg.CollectorEndpoint = "localhost:4317"
		if exporter == "zipkin" {
			cfg.CollectorEndpoint = "http://localhost:9411/api/v2/spans"
		}
		tp, err = cfg.NewTracerProvider()
		assert.NoError(t, err, exporter)
		assert.IsType(t, &sdktrace.TracerProvider{}, tp)
	}

	cfg.Exporter = "jaeger"
	_, err = cfg.NewTracerProvider()
	assert.True(t, errors.Is(err, errors.NotSupported))

	cfg.Exporter = "otlp"
	cfg.Sampler = "sometimes"
	_, err = cfg.NewTracerProvider()
	assert.True(t, errors.Is(err, errors.NotSupported))
}
