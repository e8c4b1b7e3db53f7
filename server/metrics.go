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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestSecondsVec = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "matjip",
		Subsystem: "server",
		Name:      "request_seconds",
	}, []string{"route"})
	RequestTotalVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matjip",
		Subsystem: "server",
		Name:      "request_total",
	}, []string{"route", "status_code"})
	RecommendationsTotalVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matjip",
		Subsystem: "server",
		Name:      "recommendations_total",
	}, []string{"status"})
)
