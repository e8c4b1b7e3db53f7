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

package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const LabelJob = "job"

var (
	JobSecondsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "matjip",
		Subsystem: "worker",
		Name:      "job_seconds",
	}, []string{LabelJob})
	JobProcessedTotalVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matjip",
		Subsystem: "worker",
		Name:      "job_processed_total",
	}, []string{LabelJob})
	JobErrorsTotalVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matjip",
		Subsystem: "worker",
		Name:      "job_errors_total",
	}, []string{LabelJob})
	AnomaliesTotalVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matjip",
		Subsystem: "worker",
		Name:      "anomalies_total",
	}, []string{"algorithm", "type"})
)
