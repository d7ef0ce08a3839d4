// Copyright 2026 Merito Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package validation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type serviceMetrics struct {
	votesAccepted     *prometheus.CounterVec
	votesRejected     *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	strategyFallbacks prometheus.Counter
}

func (s *Service) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	s.metrics = &serviceMetrics{}
	s.metrics.votesAccepted = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merito_votes_accepted_total",
			Help: "total number of accepted votes by choice",
		},
		[]string{"choice"},
	)
	s.metrics.votesRejected = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merito_votes_rejected_total",
			Help: "total number of rejected votes by reason",
		},
		[]string{"reason"},
	)
	s.metrics.transitions = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merito_contribution_transitions_total",
			Help: "total number of contribution status transitions by target status",
		},
		[]string{"status"},
	)
	s.metrics.strategyFallbacks = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "merito_strategy_fallback_total",
			Help: "total number of strategy evaluations that fell back to simple semantics",
		},
	)
}
