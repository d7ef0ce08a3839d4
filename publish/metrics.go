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

package publish

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type publisherMetrics struct {
	publishes       prometheus.Counter
	publishFailures prometheus.Counter
}

func (p *Publisher) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	p.metrics = &publisherMetrics{}
	p.metrics.publishes = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "merito_publishes_total",
			Help: "total number of contributions committed on-chain",
		},
	)
	p.metrics.publishFailures = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "merito_publish_failures_total",
			Help: "total number of failed chain submissions",
		},
	)
}
