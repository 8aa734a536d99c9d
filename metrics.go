// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package recliner

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus counters for engine activity. A nil *Metrics is
// valid, and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	conflictRetries *prometheus.CounterVec
	databaseCreates prometheus.Counter
	viewInstalls    prometheus.Counter
}

// NewMetrics creates the engine's counters and registers them with reg. If
// reg is nil, the counters are created but not registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recliner_requests_total",
			Help: "Engine operations started, by operation.",
		}, []string{"op"}),
		conflictRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recliner_conflict_retries_total",
			Help: "Writes retried after a revision conflict, by operation.",
		}, []string{"op"}),
		databaseCreates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recliner_database_creates_total",
			Help: "Databases created because an operation found them missing.",
		}),
		viewInstalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recliner_view_installs_total",
			Help: "Design documents installed after a view query failed.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.requests, m.conflictRetries, m.databaseCreates, m.viewInstalls} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) request(op string) {
	if m != nil {
		m.requests.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) conflictRetry(op string) {
	if m != nil {
		m.conflictRetries.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) databaseCreated() {
	if m != nil {
		m.databaseCreates.Inc()
	}
}

func (m *Metrics) viewInstalled() {
	if m != nil {
		m.viewInstalls.Inc()
	}
}
