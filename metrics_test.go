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
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	db, s := newTestDB(t, OptionMetrics(m))
	s.ForceConflicts(1)
	ctx := context.Background()

	if _, err := db.Write(ctx, "bob", map[string]interface{}{"name": "Bob"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.FindStrict(ctx, []string{"name"}, nil, nil); err != nil {
		t.Fatal(err)
	}

	for name, test := range map[string]struct {
		c    prometheus.Collector
		want float64
	}{
		"write requests":    {m.requests.WithLabelValues("write"), 1},
		"find requests":     {m.requests.WithLabelValues("find_strict"), 1},
		"write retries":     {m.conflictRetries.WithLabelValues("write"), 1},
		"database creates":  {m.databaseCreates, 1},
		"view installs":     {m.viewInstalls, 1},
		"no update retries": {m.conflictRetries.WithLabelValues("update"), 0},
	} {
		t.Run(name, func(t *testing.T) {
			if got := testutil.ToFloat64(test.c); got != test.want {
				t.Errorf("Unexpected value %v, want %v", got, test.want)
			}
		})
	}

	if _, err := NewMetrics(reg); err == nil {
		t.Error("registering twice should fail")
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.request("read")
	m.conflictRetry("write")
	m.databaseCreated()
	m.viewInstalled()
}
