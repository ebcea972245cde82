// Copyright 2026 The Ringzero Authors.
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

package dispatch

import (
	"strconv"

	"github.com/ringzero-os/ringzero/pkg/metric"
	"github.com/ringzero-os/ringzero/pkg/ring0"
)

// Metrics counts dispatcher events.
type Metrics struct {
	// Interrupts counts every dispatched vector.
	Interrupts *metric.Uint64Metric

	// Spurious counts vectors that arrived with no handler.
	Spurious *metric.Uint64Metric

	// Acknowledged counts end-of-interrupt sequences sent to the PIC.
	Acknowledged *metric.Uint64Metric

	// Fatal counts faults that halted the machine.
	Fatal *metric.Uint64Metric
}

// vectorValues lists every vector as a field value.
var vectorValues = func() []string {
	vs := make([]string, ring0.NumVectors)
	for i := range vs {
		vs[i] = strconv.Itoa(i)
	}
	return vs
}()

// VectorField breaks a metric down by vector number.
func VectorField() metric.Field {
	return metric.NewField("vector", vectorValues)
}

// VectorValue returns the field value for v.
func VectorValue(v ring0.Vector) string {
	return vectorValues[v]
}

// NewMetrics registers the dispatcher metrics in r.
func NewMetrics(r *metric.Registry) *Metrics {
	return &Metrics{
		Interrupts:   r.MustCreateNewUint64Metric("interrupts_total", "Interrupts dispatched, by vector.", VectorField()),
		Spurious:     r.MustCreateNewUint64Metric("spurious_interrupts_total", "Interrupts with no registered handler, by vector.", VectorField()),
		Acknowledged: r.MustCreateNewUint64Metric("pic_eoi_total", "End-of-interrupt sequences sent to the PIC."),
		Fatal:        r.MustCreateNewUint64Metric("fatal_faults_total", "Faults that halted the machine, by vector.", VectorField()),
	}
}
