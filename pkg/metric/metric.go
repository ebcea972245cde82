// Copyright 2018 The gVisor Authors.
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

// Package metric provides counters broken down by enumerated fields and
// exports them in the Prometheus text format.
package metric

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

var (
	// ErrNameInUse indicates that another metric is already registered
	// under the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrInvalidName indicates a name that Prometheus does not accept.
	ErrInvalidName = errors.New("invalid metric name")

	// ErrInvalidField indicates a field with no allowed values or
	// duplicate ones.
	ErrInvalidField = errors.New("invalid metric field")
)

var nameRE = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)

// Field contains the field name and allowed values for a metric that is
// broken down by it.
type Field struct {
	name          string
	allowedValues []string
}

// NewField defines a new Field that can be used to break down a metric.
func NewField(name string, allowedValues []string) Field {
	return Field{
		name:          name,
		allowedValues: allowedValues,
	}
}

// Name returns the field name.
func (f Field) Name() string {
	return f.name
}

// fieldMapper maps a combination of field values to a single index.
type fieldMapper struct {
	fields []Field
	// index maps each field's values to their position.
	index []map[string]int
}

func newFieldMapper(fields ...Field) (fieldMapper, error) {
	m := fieldMapper{fields: fields}
	for _, f := range fields {
		if !nameRE.MatchString(f.name) || len(f.allowedValues) == 0 {
			return fieldMapper{}, fmt.Errorf("%w: %q", ErrInvalidField, f.name)
		}
		idx := make(map[string]int, len(f.allowedValues))
		for i, v := range f.allowedValues {
			if _, ok := idx[v]; ok {
				return fieldMapper{}, fmt.Errorf("%w: %q has duplicate value %q", ErrInvalidField, f.name, v)
			}
			idx[v] = i
		}
		m.index = append(m.index, idx)
	}
	return m, nil
}

// numKeys returns the number of distinct field value combinations.
func (m fieldMapper) numKeys() int {
	n := 1
	for _, f := range m.fields {
		n *= len(f.allowedValues)
	}
	return n
}

// lookup returns the key for fieldValues. It panics on a wrong number of
// values or a value that is not allowed.
func (m fieldMapper) lookup(fieldValues ...string) int {
	if len(fieldValues) != len(m.fields) {
		panic(fmt.Sprintf("got %d field values, want %d", len(fieldValues), len(m.fields)))
	}
	key := 0
	for i, v := range fieldValues {
		pos, ok := m.index[i][v]
		if !ok {
			panic(fmt.Sprintf("value %q not allowed for field %q", v, m.fields[i].name))
		}
		key = key*len(m.fields[i].allowedValues) + pos
	}
	return key
}

// keyToFields is the inverse of lookup.
func (m fieldMapper) keyToFields(key int) []string {
	values := make([]string, len(m.fields))
	for i := len(m.fields) - 1; i >= 0; i-- {
		n := len(m.fields[i].allowedValues)
		values[i] = m.fields[i].allowedValues[key%n]
		key /= n
	}
	return values
}

// Uint64Metric is a cumulative counter, optionally broken down by fields.
type Uint64Metric struct {
	name        string
	description string
	fieldMapper fieldMapper
	values      []atomic.Uint64
}

// Name returns the metric name.
func (m *Uint64Metric) Name() string {
	return m.name
}

// Value returns the current value for the given field values. It must be
// called with the correct number of field values or it will panic.
func (m *Uint64Metric) Value(fieldValues ...string) uint64 {
	return m.values[m.fieldMapper.lookup(fieldValues...)].Load()
}

// Increment increments the metric by 1.
func (m *Uint64Metric) Increment(fieldValues ...string) {
	m.IncrementBy(1, fieldValues...)
}

// IncrementBy increments the metric by v.
func (m *Uint64Metric) IncrementBy(v uint64, fieldValues ...string) {
	m.values[m.fieldMapper.lookup(fieldValues...)].Add(v)
}

// Total returns the sum over every field combination.
func (m *Uint64Metric) Total() uint64 {
	var t uint64
	for i := range m.values {
		t += m.values[i].Load()
	}
	return t
}

// family returns the metric as a Prometheus counter family. Zero-valued
// field combinations are omitted.
func (m *Uint64Metric) family(prefix string) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(prefix + m.name),
		Help: proto.String(m.description),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for key := range m.values {
		v := m.values[key].Load()
		if v == 0 && len(m.fieldMapper.fields) > 0 {
			continue
		}
		metric := &dto.Metric{
			Counter: &dto.Counter{Value: proto.Float64(float64(v))},
		}
		for i, fv := range m.fieldMapper.keyToFields(key) {
			metric.Label = append(metric.Label, &dto.LabelPair{
				Name:  proto.String(m.fieldMapper.fields[i].name),
				Value: proto.String(fv),
			})
		}
		mf.Metric = append(mf.Metric, metric)
	}
	return mf
}

// Registry holds a set of metrics. Names are unique within a Registry.
type Registry struct {
	prefix string

	mu      sync.Mutex
	metrics map[string]*Uint64Metric
}

// NewRegistry returns an empty registry. Exported names carry prefix.
func NewRegistry(prefix string) *Registry {
	return &Registry{
		prefix:  prefix,
		metrics: make(map[string]*Uint64Metric),
	}
}

// NewUint64Metric creates and registers a new counter.
func (r *Registry) NewUint64Metric(name, description string, fields ...Field) (*Uint64Metric, error) {
	if !nameRE.MatchString(r.prefix + name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	fm, err := newFieldMapper(fields...)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.metrics[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrNameInUse, name)
	}
	m := &Uint64Metric{
		name:        name,
		description: description,
		fieldMapper: fm,
		values:      make([]atomic.Uint64, fm.numKeys()),
	}
	r.metrics[name] = m
	return m, nil
}

// MustCreateNewUint64Metric calls NewUint64Metric and panics on error.
func (r *Registry) MustCreateNewUint64Metric(name, description string, fields ...Field) *Uint64Metric {
	m, err := r.NewUint64Metric(name, description, fields...)
	if err != nil {
		panic(fmt.Sprintf("unable to create metric %q: %v", name, err))
	}
	return m
}

// Families returns every metric as a Prometheus family, sorted by name.
func (r *Registry) Families() []*dto.MetricFamily {
	r.mu.Lock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)

	families := make([]*dto.MetricFamily, 0, len(names))
	for _, name := range names {
		r.mu.Lock()
		m := r.metrics[name]
		r.mu.Unlock()
		families = append(families, m.family(r.prefix))
	}
	return families
}

// WriteText writes every metric in the Prometheus text exposition format.
// Field metrics with no non-zero values are omitted.
func (r *Registry) WriteText(w io.Writer) error {
	for _, mf := range r.Families() {
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing metric %q: %w", mf.GetName(), err)
		}
	}
	return nil
}
