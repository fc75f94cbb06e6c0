/*
Copyright 2023 Alexander Bartolomey (github@alexanderbartolomey.de)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package netflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TemplateCache stores compiled templates observed in NetFlow v9 and IPFIX
// streams.
//
// Template ids are only unique within the scope of one exporter, and within
// that, one Source ID (v9) or Observation Domain ID (IPFIX). TemplateKey
// captures that full scope so that two exporters reusing the same template id
// can never contaminate each other's record layouts.
//
// Caches have to be safe under concurrent access by all decoding workers.
// A template added by one worker is visible to subsequent lookups from all
// workers. There is no coordination beyond that: data flowsets whose template
// has not been seen yet produce a cache miss that callers handle by skipping
// the flowset.
type TemplateCache interface {
	// GetAll returns the map of all live templates currently stored in the cache
	GetAll(ctx context.Context) map[TemplateKey]*Template

	// Get returns the template stored at a given key, or an error if not found.
	// Implementations with expiry semantics refresh the template's deadline on
	// every successful lookup.
	Get(ctx context.Context, key TemplateKey) (*Template, error)

	// Add adds a template at a given key into the cache, replacing a previous
	// template stored at the same key
	Add(ctx context.Context, key TemplateKey, template *Template) error

	Delete(ctx context.Context, key TemplateKey) error

	// SetTimeout updates the expiry window for templates. Implementations
	// without expiry semantics may ignore it.
	SetTimeout(time.Duration)

	// Name returns the name of the cache set at construction
	Name() string

	// Type returns the constant type of the cache as string
	Type() string

	// Caches implement json.Marshaler to be serializable
	json.Marshaler
}

// TemplateKey scopes a template id to the exporter that announced it.
type TemplateKey struct {
	// SourceId is the NetFlow v9 Source ID or the IPFIX Observation Domain ID
	SourceId uint32

	TemplateId uint16

	// ExporterAddr and ExporterPort are taken from the UDP source address of
	// the datagram carrying the template announcement
	ExporterAddr string
	ExporterPort uint16
}

func NewTemplateKey(sourceId uint32, templateId uint16, exporterAddr string, exporterPort uint16) TemplateKey {
	return TemplateKey{
		SourceId:     sourceId,
		TemplateId:   templateId,
		ExporterAddr: exporterAddr,
		ExporterPort: exporterPort,
	}
}

const (
	templateKeySeparator string = "-"
)

func (k TemplateKey) String() string {
	return fmt.Sprintf("%d%s%d%s%s%s%d",
		k.SourceId, templateKeySeparator,
		k.TemplateId, templateKeySeparator,
		k.ExporterAddr, templateKeySeparator,
		k.ExporterPort)
}

type templateElement struct {
	refreshed time.Time

	template *Template
}

// SlidingEphemeralCache is an in-memory template cache whose entries expire
// a fixed duration after their last use, not after their insertion: every
// successful Get renews the full expiry window. Templates of exporters that
// keep sending data therefore stay cached indefinitely, templates of silent
// exporters decay.
//
// Expired entries are pruned opportunistically whenever a template is added,
// there is no background timer.
type SlidingEphemeralCache struct {
	templates map[TemplateKey]*templateElement

	timeout time.Duration

	mu *sync.Mutex

	name string
}

var _ TemplateCache = &SlidingEphemeralCache{}

func NewDefaultSlidingEphemeralCache() TemplateCache {
	return NewNamedSlidingEphemeralCache("default")
}

func NewNamedSlidingEphemeralCache(name string) TemplateCache {
	return &SlidingEphemeralCache{
		templates: make(map[TemplateKey]*templateElement),
		mu:        &sync.Mutex{},
		name:      name,
		timeout:   0,
	}
}

func (ts *SlidingEphemeralCache) GetAll(ctx context.Context) map[TemplateKey]*Template {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	mm := make(map[TemplateKey]*Template, len(ts.templates))
	for k, v := range ts.templates {
		if !ts.expired(v, now) {
			mm[k] = v.template
		}
	}
	return mm
}

func (ts *SlidingEphemeralCache) Get(ctx context.Context, key TemplateKey) (*Template, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	te, ok := ts.templates[key]
	if !ok {
		return nil, TemplateNotFound(key)
	}

	now := time.Now()
	if ts.expired(te, now) {
		delete(ts.templates, key)
		TemplateEvictions.Inc()
		TemplatesActive.Set(float64(len(ts.templates)))
		return nil, TemplateNotFound(key)
	}

	// sliding expiry, every use renews the full window
	te.refreshed = now

	return te.template, nil
}

func (ts *SlidingEphemeralCache) Add(ctx context.Context, key TemplateKey, template *Template) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.sweep(time.Now())

	ts.templates[key] = &templateElement{
		refreshed: time.Now(),
		template:  template,
	}
	TemplatesActive.Set(float64(len(ts.templates)))
	return nil
}

func (ts *SlidingEphemeralCache) Delete(ctx context.Context, key TemplateKey) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	delete(ts.templates, key)
	TemplatesActive.Set(float64(len(ts.templates)))
	return nil
}

// SetTimeout updates the internal duration after which an unused template
// expires. Deadlines of cached templates are derived from their last use and
// the current timeout on every access, so updating the timeout immediately
// affects existing templates as well. A timeout of 0 or below disables expiry.
func (ts *SlidingEphemeralCache) SetTimeout(d time.Duration) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.timeout = d
}

func (ts *SlidingEphemeralCache) Type() string {
	return "sliding_ephemeral"
}

func (ts *SlidingEphemeralCache) Name() string {
	return ts.name
}

func (ts *SlidingEphemeralCache) MarshalJSON() ([]byte, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	s := make(map[string]interface{})
	for k, v := range ts.templates {
		if !ts.expired(v, now) {
			s[k.String()] = v.template
		}
	}
	return json.Marshal(s)
}

func (ts *SlidingEphemeralCache) expired(te *templateElement, now time.Time) bool {
	return ts.timeout > 0 && now.Sub(te.refreshed) > ts.timeout
}

// sweep removes all expired entries. Callers must hold the mutex.
func (ts *SlidingEphemeralCache) sweep(now time.Time) {
	for k, v := range ts.templates {
		if ts.expired(v, now) {
			delete(ts.templates, k)
			TemplateEvictions.Inc()
		}
	}
}

var (
	TemplatesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "template_cache_active_templates",
		Help: "Number of live templates in the template cache",
	})
	TemplateEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "template_cache_evictions_total",
		Help: "Total number of templates evicted after their expiry window passed",
	})
)
