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
	"encoding/binary"
	"time"

	"github.com/zoomoid/go-netflow/iana/version"
)

// DefaultTarget is the container key under which decoded flow fields are
// nested in emitted events.
const DefaultTarget = "netflow"

// Exporter is the source address of a datagram as observed on the UDP
// socket. Together with the source or observation domain id carried in the
// payload it scopes template announcements, see TemplateKey.
type Exporter struct {
	Addr string
	Port uint16
}

// Decoder turns raw NetFlow/IPFIX datagrams into flow events. It is
// instantiated with a template cache, into which template flowsets are
// learned, and a field catalog against which they are compiled.
//
// A single Decoder is shared by all decoding workers, the template cache is
// its only mutable state.
type Decoder struct {
	templates TemplateCache

	catalog *Catalog

	options DecoderOptions
}

type DecoderOptions struct {
	// Versions is the set of protocol versions the decoder accepts. Datagrams
	// of any other version produce a decode failure. Empty means all
	// supported versions.
	Versions []version.ProtocolVersion

	// Target is the container key for decoded flow fields, DefaultTarget if
	// empty
	Target string
}

var (
	DefaultDecoderOptions = DecoderOptions{
		Versions: []version.ProtocolVersion{version.NetFlowV5, version.NetFlowV9, version.IPFIX},
		Target:   DefaultTarget,
	}
)

func (o *DecoderOptions) Merge(opts ...DecoderOptions) {
	for _, opt := range opts {
		if len(opt.Versions) > 0 {
			o.Versions = opt.Versions
		}
		if opt.Target != "" {
			o.Target = opt.Target
		}
	}
}

// NewDecoder creates a new Decoder for a given template cache and field
// catalog.
func NewDecoder(templates TemplateCache, catalog *Catalog, opts ...DecoderOptions) *Decoder {
	options := DefaultDecoderOptions
	options.Merge(opts...)

	return &Decoder{
		templates: templates,
		catalog:   catalog,
		options:   options,
	}
}

// Decode consumes one datagram payload and returns the flow events it
// produced. Errors indicate either an unaccepted protocol version or a
// malformed payload; callers emit exactly one decode-failure event for them.
// Events decoded before a malformed section was reached are returned
// alongside the error.
func (d *Decoder) Decode(ctx context.Context, payload []byte, exporter Exporter) (events []*Event, err error) {
	decoderStart := time.Now()

	defer func() {
		DurationMicroseconds.Observe(float64(time.Since(decoderStart).Nanoseconds()) / 1000)
		PacketsTotal.Inc()
		if err != nil {
			ErrorsTotal.Inc()
		}
	}()

	if len(payload) < 2 {
		return nil, MalformedPacket("too short for a version field")
	}

	v := version.ProtocolVersion(binary.BigEndian.Uint16(payload))
	if !d.accepts(v) {
		return nil, UnknownVersion(v)
	}

	switch v {
	case version.NetFlowV5:
		return d.decodeNetFlow5(ctx, payload, exporter)
	case version.NetFlowV9:
		return d.decodeNetFlow9(ctx, payload, exporter)
	case version.IPFIX:
		return d.decodeIPFIX(ctx, payload, exporter)
	default:
		return nil, UnknownVersion(v)
	}
}

func (d *Decoder) accepts(v version.ProtocolVersion) bool {
	for _, a := range d.options.Versions {
		if a == v {
			return true
		}
	}
	return false
}

// decodeDataFlowset looks up the template a data flowset references and
// applies it repeatedly to the flowset payload. A cache miss, or a payload
// the template's record width does not divide (tolerating up to 3 bytes of
// trailing padding), skips the flowset with a warning rather than failing
// the whole datagram: templates travel in separate datagrams and may simply
// not have arrived yet.
func (d *Decoder) decodeDataFlowset(ctx context.Context, payload []byte, key TemplateKey) [][]RecordField {
	logger := FromContext(ctx)

	t, err := d.templates.Get(ctx, key)
	if err != nil {
		logger.V(1).Info("skipping data flowset without a template", "key", key.String())
		SkippedFlowsets.WithLabelValues("missing_template").Inc()
		return nil
	}

	width := t.Length()
	if width == 0 || width > len(payload) || len(payload)%width > 3 {
		logger.V(1).Info("skipping data flowset, template width does not match payload",
			"key", key.String(), "width", width, "payload", len(payload))
		SkippedFlowsets.WithLabelValues("length_mismatch").Inc()
		return nil
	}

	n := len(payload) / width
	records := make([][]RecordField, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, t.Decode(payload[i*width:(i+1)*width]))
	}
	return records
}

// container nests the decoded flow fields under the configured target key.
func (d *Decoder) container(ts time.Time, exporter Exporter, fields map[string]interface{}) *Event {
	return &Event{
		Timestamp: ts,
		Host:      exporter.Addr,
		Fields: map[string]interface{}{
			d.options.Target: fields,
		},
	}
}
