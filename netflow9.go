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
	"strings"
	"time"
)

const (
	netflow9HeaderLength = 20
	flowsetHeaderLength  = 4
	netflow9TemplateId   = 0
	netflow9OptionsId    = 1
	minimumDataFlowsetId = 256
)

// NetFlow9Header is the 20-byte packet header of RFC 3954.
type NetFlow9Header struct {
	Version      uint16
	Count        uint16
	SysUptime    uint32
	UnixSecs     uint32
	FlowSequence uint32
	SourceId     uint32
}

func (h *NetFlow9Header) decode(b []byte) error {
	if len(b) < netflow9HeaderLength {
		return MalformedPacket("too short for a NetFlow v9 header")
	}
	h.Version = binary.BigEndian.Uint16(b[0:2])
	h.Count = binary.BigEndian.Uint16(b[2:4])
	h.SysUptime = binary.BigEndian.Uint32(b[4:8])
	h.UnixSecs = binary.BigEndian.Uint32(b[8:12])
	h.FlowSequence = binary.BigEndian.Uint32(b[12:16])
	h.SourceId = binary.BigEndian.Uint32(b[16:20])
	return nil
}

// switchedTime synthesizes the absolute flow start/end time from a
// first_switched or last_switched uptime value. v9 headers carry no
// nanosecond field; the sub-second part is 1_000_000 minus the millisecond
// remainder of the uptime difference, taken as microseconds, so a difference
// of whole seconds lands on the next second boundary.
func (h *NetFlow9Header) switchedTime(value uint64) time.Time {
	millis := int64(h.SysUptime) - int64(value)
	seconds := int64(h.UnixSecs) - millis/1000
	micros := int64(1_000_000) - millis%1000
	return time.Unix(seconds, micros*1000)
}

// netflow9Scopes enumerates the scope field types of options templates.
// Scope fields are not information elements, they are decoded as unsigned
// integers of their declared length under these names.
var netflow9Scopes = map[uint16]string{
	1: "scope_system",
	2: "scope_interface",
	3: "scope_line_card",
	4: "scope_netflow_cache",
	5: "scope_template",
}

func (d *Decoder) decodeNetFlow9(ctx context.Context, b []byte, exporter Exporter) ([]*Event, error) {
	logger := FromContext(ctx)

	h := &NetFlow9Header{}
	if err := h.decode(b); err != nil {
		return nil, err
	}

	events := make([]*Event, 0)

	offset := netflow9HeaderLength
	for offset+flowsetHeaderLength <= len(b) {
		flowsetId := binary.BigEndian.Uint16(b[offset : offset+2])
		flowsetLength := int(binary.BigEndian.Uint16(b[offset+2 : offset+4]))

		if flowsetLength < flowsetHeaderLength || offset+flowsetLength > len(b) {
			return events, MalformedPacket("flowset length exceeds packet")
		}

		payload := b[offset+flowsetHeaderLength : offset+flowsetLength]
		offset += flowsetLength

		switch {
		case flowsetId == netflow9TemplateId:
			if err := d.decodeNetFlow9Templates(ctx, payload, h, exporter); err != nil {
				return events, err
			}
		case flowsetId == netflow9OptionsId:
			if err := d.decodeNetFlow9OptionsTemplates(ctx, payload, h, exporter); err != nil {
				return events, err
			}
		case flowsetId >= minimumDataFlowsetId:
			key := NewTemplateKey(h.SourceId, flowsetId, exporter.Addr, exporter.Port)
			for _, record := range d.decodeDataFlowset(ctx, payload, key) {
				events = append(events, d.netflow9Event(h, exporter, flowsetId, record))
			}
		default:
			// flowset ids 2 through 255 are reserved
			logger.V(2).Info("skipping reserved flowset", "id", flowsetId)
		}
	}

	DecodedRecords.WithLabelValues("9").Add(float64(len(events)))

	return events, nil
}

// decodeNetFlow9Templates learns all templates of a template flowset.
// Templates declaring a field type absent from the catalog are discarded as
// a whole, parsing continues with the next template.
func (d *Decoder) decodeNetFlow9Templates(ctx context.Context, p []byte, h *NetFlow9Header, exporter Exporter) error {
	logger := FromContext(ctx)

	offset := 0
	for offset+4 <= len(p) {
		templateId := binary.BigEndian.Uint16(p[offset : offset+2])
		fieldCount := int(binary.BigEndian.Uint16(p[offset+2 : offset+4]))
		offset += 4

		if templateId == 0 {
			// trailing padding, not a template record
			break
		}
		if offset+fieldCount*4 > len(p) {
			return MalformedPacket("truncated template record")
		}

		fields := make([]templateField, 0, fieldCount)
		var rejected error
		for i := 0; i < fieldCount; i++ {
			fieldType := binary.BigEndian.Uint16(p[offset : offset+2])
			fieldLength := binary.BigEndian.Uint16(p[offset+2 : offset+4])
			offset += 4

			f, err := d.catalog.ResolveNetFlowV9(fieldType, fieldLength)
			if err != nil {
				// keep consuming the remaining declarations to stay aligned
				rejected = err
				continue
			}
			fields = append(fields, f)
		}

		if rejected != nil {
			logger.V(1).Info("discarding template", "id", templateId, "reason", rejected.Error())
			RejectedTemplates.Inc()
			continue
		}

		key := NewTemplateKey(h.SourceId, templateId, exporter.Addr, exporter.Port)
		d.templates.Add(ctx, key, NewTemplate(fields))
	}
	return nil
}

// decodeNetFlow9OptionsTemplates learns options templates. Scope fields are
// named by the scope enumeration and decoded as unsigned integers, option
// fields resolve through the catalog like regular template fields.
func (d *Decoder) decodeNetFlow9OptionsTemplates(ctx context.Context, p []byte, h *NetFlow9Header, exporter Exporter) error {
	logger := FromContext(ctx)

	offset := 0
	for offset+6 <= len(p) {
		templateId := binary.BigEndian.Uint16(p[offset : offset+2])
		scopeLength := int(binary.BigEndian.Uint16(p[offset+2 : offset+4]))
		optionLength := int(binary.BigEndian.Uint16(p[offset+4 : offset+6]))
		offset += 6

		if templateId == 0 {
			// trailing padding, not an options template record
			break
		}
		if scopeLength%4 != 0 || optionLength%4 != 0 || offset+scopeLength+optionLength > len(p) {
			return MalformedPacket("truncated options template record")
		}

		fields := make([]templateField, 0, (scopeLength+optionLength)/4)
		var rejected error

		for i := 0; i < scopeLength/4; i++ {
			scopeType := binary.BigEndian.Uint16(p[offset : offset+2])
			fieldLength := binary.BigEndian.Uint16(p[offset+2 : offset+4])
			offset += 4

			name, ok := netflow9Scopes[scopeType]
			if !ok {
				rejected = FieldUnsupported(NewFieldKey(0, scopeType))
				continue
			}
			fields = append(fields, templateField{kind: KindUnsigned, name: name, length: fieldLength})
		}

		for i := 0; i < optionLength/4; i++ {
			fieldType := binary.BigEndian.Uint16(p[offset : offset+2])
			fieldLength := binary.BigEndian.Uint16(p[offset+2 : offset+4])
			offset += 4

			f, err := d.catalog.ResolveNetFlowV9(fieldType, fieldLength)
			if err != nil {
				rejected = err
				continue
			}
			fields = append(fields, f)
		}

		if rejected != nil {
			logger.V(1).Info("discarding options template", "id", templateId, "reason", rejected.Error())
			RejectedTemplates.Inc()
			continue
		}

		key := NewTemplateKey(h.SourceId, templateId, exporter.Addr, exporter.Port)
		d.templates.Add(ctx, key, NewTemplate(fields))
	}
	return nil
}

func (d *Decoder) netflow9Event(h *NetFlow9Header, exporter Exporter, flowsetId uint16, record []RecordField) *Event {
	fields := map[string]interface{}{
		"version":      h.Version,
		"flow_seq_num": h.FlowSequence,
		"flowset_id":   flowsetId,
	}
	for _, f := range record {
		if v, ok := f.Value.(uint64); ok && strings.HasSuffix(f.Name, "_switched") {
			fields[f.Name] = isoTimestamp(h.switchedTime(v))
			continue
		}
		fields[f.Name] = f.Value
	}

	return d.container(time.Unix(int64(h.UnixSecs), 0).UTC(), exporter, fields)
}
