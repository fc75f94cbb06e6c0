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
)

const (
	ipfixHeaderLength = 16
	ipfixTemplateId   = 2
	ipfixOptionsId    = 3

	// enterpriseBit in a template's field type marks the presence of an
	// enterprise number after the (type, length) pair, RFC 7011 section 3.2
	enterpriseBit uint16 = 0x8000
)

// IPFIXHeader is the 16-byte message header of RFC 7011.
type IPFIXHeader struct {
	Version             uint16
	Length              uint16
	ExportTime          uint32
	SequenceNumber      uint32
	ObservationDomainId uint32
}

func (h *IPFIXHeader) decode(b []byte) error {
	if len(b) < ipfixHeaderLength {
		return MalformedPacket("too short for an IPFIX header")
	}
	h.Version = binary.BigEndian.Uint16(b[0:2])
	h.Length = binary.BigEndian.Uint16(b[2:4])
	h.ExportTime = binary.BigEndian.Uint32(b[4:8])
	h.SequenceNumber = binary.BigEndian.Uint32(b[8:12])
	h.ObservationDomainId = binary.BigEndian.Uint32(b[12:16])
	return nil
}

func (d *Decoder) decodeIPFIX(ctx context.Context, b []byte, exporter Exporter) ([]*Event, error) {
	logger := FromContext(ctx)

	h := &IPFIXHeader{}
	if err := h.decode(b); err != nil {
		return nil, err
	}

	events := make([]*Event, 0)

	offset := ipfixHeaderLength
	for offset+flowsetHeaderLength <= len(b) {
		flowsetId := binary.BigEndian.Uint16(b[offset : offset+2])
		flowsetLength := int(binary.BigEndian.Uint16(b[offset+2 : offset+4]))

		if flowsetLength < flowsetHeaderLength || offset+flowsetLength > len(b) {
			return events, MalformedPacket("flowset length exceeds packet")
		}

		payload := b[offset+flowsetHeaderLength : offset+flowsetLength]
		offset += flowsetLength

		switch {
		case flowsetId == ipfixTemplateId:
			if err := d.decodeIPFIXTemplates(ctx, payload, h, exporter); err != nil {
				return events, err
			}
		case flowsetId == ipfixOptionsId:
			if err := d.decodeIPFIXOptionsTemplates(ctx, payload, h, exporter); err != nil {
				return events, err
			}
		case flowsetId >= minimumDataFlowsetId:
			key := NewTemplateKey(h.ObservationDomainId, flowsetId, exporter.Addr, exporter.Port)
			for _, record := range d.decodeDataFlowset(ctx, payload, key) {
				events = append(events, d.ipfixEvent(h, exporter, record))
			}
		default:
			// set ids 4 through 255 are reserved
			logger.V(2).Info("skipping reserved set", "id", flowsetId)
		}
	}

	DecodedRecords.WithLabelValues("10").Add(float64(len(events)))

	return events, nil
}

// decodeIPFIXField reads one field declaration including the optional
// enterprise number and returns its key, declared length, and the number of
// bytes consumed.
func decodeIPFIXField(p []byte) (key FieldKey, length uint16, n int, err error) {
	if len(p) < 4 {
		return key, 0, 0, MalformedPacket("truncated field declaration")
	}
	rawType := binary.BigEndian.Uint16(p[0:2])
	length = binary.BigEndian.Uint16(p[2:4])
	n = 4

	var enterpriseId uint32
	if rawType&enterpriseBit != 0 {
		if len(p) < 8 {
			return key, 0, 0, MalformedPacket("truncated enterprise field declaration")
		}
		enterpriseId = binary.BigEndian.Uint32(p[4:8])
		n = 8
	}

	key = NewFieldKey(enterpriseId, rawType&^enterpriseBit)
	return key, length, n, nil
}

func (d *Decoder) decodeIPFIXTemplates(ctx context.Context, p []byte, h *IPFIXHeader, exporter Exporter) error {
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

		fields := make([]templateField, 0, fieldCount)
		var rejected error
		for i := 0; i < fieldCount; i++ {
			key, length, n, err := decodeIPFIXField(p[offset:])
			if err != nil {
				return err
			}
			offset += n

			f, err := d.catalog.ResolveIPFIX(key, length)
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

		key := NewTemplateKey(h.ObservationDomainId, templateId, exporter.Addr, exporter.Port)
		d.templates.Add(ctx, key, NewTemplate(fields))
	}
	return nil
}

// decodeIPFIXOptionsTemplates learns options templates. Unlike NetFlow v9,
// IPFIX scope fields are regular information elements, so scope and option
// declarations resolve uniformly through the catalog.
func (d *Decoder) decodeIPFIXOptionsTemplates(ctx context.Context, p []byte, h *IPFIXHeader, exporter Exporter) error {
	logger := FromContext(ctx)

	offset := 0
	for offset+6 <= len(p) {
		templateId := binary.BigEndian.Uint16(p[offset : offset+2])
		fieldCount := int(binary.BigEndian.Uint16(p[offset+2 : offset+4]))
		// scope field count, not needed for uniform resolution
		_ = binary.BigEndian.Uint16(p[offset+4 : offset+6])
		offset += 6

		if templateId == 0 {
			// trailing padding, not an options template record
			break
		}

		fields := make([]templateField, 0, fieldCount)
		var rejected error
		for i := 0; i < fieldCount; i++ {
			key, length, n, err := decodeIPFIXField(p[offset:])
			if err != nil {
				return err
			}
			offset += n

			f, err := d.catalog.ResolveIPFIX(key, length)
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

		key := NewTemplateKey(h.ObservationDomainId, templateId, exporter.Addr, exporter.Port)
		d.templates.Add(ctx, key, NewTemplate(fields))
	}
	return nil
}

func (d *Decoder) ipfixEvent(h *IPFIXHeader, exporter Exporter, record []RecordField) *Event {
	fields := map[string]interface{}{
		"version": h.Version,
	}
	for _, f := range record {
		if v, ok := f.Value.(uint64); ok {
			if ts, ok := ipfixTimeField(f.Name, v); ok {
				fields[f.Name] = ts
				continue
			}
		}
		fields[f.Name] = f.Value
	}

	return d.container(time.Unix(int64(h.ExportTime), 0).UTC(), exporter, fields)
}

// ipfixTimeField renders the absolute-time information elements as ISO-8601
// strings according to their unit.
func ipfixTimeField(name string, v uint64) (string, bool) {
	switch name {
	case "flowStartSeconds", "flowEndSeconds":
		return isoTimestamp(time.Unix(int64(v), 0)), true
	case "flowStartMilliseconds", "flowEndMilliseconds":
		return isoTimestamp(time.UnixMilli(int64(v))), true
	case "flowStartMicroseconds", "flowEndMicroseconds":
		return isoTimestamp(time.UnixMicro(int64(v))), true
	case "flowStartNanoseconds", "flowEndNanoseconds":
		return isoTimestamp(time.Unix(0, int64(v))), true
	}
	return "", false
}
