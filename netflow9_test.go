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
	"testing"
	"time"
)

func TestDecodeNetFlow9TemplateAndData(t *testing.T) {
	d := newTestDecoder()

	// template 256 declaring [in_bytes u32, in_pkts u32], followed by one
	// matching data record in the same packet
	template := flowset(netflow9TemplateId, v9Template(256, [2]uint16{1, 4}, [2]uint16{2, 4}))
	data := flowset(256, []byte{0x00, 0x00, 0x00, 0x64, 0x00, 0x00, 0x00, 0x0A})

	payload := v9Packet(10_000, 1_600_000_000, 23, 1, template, data)

	events, err := d.Decode(context.TODO(), payload, testExporter)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	ev := events[0]
	if !ev.Timestamp.Equal(time.Unix(1_600_000_000, 0)) {
		t.Errorf("expected event timestamp at unix_secs, got %v", ev.Timestamp)
	}

	fields := flowFields(t, ev, DefaultTarget)
	if fields["in_bytes"] != uint64(100) || fields["in_pkts"] != uint64(10) {
		t.Errorf("expected in_bytes=100 in_pkts=10, got %v/%v", fields["in_bytes"], fields["in_pkts"])
	}
	if fields["flowset_id"] != uint16(256) {
		t.Errorf("expected flowset_id 256, got %v", fields["flowset_id"])
	}
	if fields["version"] != uint16(9) {
		t.Errorf("expected version 9, got %v", fields["version"])
	}
	if fields["flow_seq_num"] != uint32(23) {
		t.Errorf("expected flow_seq_num 23, got %v", fields["flow_seq_num"])
	}
}

func TestDecodeNetFlow9DataBeforeTemplate(t *testing.T) {
	d := newTestDecoder()

	data := flowset(256, []byte{0x00, 0x00, 0x00, 0x64, 0x00, 0x00, 0x00, 0x0A})

	// the data flowset arrives before its template has been seen
	events, err := d.Decode(context.TODO(), v9Packet(10_000, 1_600_000_000, 1, 1, data), testExporter)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events without a template, got %d", len(events))
	}

	// template arrives in a later packet
	template := flowset(netflow9TemplateId, v9Template(256, [2]uint16{1, 4}, [2]uint16{2, 4}))
	_, err = d.Decode(context.TODO(), v9Packet(10_000, 1_600_000_000, 2, 1, template), testExporter)
	if err != nil {
		t.Fatal(err)
	}

	// and the same data flowset decodes now
	events, err = d.Decode(context.TODO(), v9Packet(10_000, 1_600_000_000, 3, 1, data), testExporter)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event after the template arrived, got %d", len(events))
	}
}

func TestDecodeNetFlow9TemplateIsolation(t *testing.T) {
	d := newTestDecoder()

	first := Exporter{Addr: "192.0.2.10", Port: 2055}
	second := Exporter{Addr: "192.0.2.20", Port: 2055}

	// both exporters announce template id 256 with different layouts
	t1 := flowset(netflow9TemplateId, v9Template(256, [2]uint16{1, 4}, [2]uint16{2, 4}))
	t2 := flowset(netflow9TemplateId, v9Template(256, [2]uint16{7, 2}, [2]uint16{11, 2}))

	if _, err := d.Decode(context.TODO(), v9Packet(0, 1_600_000_000, 1, 1, t1), first); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Decode(context.TODO(), v9Packet(0, 1_600_000_000, 1, 1, t2), second); err != nil {
		t.Fatal(err)
	}

	// the second exporter's 4-byte records decode with its own 2x2-byte
	// layout, not the first exporter's 8-byte one
	data := flowset(256, []byte{0x12, 0x83, 0x08, 0x07})
	events, err := d.Decode(context.TODO(), v9Packet(0, 1_600_000_000, 2, 1, data), second)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	fields := flowFields(t, events[0], DefaultTarget)
	if fields["l4_src_port"] != uint64(0x1283) || fields["l4_dst_port"] != uint64(0x0807) {
		t.Errorf("cross-exporter template contamination: %v", fields)
	}

	// the first exporter's 8-byte records still use its own layout
	data = flowset(256, []byte{0x00, 0x00, 0x00, 0x64, 0x00, 0x00, 0x00, 0x0A})
	events, err = d.Decode(context.TODO(), v9Packet(0, 1_600_000_000, 3, 1, data), first)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	fields = flowFields(t, events[0], DefaultTarget)
	if fields["in_bytes"] != uint64(100) {
		t.Errorf("cross-exporter template contamination: %v", fields)
	}
}

func TestDecodeNetFlow9SourceIdIsolation(t *testing.T) {
	d := newTestDecoder()

	// same exporter address, two observation domains announcing different
	// layouts under the same template id
	t1 := flowset(netflow9TemplateId, v9Template(256, [2]uint16{1, 4}))
	t2 := flowset(netflow9TemplateId, v9Template(256, [2]uint16{7, 2}))

	if _, err := d.Decode(context.TODO(), v9Packet(0, 1_600_000_000, 1, 100, t1), testExporter); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Decode(context.TODO(), v9Packet(0, 1_600_000_000, 1, 200, t2), testExporter); err != nil {
		t.Fatal(err)
	}

	data := flowset(256, []byte{0x00, 0x00, 0x00, 0x2A})
	events, err := d.Decode(context.TODO(), v9Packet(0, 1_600_000_000, 2, 100, data), testExporter)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	fields := flowFields(t, events[0], DefaultTarget)
	if fields["in_bytes"] != uint64(42) {
		t.Errorf("cross-domain template contamination: %v", fields)
	}
}

func TestDecodeNetFlow9UnresolvableTemplate(t *testing.T) {
	d := newTestDecoder()

	// field type 65535 is not in the catalog, the whole template is
	// discarded
	template := flowset(netflow9TemplateId, v9Template(256, [2]uint16{1, 4}, [2]uint16{65535, 4}))
	data := flowset(256, []byte{0x00, 0x00, 0x00, 0x64, 0x00, 0x00, 0x00, 0x0A})

	events, err := d.Decode(context.TODO(), v9Packet(0, 1_600_000_000, 1, 1, template, data), testExporter)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events from a rejected template, got %d", len(events))
	}
}

func TestDecodeNetFlow9PaddedDataFlowset(t *testing.T) {
	d := newTestDecoder()

	// in_bytes declared with 8 bytes, one record is 8 bytes wide
	template := flowset(netflow9TemplateId, v9Template(256, [2]uint16{1, 8}))

	// two records plus 3 bytes of padding are tolerated
	padded := flowset(256, []byte{
		0, 0, 0, 0, 0, 0, 0, 0x64,
		0, 0, 0, 0, 0, 0, 0, 0x0A,
		0, 0, 0,
	})

	events, err := d.Decode(context.TODO(), v9Packet(0, 1_600_000_000, 1, 1, template, padded), testExporter)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events with tolerated padding, got %d", len(events))
	}

	// 4 bytes of remainder are not
	mismatched := flowset(256, []byte{
		0, 0, 0, 0, 0, 0, 0, 0x64,
		0, 0, 0, 0,
	})
	events, err = d.Decode(context.TODO(), v9Packet(0, 1_600_000_000, 2, 1, mismatched), testExporter)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("expected the mismatched flowset to be skipped, got %d events", len(events))
	}
}

func TestDecodeNetFlow9SwitchedTimes(t *testing.T) {
	d := newTestDecoder()

	template := flowset(netflow9TemplateId, v9Template(256, [2]uint16{21, 4}, [2]uint16{22, 4}))

	data := make([]byte, 8)
	binary.BigEndian.PutUint32(data[0:4], 9_500) // last_switched
	binary.BigEndian.PutUint32(data[4:8], 8_000) // first_switched

	payload := v9Packet(10_000, 1_600_000_000, 1, 1, template, flowset(256, data))
	events, err := d.Decode(context.TODO(), payload, testExporter)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	fields := flowFields(t, events[0], DefaultTarget)

	// first_switched is 2000ms before the header export time. v9 has no
	// sub-second header field, the synthesized timestamp lands on the next
	// whole second boundary
	first, err := time.Parse(time.RFC3339Nano, fields["first_switched"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equal(time.Unix(1_599_999_999, 0)) {
		t.Errorf("expected first_switched at 1599999999, got %v", first)
	}

	// last_switched is 500ms before the header export time, the legacy
	// microsecond synthesis yields the uptime remainder's complement
	last, err := time.Parse(time.RFC3339Nano, fields["last_switched"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if !last.Equal(time.Unix(1_600_000_000, 999_500_000)) {
		t.Errorf("expected last_switched at 1600000000.9995, got %v", last)
	}
}

func TestDecodeNetFlow9OptionsTemplate(t *testing.T) {
	d := newTestDecoder()

	// options template 257: one scope field (system, 4 bytes), one option
	// field (sampling_interval, 4 bytes)
	b := binary.BigEndian.AppendUint16(nil, 257)
	b = binary.BigEndian.AppendUint16(b, 4) // scope section length in bytes
	b = binary.BigEndian.AppendUint16(b, 4) // option section length in bytes
	b = binary.BigEndian.AppendUint16(b, 1) // scope type system
	b = binary.BigEndian.AppendUint16(b, 4)
	b = binary.BigEndian.AppendUint16(b, 34) // sampling_interval
	b = binary.BigEndian.AppendUint16(b, 4)

	options := flowset(netflow9OptionsId, b)
	data := flowset(257, []byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x03, 0xE8})

	events, err := d.Decode(context.TODO(), v9Packet(0, 1_600_000_000, 1, 1, options, data), testExporter)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 options data event, got %d", len(events))
	}

	fields := flowFields(t, events[0], DefaultTarget)
	if fields["scope_system"] != uint64(1) {
		t.Errorf("expected scope_system 1, got %v", fields["scope_system"])
	}
	if fields["sampling_interval"] != uint64(1000) {
		t.Errorf("expected sampling_interval 1000, got %v", fields["sampling_interval"])
	}
}

func TestDecodeNetFlow9MalformedFlowsetLength(t *testing.T) {
	d := newTestDecoder()

	// flowset header announcing more bytes than the packet carries
	bogus := binary.BigEndian.AppendUint16(nil, 256)
	bogus = binary.BigEndian.AppendUint16(bogus, 512)

	_, err := d.Decode(context.TODO(), v9Packet(0, 1_600_000_000, 1, 1, bogus), testExporter)
	if err == nil {
		t.Fatal("expected an error for a flowset length exceeding the packet")
	}
}
