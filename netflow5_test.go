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
	"errors"
	"testing"
	"time"
)

// v5Packet builds a NetFlow v5 packet with the given switched timestamps,
// one record per pair.
func v5Packet(sysUptime, unixSecs, unixNsecs, sequence uint32, sampling uint16, switched ...[2]uint32) []byte {
	b := binary.BigEndian.AppendUint16(nil, 5)
	b = binary.BigEndian.AppendUint16(b, uint16(len(switched)))
	b = binary.BigEndian.AppendUint32(b, sysUptime)
	b = binary.BigEndian.AppendUint32(b, unixSecs)
	b = binary.BigEndian.AppendUint32(b, unixNsecs)
	b = binary.BigEndian.AppendUint32(b, sequence)
	b = append(b, 1, 42) // engine type, engine id
	b = binary.BigEndian.AppendUint16(b, sampling)

	for _, s := range switched {
		r := make([]byte, netflow5RecordLength)
		copy(r[0:4], []byte{10, 0, 0, 1})  // ipv4_src_addr
		copy(r[4:8], []byte{10, 0, 0, 2})  // ipv4_dst_addr
		copy(r[8:12], []byte{10, 0, 0, 3}) // ipv4_next_hop
		binary.BigEndian.PutUint32(r[16:20], 13)
		binary.BigEndian.PutUint32(r[20:24], 37)
		binary.BigEndian.PutUint32(r[24:28], s[0])
		binary.BigEndian.PutUint32(r[28:32], s[1])
		binary.BigEndian.PutUint16(r[32:34], 4739)
		binary.BigEndian.PutUint16(r[34:36], 2055)
		r[38] = 17 // protocol
		b = append(b, r...)
	}
	return b
}

func TestDecodeNetFlow5(t *testing.T) {
	d := newTestDecoder()

	payload := v5Packet(10_000, 1_600_000_000, 500_000_000, 7, 1<<14|100,
		[2]uint32{9_000, 9_500},
		[2]uint32{9_000, 9_500},
	)

	events, err := d.Decode(context.TODO(), payload, testExporter)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	for _, ev := range events {
		if !ev.Timestamp.Equal(time.Unix(1_600_000_000, 500_000_000)) {
			t.Errorf("expected event timestamp at unix_sec + unix_nsec, got %v", ev.Timestamp)
		}
		if ev.Host != testExporter.Addr {
			t.Errorf("expected exporter host on event, got %q", ev.Host)
		}

		fields := flowFields(t, ev, DefaultTarget)

		if fields["flow_seq_num"] != uint32(7) {
			t.Errorf("expected flow_seq_num 7, got %v", fields["flow_seq_num"])
		}
		if fields["sampling_algorithm"] != uint8(1) {
			t.Errorf("expected sampling_algorithm from the top 2 bits, got %v", fields["sampling_algorithm"])
		}
		if fields["sampling_interval"] != uint16(100) {
			t.Errorf("expected sampling_interval from the low 14 bits, got %v", fields["sampling_interval"])
		}
		if fields["ipv4_src_addr"] != "10.0.0.1" {
			t.Errorf("expected decoded source address, got %v", fields["ipv4_src_addr"])
		}
		if fields["in_bytes"] != uint64(37) || fields["in_pkts"] != uint64(13) {
			t.Errorf("expected counters 37/13, got %v/%v", fields["in_bytes"], fields["in_pkts"])
		}
		if fields["protocol"] != uint64(17) {
			t.Errorf("expected protocol 17, got %v", fields["protocol"])
		}

		// first_switched is 9000ms into an uptime of 10000ms, i.e. 1s before
		// the header timestamp of unix_sec + 500ms
		first, err := time.Parse(time.RFC3339Nano, fields["first_switched"].(string))
		if err != nil {
			t.Fatal(err)
		}
		if !first.Equal(time.Unix(1_599_999_999, 500_000_000)) {
			t.Errorf("expected first_switched at 1599999999.5, got %v", first)
		}

		// last_switched is 500ms of uptime before the header timestamp; the
		// synthesis subtracts that millisecond remainder from the header's
		// microseconds, with no whole-second borrow needed
		last, err := time.Parse(time.RFC3339Nano, fields["last_switched"].(string))
		if err != nil {
			t.Fatal(err)
		}
		if !last.Equal(time.Unix(1_600_000_000, 499_500_000)) {
			t.Errorf("expected last_switched at 1600000000.4995, got %v", last)
		}
	}
}

func TestDecodeNetFlow5Truncated(t *testing.T) {
	d := newTestDecoder()

	payload := v5Packet(10_000, 1_600_000_000, 0, 1, 0, [2]uint32{0, 0})

	// announce more records than the packet carries
	binary.BigEndian.PutUint16(payload[2:4], 3)

	events, err := d.Decode(context.TODO(), payload, testExporter)
	if !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("expected ErrMalformedPacket, got %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events from a truncated packet, got %d", len(events))
	}
}
