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
	netflow5HeaderLength = 24
	netflow5RecordLength = 48
)

// NetFlow5Header is the fixed 24-byte header of a NetFlow v5 export packet.
// The sampling word packs the algorithm into the top 2 bits and the interval
// into the low 14 bits.
type NetFlow5Header struct {
	Version           uint16
	Count             uint16
	SysUptime         uint32
	UnixSecs          uint32
	UnixNsecs         uint32
	FlowSequence      uint32
	EngineType        uint8
	EngineId          uint8
	SamplingAlgorithm uint8
	SamplingInterval  uint16
}

func (h *NetFlow5Header) decode(b []byte) error {
	if len(b) < netflow5HeaderLength {
		return MalformedPacket("too short for a NetFlow v5 header")
	}
	h.Version = binary.BigEndian.Uint16(b[0:2])
	h.Count = binary.BigEndian.Uint16(b[2:4])
	h.SysUptime = binary.BigEndian.Uint32(b[4:8])
	h.UnixSecs = binary.BigEndian.Uint32(b[8:12])
	h.UnixNsecs = binary.BigEndian.Uint32(b[12:16])
	h.FlowSequence = binary.BigEndian.Uint32(b[16:20])
	h.EngineType = b[20]
	h.EngineId = b[21]
	sampling := binary.BigEndian.Uint16(b[22:24])
	h.SamplingAlgorithm = uint8(sampling >> 14)
	h.SamplingInterval = sampling & 0x3FFF
	return nil
}

// switchedTime synthesizes the absolute flow start/end time from a
// first_switched or last_switched value, which v5 exports as milliseconds of
// system uptime at the time the flow was switched.
func (h *NetFlow5Header) switchedTime(value uint64) time.Time {
	millis := int64(h.SysUptime) - int64(value)
	seconds := int64(h.UnixSecs) - millis/1000
	micros := int64(h.UnixNsecs)/1000 - millis%1000
	if micros < 0 {
		seconds--
		micros += 1_000_000
	}
	return time.Unix(seconds, micros*1000)
}

// netflow5Record is the fixed record layout of v5, compiled once. v5 has no
// templates, its 48-byte record is effectively a built-in one.
var netflow5Record = NewTemplate([]templateField{
	{kind: KindIPv4Address, name: "ipv4_src_addr", length: 4},
	{kind: KindIPv4Address, name: "ipv4_dst_addr", length: 4},
	{kind: KindIPv4Address, name: "ipv4_next_hop", length: 4},
	{kind: KindUnsigned, name: "input_snmp", length: 2},
	{kind: KindUnsigned, name: "output_snmp", length: 2},
	{kind: KindUnsigned, name: "in_pkts", length: 4},
	{kind: KindUnsigned, name: "in_bytes", length: 4},
	{kind: KindUnsigned, name: "first_switched", length: 4},
	{kind: KindUnsigned, name: "last_switched", length: 4},
	{kind: KindUnsigned, name: "l4_src_port", length: 2},
	{kind: KindUnsigned, name: "l4_dst_port", length: 2},
	{kind: KindSkip, length: 1},
	{kind: KindUnsigned, name: "tcp_flags", length: 1},
	{kind: KindUnsigned, name: "protocol", length: 1},
	{kind: KindUnsigned, name: "src_tos", length: 1},
	{kind: KindUnsigned, name: "src_as", length: 2},
	{kind: KindUnsigned, name: "dst_as", length: 2},
	{kind: KindUnsigned, name: "src_mask", length: 1},
	{kind: KindUnsigned, name: "dst_mask", length: 1},
	{kind: KindSkip, length: 2},
})

func (d *Decoder) decodeNetFlow5(ctx context.Context, b []byte, exporter Exporter) ([]*Event, error) {
	h := &NetFlow5Header{}
	if err := h.decode(b); err != nil {
		return nil, err
	}

	if len(b) < netflow5HeaderLength+int(h.Count)*netflow5RecordLength {
		return nil, MalformedPacket("too short for the announced NetFlow v5 record count")
	}

	// event timestamp resolution in v5 is microseconds
	ts := time.Unix(int64(h.UnixSecs), int64(h.UnixNsecs/1000)*1000).UTC()

	events := make([]*Event, 0, h.Count)
	for i := 0; i < int(h.Count); i++ {
		offset := netflow5HeaderLength + i*netflow5RecordLength
		record := netflow5Record.Decode(b[offset : offset+netflow5RecordLength])

		fields := map[string]interface{}{
			"version":            h.Version,
			"flow_seq_num":       h.FlowSequence,
			"engine_type":        h.EngineType,
			"engine_id":          h.EngineId,
			"sampling_algorithm": h.SamplingAlgorithm,
			"sampling_interval":  h.SamplingInterval,
		}
		for _, f := range record {
			if v, ok := f.Value.(uint64); ok && strings.HasSuffix(f.Name, "_switched") {
				fields[f.Name] = isoTimestamp(h.switchedTime(v))
				continue
			}
			fields[f.Name] = f.Value
		}

		events = append(events, d.container(ts, exporter, fields))
	}

	DecodedRecords.WithLabelValues("5").Add(float64(len(events)))

	return events, nil
}
