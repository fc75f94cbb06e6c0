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
	"fmt"
	"net"
	"strings"
)

// Kind enumerates the closed set of data types a template field can decode
// into. Unlike the IPFIX information element registry, which carries dozens of
// abstract data types, the decoder only distinguishes the shapes that differ
// in their binary interpretation; everything integer-like is an unsigned
// big-endian integer of some width.
type Kind uint8

const (
	// KindUnsigned is a big-endian unsigned integer of 1 to 8 bytes
	KindUnsigned Kind = iota
	// KindIPv4Address is a 4-byte IPv4 address
	KindIPv4Address
	// KindIPv6Address is a 16-byte IPv6 address
	KindIPv6Address
	// KindMacAddress is a 6-byte IEEE 802 MAC address
	KindMacAddress
	// KindString is a fixed-length string, padded with NUL or space bytes
	KindString
	// KindSkip consumes the declared number of bytes without producing a value
	KindSkip
)

func (k Kind) String() string {
	switch k {
	case KindUnsigned:
		return "unsigned"
	case KindIPv4Address:
		return "ip4_addr"
	case KindIPv6Address:
		return "ip6_addr"
	case KindMacAddress:
		return "mac_addr"
	case KindString:
		return "string"
	case KindSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// FieldSpec is a single entry of a field catalog: the semantic type and
// canonical name under which a template-declared field is decoded.
//
// FieldSpecs are immutable after catalog loading, templates reference them
// by pointer.
type FieldSpec struct {
	Kind Kind

	// Name is the canonical field name emitted into events,
	// e.g. "in_bytes" (NetFlow v9) or "octetDeltaCount" (IPFIX)
	Name string

	// DefaultLength is the width in bytes assumed when a template declares
	// length 0. For address kinds this is the nominal address width.
	DefaultLength uint16
}

func (s *FieldSpec) String() string {
	return fmt.Sprintf("%s<%s,%d>", s.Name, s.Kind, s.DefaultLength)
}

// FieldKey identifies a field specification in the IPFIX catalog.
// EnterpriseId 0 is the IANA standard registry; NetFlow v9 field types use
// a plain uint16 key instead.
type FieldKey struct {
	EnterpriseId uint32
	Id           uint16
}

func NewFieldKey(enterpriseId uint32, fieldId uint16) FieldKey {
	return FieldKey{
		EnterpriseId: enterpriseId,
		Id:           fieldId,
	}
}

const (
	fieldKeySeparator string = ":"
)

func (k FieldKey) String() string {
	return fmt.Sprintf("%d%s%d", k.EnterpriseId, fieldKeySeparator, k.Id)
}

// decodeValue interprets b according to the field kind. b is exactly as long
// as the template declared the field to be; integer widths between the
// nominal ones are accumulated byte-wise.
func decodeValue(kind Kind, b []byte) interface{} {
	switch kind {
	case KindUnsigned:
		var v uint64
		for _, octet := range b {
			v = v<<8 | uint64(octet)
		}
		return v
	case KindIPv4Address, KindIPv6Address:
		return net.IP(b).String()
	case KindMacAddress:
		return net.HardwareAddr(b).String()
	case KindString:
		return strings.TrimRight(string(b), "\x00 ")
	default:
		// KindSkip has no value, callers drop the field entirely
		return nil
	}
}
