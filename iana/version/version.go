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

package version

import (
	"errors"
	"strconv"
)

type ProtocolVersion uint16

var (
	ErrUnknownProtocolVersion = errors.New("unknown protocol version")
)

const (
	Unknown ProtocolVersion = 0

	// NetFlowV5 is the fixed-layout NetFlow version 5 export format
	NetFlowV5 ProtocolVersion = 5
	// NetFlowV9 is the template-based export format of RFC 3954
	NetFlowV9 ProtocolVersion = 9
	// IPFIX is the IP Flow Information Export format of RFC 7011,
	// also known as NetFlow version 10
	IPFIX ProtocolVersion = 10
)

func (p ProtocolVersion) String() string {
	switch p {
	case NetFlowV5:
		return "NetFlowV5"
	case NetFlowV9:
		return "NetFlowV9"
	case IPFIX:
		return "IPFIX"
	default:
		return "Unknown"
	}
}

func (p ProtocolVersion) MarshalText() ([]byte, error) {
	s := p.String()
	if s == "Unknown" {
		return nil, ErrUnknownProtocolVersion
	}
	b := []byte(s)
	return b, nil
}

func (p *ProtocolVersion) UnmarshalText(in []byte) error {
	s := string(in)

	switch s {
	case "NetFlowV5", "netflowv5", "v5", "5":
		*p = NetFlowV5
	case "NetFlowV9", "netflowv9", "v9", "9":
		*p = NetFlowV9
	case "IPFIX", "ipfix", "v10", "10":
		*p = IPFIX
	default:
		// also accept plain numeric versions as they appear in
		// configuration files
		if v, err := strconv.ParseUint(s, 10, 16); err == nil {
			pv := ProtocolVersion(v)
			if pv == NetFlowV5 || pv == NetFlowV9 || pv == IPFIX {
				*p = pv
				return nil
			}
		}
		return ErrUnknownProtocolVersion
	}
	return nil
}
