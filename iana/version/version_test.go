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

import "testing"

func TestProtocolVersionString(t *testing.T) {
	for v, s := range map[ProtocolVersion]string{
		NetFlowV5:          "NetFlowV5",
		NetFlowV9:          "NetFlowV9",
		IPFIX:              "IPFIX",
		ProtocolVersion(6): "Unknown",
	} {
		if v.String() != s {
			t.Errorf("expected %q for %d, got %q", s, uint16(v), v.String())
		}
	}
}

func TestProtocolVersionUnmarshalText(t *testing.T) {
	for in, expected := range map[string]ProtocolVersion{
		"5":     NetFlowV5,
		"v9":    NetFlowV9,
		"ipfix": IPFIX,
		"10":    IPFIX,
		"IPFIX": IPFIX,
	} {
		var v ProtocolVersion
		if err := v.UnmarshalText([]byte(in)); err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if v != expected {
			t.Errorf("%q: expected %d, got %d", in, expected, v)
		}
	}

	var v ProtocolVersion
	if err := v.UnmarshalText([]byte("6")); err == nil {
		t.Error("expected an error for version 6")
	}
}

func TestProtocolVersionMarshalText(t *testing.T) {
	b, err := IPFIX.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "IPFIX" {
		t.Errorf("expected IPFIX, got %q", b)
	}

	if _, err := ProtocolVersion(6).MarshalText(); err == nil {
		t.Error("expected an error for an unknown version")
	}
}
