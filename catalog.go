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
	"embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	//go:embed hack/netflow.yaml hack/ipfix.yaml
	definitions embed.FS
)

// Catalog is the static dictionary of known field definitions against which
// templates are compiled. It contains two keyspaces: NetFlow v9 field types,
// keyed by the plain 16 bit type, and IPFIX information elements, keyed by
// (enterprise number, element id), where enterprise 0 is the IANA registry.
//
// A Catalog is immutable once loaded and therefore safe for concurrent use
// by all decoding workers without further synchronization.
type Catalog struct {
	netflow map[uint16]*FieldSpec
	ipfix   map[FieldKey]*FieldSpec
}

// DefaultCatalog loads only the field definitions embedded into the package.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog("", "")
}

// MustDefaultCatalog is DefaultCatalog panicking on error. The embedded
// definitions are known-good, failure here means a broken build.
func MustDefaultCatalog() *Catalog {
	c, err := DefaultCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog loads the embedded field definitions and, if the paths are
// non-empty, merges user-supplied YAML definition files over them. Keys in an
// override file replace embedded keys of the same keyspace.
func LoadCatalog(netflowDefinitions string, ipfixDefinitions string) (*Catalog, error) {
	c := &Catalog{
		netflow: make(map[uint16]*FieldSpec),
		ipfix:   make(map[FieldKey]*FieldSpec),
	}

	b, err := definitions.ReadFile("hack/netflow.yaml")
	if err != nil {
		return nil, err
	}
	if err := c.mergeNetflow(b); err != nil {
		return nil, err
	}

	b, err = definitions.ReadFile("hack/ipfix.yaml")
	if err != nil {
		return nil, err
	}
	if err := c.mergeIpfix(b); err != nil {
		return nil, err
	}

	if netflowDefinitions != "" {
		b, err := os.ReadFile(netflowDefinitions)
		if err != nil {
			return nil, fmt.Errorf("%w, %s", ErrCatalogUnavailable, err)
		}
		if err := c.mergeNetflow(b); err != nil {
			return nil, err
		}
	}
	if ipfixDefinitions != "" {
		b, err := os.ReadFile(ipfixDefinitions)
		if err != nil {
			return nil, fmt.Errorf("%w, %s", ErrCatalogUnavailable, err)
		}
		if err := c.mergeIpfix(b); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// NetFlowV9 returns the field specification for a NetFlow v9 field type.
func (c *Catalog) NetFlowV9(id uint16) (*FieldSpec, bool) {
	s, ok := c.netflow[id]
	return s, ok
}

// IPFIX returns the field specification for an IPFIX information element.
func (c *Catalog) IPFIX(key FieldKey) (*FieldSpec, bool) {
	s, ok := c.ipfix[key]
	return s, ok
}

func (c *Catalog) mergeNetflow(in []byte) error {
	m := make(map[uint16][]interface{})
	if err := yaml.Unmarshal(in, &m); err != nil {
		return fmt.Errorf("%w, %s", ErrCatalogSyntax, err)
	}
	for id, entry := range m {
		spec, err := parseFieldSpec(entry)
		if err != nil {
			return fmt.Errorf("%w, field type %d, %s", ErrCatalogSyntax, id, err)
		}
		c.netflow[id] = spec
	}
	return nil
}

func (c *Catalog) mergeIpfix(in []byte) error {
	m := make(map[uint32]map[uint16][]interface{})
	if err := yaml.Unmarshal(in, &m); err != nil {
		return fmt.Errorf("%w, %s", ErrCatalogSyntax, err)
	}
	for enterpriseId, fields := range m {
		for id, entry := range fields {
			spec, err := parseFieldSpec(entry)
			if err != nil {
				return fmt.Errorf("%w, element %d:%d, %s", ErrCatalogSyntax, enterpriseId, id, err)
			}
			c.ipfix[NewFieldKey(enterpriseId, id)] = spec
		}
	}
	return nil
}

// parseFieldSpec converts one catalog entry into a FieldSpec. Entries are
// YAML sequences of either form
//
//	[skip]                  the field consumes its declared length silently
//	[type, name]            type is one of the tokens below
//	[default_width, name]   legacy form, an unsigned integer of the declared
//	                        length, or default_width bytes if that is 0
//
// Type tokens are uintN (N bits, multiple of 8 up to 64), ip4_addr, ip6_addr,
// mac_addr, and string.
func parseFieldSpec(entry []interface{}) (*FieldSpec, error) {
	switch len(entry) {
	case 1:
		token, ok := entry[0].(string)
		if !ok || token != "skip" {
			return nil, fmt.Errorf("single-element entry must be [skip], got %v", entry[0])
		}
		return &FieldSpec{Kind: KindSkip}, nil
	case 2:
		name, ok := entry[1].(string)
		if !ok {
			return nil, fmt.Errorf("field name must be a string, got %v", entry[1])
		}
		switch t := entry[0].(type) {
		case int:
			if t < 1 || t > 8 {
				return nil, fmt.Errorf("default width %d out of range", t)
			}
			return &FieldSpec{Kind: KindUnsigned, Name: name, DefaultLength: uint16(t)}, nil
		case string:
			return parseTypeToken(t, name)
		default:
			return nil, fmt.Errorf("field type must be a string or an integer width, got %T", entry[0])
		}
	default:
		return nil, fmt.Errorf("entry must have 1 or 2 elements, got %d", len(entry))
	}
}

func parseTypeToken(token string, name string) (*FieldSpec, error) {
	switch token {
	case "ip4_addr":
		return &FieldSpec{Kind: KindIPv4Address, Name: name, DefaultLength: 4}, nil
	case "ip6_addr":
		return &FieldSpec{Kind: KindIPv6Address, Name: name, DefaultLength: 16}, nil
	case "mac_addr":
		return &FieldSpec{Kind: KindMacAddress, Name: name, DefaultLength: 6}, nil
	case "string":
		return &FieldSpec{Kind: KindString, Name: name}, nil
	case "skip":
		return &FieldSpec{Kind: KindSkip}, nil
	}
	if bits, found := strings.CutPrefix(token, "uint"); found {
		v, err := strconv.Atoi(bits)
		if err == nil && v >= 8 && v <= 64 && v%8 == 0 {
			return &FieldSpec{Kind: KindUnsigned, Name: name, DefaultLength: uint16(v / 8)}, nil
		}
	}
	return nil, fmt.Errorf("unknown type token %q", token)
}
