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
	"encoding/json"
	"fmt"
	"strings"
)

// templateField is one compiled column of a record layout: the decoding kind,
// the name under which the value is emitted, and the encoded width in bytes.
type templateField struct {
	kind   Kind
	name   string
	length uint16
}

// RecordField is a single decoded (name, value) pair of a data record.
// Fields retain the declaration order of their template.
type RecordField struct {
	Name  string
	Value interface{}
}

// Template is a compiled record layout: the ordered concatenation of resolved
// field declarations. Once compiled, a template only answers two questions:
// how wide one data record is, and what a byte slice of exactly that width
// decodes into.
type Template struct {
	fields []templateField
	length int
}

// NewTemplate compiles a sequence of resolved fields into a record layout.
func NewTemplate(fields []templateField) *Template {
	t := &Template{
		fields: fields,
	}
	for _, f := range fields {
		t.length += int(f.length)
	}
	return t
}

// Length returns the total width of one data record in bytes.
func (t *Template) Length() int {
	return t.length
}

// Cardinality returns the number of declared fields, including skipped ones.
func (t *Template) Cardinality() int {
	return len(t.fields)
}

// Decode interprets b, which must be exactly Length() bytes, as one data
// record. Skip fields consume their width but produce no pair.
func (t *Template) Decode(b []byte) []RecordField {
	fields := make([]RecordField, 0, len(t.fields))
	offset := 0
	for _, f := range t.fields {
		v := b[offset : offset+int(f.length)]
		offset += int(f.length)
		if f.kind == KindSkip {
			continue
		}
		fields = append(fields, RecordField{
			Name:  f.name,
			Value: decodeValue(f.kind, v),
		})
	}
	return fields
}

func (t *Template) String() string {
	s := make([]string, 0, len(t.fields))
	for _, f := range t.fields {
		s = append(s, fmt.Sprintf("%s(%s,%d)", f.name, f.kind, f.length))
	}
	return fmt.Sprintf("Template<width=%d>[%s]", t.length, strings.Join(s, ","))
}

func (t *Template) MarshalJSON() ([]byte, error) {
	type field struct {
		Name   string `json:"name,omitempty"`
		Type   string `json:"type"`
		Length uint16 `json:"length"`
	}
	fields := make([]field, 0, len(t.fields))
	for _, f := range t.fields {
		fields = append(fields, field{
			Name:   f.name,
			Type:   f.kind.String(),
			Length: f.length,
		})
	}
	return json.Marshal(map[string]interface{}{
		"length": t.length,
		"fields": fields,
	})
}
