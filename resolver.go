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

// VariableLength is the length value with which IPFIX templates announce
// variable-length encoded fields. The decoder recognizes but does not decode
// them, templates declaring one are rejected as a whole.
const VariableLength uint16 = 0xFFFF

// IPFIX information elements 291, 292, and 293 (basicList, subTemplateList,
// subTemplateMultiList) carry structured data as per RFC 6313. Like
// variable-length fields, they cause the declaring template to be rejected.
const (
	ieBasicList            uint16 = 291
	ieSubTemplateList      uint16 = 292
	ieSubTemplateMultiList uint16 = 293
)

// ResolveNetFlowV9 turns a template field declaration of a NetFlow v9
// template record into a concrete decoding instruction. Fields of types not
// present in the catalog return ErrFieldUnsupported, which discards the
// declaring template.
func (c *Catalog) ResolveNetFlowV9(id uint16, declaredLength uint16) (templateField, error) {
	spec, ok := c.NetFlowV9(id)
	if !ok {
		return templateField{}, FieldUnsupported(NewFieldKey(0, id))
	}
	return newTemplateField(spec, declaredLength), nil
}

// ResolveIPFIX turns a template field declaration of an IPFIX template record
// into a concrete decoding instruction. In addition to unknown elements,
// variable-length declarations and the RFC 6313 structured-data elements of
// the IANA registry are rejected.
func (c *Catalog) ResolveIPFIX(key FieldKey, declaredLength uint16) (templateField, error) {
	if declaredLength == VariableLength {
		return templateField{}, ErrVariableLength
	}
	if key.EnterpriseId == 0 &&
		(key.Id == ieBasicList || key.Id == ieSubTemplateList || key.Id == ieSubTemplateMultiList) {
		return templateField{}, ErrStructuredData
	}
	spec, ok := c.IPFIX(key)
	if !ok {
		return templateField{}, FieldUnsupported(key)
	}
	return newTemplateField(spec, declaredLength), nil
}

// newTemplateField applies the length-dependent rewrites: skip and string
// fields consume exactly the declared length, integers widen or narrow to the
// declared length with the catalog width as fallback for length 0, and
// addresses fall back to their nominal width likewise.
func newTemplateField(spec *FieldSpec, declaredLength uint16) templateField {
	length := declaredLength
	switch spec.Kind {
	case KindSkip, KindString:
		// declared length, even if 0
	default:
		if length == 0 {
			length = spec.DefaultLength
		}
	}
	return templateField{
		kind:   spec.Kind,
		name:   spec.Name,
		length: length,
	}
}
