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
	"errors"
	"fmt"

	"github.com/zoomoid/go-netflow/iana/version"
)

var (
	ErrTemplateNotFound   error = errors.New("template not found")
	ErrUnknownVersion     error = errors.New("unknown version")
	ErrMalformedPacket    error = errors.New("malformed packet")
	ErrFieldUnsupported   error = errors.New("unsupported field")
	ErrVariableLength     error = errors.New("variable-length field not supported")
	ErrStructuredData     error = errors.New("structured data field not supported")
	ErrTemplateMismatch   error = errors.New("template does not match flowset payload")
	ErrCatalogSyntax      error = errors.New("field catalog syntax error")
	ErrCatalogUnavailable error = errors.New("field catalog unavailable")
)

func TemplateNotFound(key TemplateKey) error {
	return fmt.Errorf("%w for %d in observation domain %d of %s:%d",
		ErrTemplateNotFound, key.TemplateId, key.SourceId, key.ExporterAddr, key.ExporterPort)
}

func UnknownVersion(v version.ProtocolVersion) error {
	return fmt.Errorf("%w %d, only 5, 9, and 10 are specified", ErrUnknownVersion, uint16(v))
}

func MalformedPacket(reason string) error {
	return fmt.Errorf("%w, %s", ErrMalformedPacket, reason)
}

func FieldUnsupported(key FieldKey) error {
	return fmt.Errorf("%w %s", ErrFieldUnsupported, key)
}
