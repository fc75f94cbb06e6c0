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
	"time"
)

// DecodeFailureTag marks events produced for datagrams that could not be
// decoded, either because their version is not accepted or because their
// binary structure is malformed. Such datagrams are never dropped silently.
const DecodeFailureTag = "_netflowdecodefailure"

// Event is one emitted flow record, or one decode failure. Flow events carry
// the protocol-chosen timestamp, the exporter's host address, and the decoded
// header and record fields nested under the configured container key
// (DefaultTarget unless overridden).
type Event struct {
	Timestamp time.Time `json:"@timestamp"`

	// Host is the exporter address as observed on the UDP socket
	Host string `json:"host,omitempty"`

	Tags []string `json:"tags,omitempty"`

	Fields map[string]interface{} `json:"fields,omitempty"`
}

// NewDecodeFailure constructs the single event emitted for an undecodable
// datagram, with a human-readable reason under "message".
func NewDecodeFailure(host string, err error) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		Host:      host,
		Tags:      []string{DecodeFailureTag},
		Fields: map[string]interface{}{
			"message": err.Error(),
		},
	}
}

// isoTimestamp renders absolute timestamps that are emitted as field values,
// e.g. synthesized flow start and end times, as ISO-8601 strings in UTC.
func isoTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
