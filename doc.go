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

/*
Package for collecting NetFlow and IPFIX flow records from exporting network
devices. Supports NetFlow v5 (fixed record layout), NetFlow v9 according to
RFC 3954, and IPFIX according to RFC 7011.

# Overview

go-netflow implements the receive side of the flow export protocols: a UDP
listener feeding a bounded queue, a pool of decoding workers, and a
template-driven record decoder emitting one structured Event per flow record.

NetFlow v9 and IPFIX declare the layout of their data records at runtime via
template flowsets. The decoder maintains a per-exporter template cache with a
sliding expiry window, and compiles each announced template against a
declarative field catalog into a binary record layout that is then applied to
subsequent data flowsets. Templates and data may arrive out of order and in
separate datagrams; data flowsets referencing an unknown template are skipped
with a warning, never retried.

Field catalogs for both NetFlow v9 field types and IPFIX information elements
(including enterprise-specific ones) are embedded into the package and can be
augmented or overridden with user-supplied YAML definitions, see Catalog.

# Historical Background

This package shares its decoding architecture with go-ipfix, from which the
template and field handling was generalized to cover the template-less NetFlow
v5 and the NetFlow v9 flowset framing as well.
*/
package netflow
