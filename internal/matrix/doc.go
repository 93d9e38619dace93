// Package matrix decodes completed frame payloads into pressure grids.
//
// Dimensions come from a separate 2-byte characteristic (rows, columns) read
// once per session; they are never inferred from the payload. A payload must
// hold exactly rows*columns elements of the configured width, stored
// row-major as little-endian unsigned integers. Anything else is a
// DecodeError that the caller counts and drops.
//
// Presentation transforms such as horizontal mirroring or threshold remapping
// belong to the consumer, not to this package.
package matrix
