// Package fragment decodes and encodes the fixed 3-byte header that prefixes
// every notification on the matrix data characteristic.
//
// Wire layout:
//
//	offset  size  field
//	0       1     frame id (wraps at 256)
//	1       1     total parts
//	2       1     part index (0..total-1)
//	3..     n     payload share of the frame
//
// Parse only checks that the header is present. Deciding whether a part
// index is in range is left to the reassembler, which rejects
// PartIndex >= TotalParts without storing anything.
package fragment
