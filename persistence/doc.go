// Package persistence encodes field snapshots in a compact binary format.
//
// A snapshot file is a fixed 40-byte header followed by the (optionally
// compressed) body:
//
//	magic "HNSWFLD1" | version u32 | compression u8 | pad [3]
//	raw size u64 | stored size u64 | CRC32 of raw body u32 | pad [4]
//
// The body holds the field name, its FieldConfig, the vectors and the
// graph topology. All integers are little-endian.
package persistence
