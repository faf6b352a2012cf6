// Package util contains internal helpers (hashing, sharding, padding).
package util

import "fmt"

// Sum64 hashes common key types using 64-bit FNV-1a. Supported kinds:
// string, []byte, and all integer widths. Other key types must be
// converted to string by the caller; panicking on unsupported types is
// deliberate to avoid silently poor shard distribution.
func Sum64[K comparable](k K) uint64 {
	switch v := any(k).(type) {
	case string:
		return sum64Bytes([]byte(v))
	case []byte:
		return sum64Bytes(v)
	case uint8:
		return sum64Uint(uint64(v))
	case uint16:
		return sum64Uint(uint64(v))
	case uint32:
		return sum64Uint(uint64(v))
	case uint64:
		return sum64Uint(v)
	case uint:
		return sum64Uint(uint64(v))
	case uintptr:
		return sum64Uint(uint64(v))
	case int8:
		return sum64Uint(uint64(uint8(v)))
	case int16:
		return sum64Uint(uint64(uint16(v)))
	case int32:
		return sum64Uint(uint64(uint32(v)))
	case int64:
		return sum64Uint(uint64(v))
	case int:
		return sum64Uint(uint64(v))
	case fmt.Stringer:
		return sum64Bytes([]byte(v.String()))
	default:
		panic(fmt.Sprintf("util.Sum64: unsupported key type %T; convert the key to string", k))
	}
}

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

func sum64Bytes(b []byte) uint64 {
	h := uint64(fnvOffset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}

func sum64Uint(u uint64) uint64 {
	// Hash the 8 little-endian bytes of u without allocating.
	h := uint64(fnvOffset64)
	for i := 0; i < 8; i++ {
		h ^= uint64(byte(u))
		h *= fnvPrime64
		u >>= 8
	}
	return h
}
