// Package keyhash computes the two digests a serdata container needs: the
// 16-byte BuiltinTopicKey-compatible keyhash used for instance identity
// across the wire, and the 32-bit in-process hash used to bucket samples in
// local hash tables without re-reading their key bytes.
package keyhash

import (
	"crypto/md5"

	"github.com/spaolacci/murmur3"
)

// Size is the fixed length of a keyhash, matching DDS_FIXED_KEY_MAX_SIZE.
const Size = 16

// Compute derives the 16-byte keyhash for a sample's XCDR2-encoded,
// big-endian key bytes. fixed reports whether the type's worst-case XCDR2
// key size is itself a fixed, value-independent quantity no larger than
// Size — only then is the raw, zero-padded key used directly as the
// keyhash; a variable-size key (any string/wstring/sequence member,
// regardless of the current value's actual length or a declared bound)
// always falls back to the MD5 digest of the full key byte sequence, even
// when this particular sample's encoded key happens to be short. Grounded
// on ddsi_serdata.h / dds_serdata_default.c's key-hashing path (see
// DESIGN.md).
func Compute(keyBytesBE []byte, fixed bool) (hash [Size]byte, usedMD5 bool) {
	if fixed && len(keyBytesBE) <= Size {
		copy(hash[:], keyBytesBE)
		return hash, false
	}
	digest := md5.Sum(keyBytesBE)
	return digest, true
}

// Mix folds a keyhash into a type's base hash (a per-registered-type
// constant derived from its descriptor) to produce the serdata's 32-bit
// in-process hash. MurmurHash3 is seeded with baseHash so that two types
// sharing byte-identical key encodings still land in different hash
// buckets. A keyless type (empty key bytes) uses the base hash directly,
// unmixed, so every sample of it lands in the one bucket its type defines.
func Mix(baseHash uint32, keyBytesBE []byte) uint32 {
	if len(keyBytesBE) == 0 {
		return baseHash
	}
	return murmur3.Sum32WithSeed(keyBytesBE, baseHash)
}
