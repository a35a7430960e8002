package keyhash

import (
	"bytes"
	"crypto/md5"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	t.Run("ShortFixedKeyIsZeroPaddedNotHashed", func(t *testing.T) {
		key := []byte{1, 2, 3, 4}
		hash, usedMD5 := Compute(key, true)
		assert.False(t, usedMD5)
		assert.True(t, bytes.HasPrefix(hash[:], key))
		for _, b := range hash[len(key):] {
			assert.Zero(t, b)
		}
	})

	t.Run("ExactlySixteenFixedBytesUsedVerbatim", func(t *testing.T) {
		key := bytes.Repeat([]byte{0xAA}, Size)
		hash, usedMD5 := Compute(key, true)
		assert.False(t, usedMD5)
		assert.Equal(t, key, hash[:])
	})

	t.Run("VariableKeyFallsBackToMD5EvenWhenShort", func(t *testing.T) {
		// A string key's current value may be short, but the worst case over
		// the type is unbounded, so the digest form is always used.
		key := []byte{0, 0, 0, 6, 'h', 'e', 'l', 'l', 'o', 0}
		hash, usedMD5 := Compute(key, false)
		assert.True(t, usedMD5)
		assert.Equal(t, [Size]byte(md5.Sum(key)), hash)
	})

	t.Run("OversizeKeyFallsBackToMD5", func(t *testing.T) {
		key := bytes.Repeat([]byte{0x01}, Size+1)
		hash, usedMD5 := Compute(key, true)
		assert.True(t, usedMD5)
		hash2, _ := Compute(key, true)
		assert.Equal(t, hash, hash2)
	})

	t.Run("EmptyFixedKey", func(t *testing.T) {
		hash, usedMD5 := Compute(nil, true)
		assert.False(t, usedMD5)
		assert.Equal(t, [Size]byte{}, hash)
	})
}

func TestMix(t *testing.T) {
	t.Run("EmptyKeyReturnsBaseHashUnmixed", func(t *testing.T) {
		assert.Equal(t, uint32(42), Mix(42, nil))
		assert.Equal(t, uint32(42), Mix(42, []byte{}))
	})

	t.Run("DeterministicForSameInput", func(t *testing.T) {
		key := []byte{1, 2, 3, 4, 5}
		a := Mix(42, key)
		b := Mix(42, key)
		assert.Equal(t, a, b)
	})

	t.Run("DifferentBaseHashChangesResult", func(t *testing.T) {
		key := []byte{1, 2, 3, 4, 5}
		a := Mix(42, key)
		b := Mix(43, key)
		assert.NotEqual(t, a, b)
	})

	t.Run("DifferentKeyChangesResult", func(t *testing.T) {
		a := Mix(42, []byte{1, 2, 3})
		b := Mix(42, []byte{1, 2, 4})
		assert.NotEqual(t, a, b)
	})
}
