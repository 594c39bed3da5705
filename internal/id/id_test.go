package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsEntityID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		v := New()
		assert.True(t, IsEntityID(v), v)
		assert.False(t, seen[v], "duplicate id %s", v)
		seen[v] = true
	}
}

func TestIsEntityID_RejectsOtherShapes(t *testing.T) {
	for _, s := range []string{"", "alice", "req-V1StGXR8_Z5jdHi6B-myT", "6ba7b8109dad11d180b400c04fd430c8"} {
		assert.False(t, IsEntityID(s), s)
	}
}

func TestGenerate_Format(t *testing.T) {
	for _, prefix := range []string{"req", "tok", "aud"} {
		t.Run(prefix, func(t *testing.T) {
			v, err := Generate(prefix)
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(v, prefix+"-"))
			assert.Len(t, strings.TrimPrefix(v, prefix+"-"), 21)
			assert.False(t, IsEntityID(v))
		})
	}
}

func TestMustGenerate(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.NotEqual(t, MustGenerate("tok"), MustGenerate("tok"))
	})
}
