package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRFloat(4.2)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRTime(time.Time{})
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := IRObject{
		"a":  IRInt(1),
		"A":  IRInt(2),
		"aa": IRInt(3),
		"aA": IRInt(4),
		"Aa": IRInt(5),
		"AA": IRInt(6),
	}

	// 'A' = 65 sorts before 'a' = 97 at every position.
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestCompareKeysRFC8785Surrogates(t *testing.T) {
	// U+1F600 encodes as a surrogate pair (0xD83D...), which sorts before
	// U+FF21 (0xFF21) in UTF-16 even though its UTF-8 bytes sort after.
	assert.Equal(t, -1, compareKeysRFC8785("\U0001F600", "\uFF21"))
	assert.Equal(t, 0, compareKeysRFC8785("same", "same"))
	assert.Equal(t, -1, compareKeysRFC8785("ab", "abc"))
}

func TestMarshalIRValue(t *testing.T) {
	tests := []struct {
		name     string
		value    IRValue
		expected string
	}{
		{"null", IRNull{}, "null"},
		{"string", IRString("x"), `"x"`},
		{"float", IRFloat(0.25), "0.25"},
		{"array", IRArray{IRInt(1), IRNull{}}, "[1,null]"},
		{"object", IRObject{"b": IRBool(false), "a": IRInt(1)}, `{"a":1,"b":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MarshalIRValue(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestUnmarshalIRValue(t *testing.T) {
	v, err := UnmarshalIRValue([]byte(`{"n":3,"f":1.5,"s":"x","z":null,"l":[true]}`))
	require.NoError(t, err)

	assert.Equal(t, IRObject{
		"n": IRInt(3),
		"f": IRFloat(1.5),
		"s": IRString("x"),
		"z": IRNull{},
		"l": IRArray{IRBool(true)},
	}, v)
}
