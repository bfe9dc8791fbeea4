package ir

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashCanonicalDeterminism(t *testing.T) {
	doc := IRObject{"b": IRInt(1), "a": IRArray{IRString("x")}}

	h1, err := HashCanonical(DomainQueryModel, doc)
	require.NoError(t, err)
	h2, err := HashCanonical(DomainQueryModel, IRObject{"a": IRArray{IRString("x")}, "b": IRInt(1)})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	decoded, err := hex.DecodeString(h1)
	require.NoError(t, err)
	assert.Len(t, decoded, 32)
}

func TestHashCanonicalDomainSeparation(t *testing.T) {
	doc := IRObject{"name": IRString("Book")}
	assert.NotEqual(t,
		MustHashCanonical(DomainQueryModel, doc),
		MustHashCanonical(DomainEntity, doc),
	)
}

func TestHashCanonicalChangesWithContent(t *testing.T) {
	a := MustHashCanonical(DomainQueryModel, IRArray{IRString("Foo"), IRString("X")})
	b := MustHashCanonical(DomainQueryModel, IRArray{IRString("X"), IRString("Foo")})
	assert.NotEqual(t, a, b)
}

func TestMustHashCanonicalPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustHashCanonical(DomainQueryModel, make(chan int))
	})
}
