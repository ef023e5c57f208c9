package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Hello World", CleanString("  Hello World \n"))
	assert.Equal(t, "hello world", CleanString("  Hello World \t", true))
	assert.Equal(t, "", CleanString("   "))
}

func TestETag(t *testing.T) {
	a := ETag([]byte(`{"roster":[]}`))
	b := ETag([]byte(`{"roster":[]}`))
	c := ETag([]byte(`{"roster":[{"id":"1"}]}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 34)
	assert.Equal(t, byte('"'), a[0])
	assert.Equal(t, byte('"'), a[len(a)-1])
}
