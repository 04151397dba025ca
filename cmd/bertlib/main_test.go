package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteSentences(t *testing.T) {
	var buf bytes.Buffer
	writeSentences(&buf, []string{"Rust", "apple", "", "你好"})
	assert.Equal(t, "Rust\napple\n\n你好\n", buf.String())

	buf.Reset()
	writeSentences(&buf, nil)
	assert.Empty(t, buf.String())
}

func TestPing(t *testing.T) {
	assert.EqualValues(t, 42, ping(21))
	assert.EqualValues(t, -8, ping(-4))
}
