package errors

import (
	stderrors "errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesOpAndStack(t *testing.T) {
	inner := New(ErrorTypeTransport, "connection refused").WithOp("sortRecord")
	outer := Wrap(inner, ErrorTypeTransport, "all 6 attempts failed")

	require.NotNil(t, outer)
	assert.Equal(t, "sortRecord", outer.Op)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, stderrors.Is(outer, inner))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeEncoding, "nothing"))
}

func TestWithOpKeepsExisting(t *testing.T) {
	err := New(ErrorTypeProtocol, "null entity").WithOp("buildRecord").WithOp("other")
	assert.Equal(t, "buildRecord", err.Op)
}

func TestIsType(t *testing.T) {
	err := Wrap(io.EOF, ErrorTypeEncoding, "decode failed")

	assert.True(t, IsType(err, ErrorTypeEncoding))
	assert.False(t, IsType(err, ErrorTypeTransport))
	assert.False(t, IsType(io.EOF, ErrorTypeEncoding))
	assert.True(t, stderrors.Is(err, io.EOF))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "plain", UserMessage(stderrors.New("plain")))

	err := New(ErrorTypeRejected, "Værdien '870970' er ikke valid").WithOp("validateRecord")
	assert.Equal(t, "Værdien '870970' er ikke valid", UserMessage(err))
}

func TestErrorString(t *testing.T) {
	err := Newf(ErrorTypeConfig, "base_url %q is not absolute", "foo")
	assert.Equal(t, `config: base_url "foo" is not absolute`, err.Error())
	assert.NotEmpty(t, err.Stack)
}
