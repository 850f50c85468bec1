package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCodedError_Class 测试具体错误匹配其分类
func TestCodedError_Class(t *testing.T) {
	err := fmt.Errorf("%w: theirs=2, ours=1", ErrVersionMismatch)

	assert.ErrorIs(t, err, ErrVersionMismatch)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "version_mismatch", ErrorCode(err))
}

// TestRemoteError_RoundTrip 测试远端错误还原后仍可匹配
func TestRemoteError_RoundTrip(t *testing.T) {
	local := fmt.Errorf("%w: id=abc", ErrUnknownCandidate)
	remote := NewRemoteError(local)

	assert.Equal(t, "unknown_candidate", remote.Code)
	assert.ErrorIs(t, remote, ErrUnknownCandidate)
	assert.ErrorIs(t, remote, ErrNotFound)
	assert.NotErrorIs(t, remote, ErrProtocolViolation)
}

// TestErrorCode_Fallback 测试未分类错误
func TestErrorCode_Fallback(t *testing.T) {
	assert.Equal(t, CodeInternal, ErrorCode(errors.New("boom")))
	assert.Equal(t, CodeTransport, ErrorCode(fmt.Errorf("dial: %w", ErrTransport)))

	re := &RemoteError{Code: CodeNotFound, Message: "x"}
	assert.ErrorIs(t, re, ErrNotFound)
}
