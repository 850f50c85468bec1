package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestParseLevel 测试日志级别解析
func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

// TestLazyLogger_Component 测试组件名随每条日志输出
func TestLazyLogger_Component(t *testing.T) {
	prev := slog.Default()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(New(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	Logger("core/test").Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "component=core/test")
	assert.Contains(t, buf.String(), "k=v")
}

// TestTruncateID 测试 ID 截断
func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc", TruncateID("abc", 8))
	assert.Equal(t, "abcdefgh", TruncateID("abcdefghij", 8))
}
