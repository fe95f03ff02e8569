package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCtxFallsBackToGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger
	Logger = zerolog.New(&buf)
	t.Cleanup(func() { Logger = prev })

	Ctx(context.Background()).Warn().Msg("降级告警")

	assert.Contains(t, buf.String(), "降级告警", "上下文未携带日志实例时应回退到全局实例")
}

func TestCtxPrefersContextLogger(t *testing.T) {
	var ctxBuf, globalBuf bytes.Buffer
	prev := Logger
	Logger = zerolog.New(&globalBuf)
	t.Cleanup(func() { Logger = prev })

	ctxLogger := zerolog.New(&ctxBuf)
	ctx := ctxLogger.WithContext(context.Background())

	Ctx(ctx).Info().Msg("请求内日志")

	assert.Contains(t, ctxBuf.String(), "请求内日志", "应优先使用上下文中携带的日志实例")
	assert.Empty(t, globalBuf.String(), "上下文中已有日志实例时不应写入全局实例")
}

func TestWithContextAttachesGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger
	Logger = zerolog.New(&buf)
	t.Cleanup(func() { Logger = prev })

	ctx := WithContext(context.Background())
	zerolog.Ctx(ctx).Info().Msg("携带的日志实例")

	assert.Contains(t, buf.String(), "携带的日志实例")
}
