//
// Copyright (C) 2025 Weft Authors. All rights reserved.
//
// weft is licensed under the Apache License Version 2.0.
//
//

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel(LevelInfo)

	cases := []struct {
		level string
		want  zapcore.Level
	}{
		{LevelDebug, zapcore.DebugLevel},
		{LevelInfo, zapcore.InfoLevel},
		{LevelWarn, zapcore.WarnLevel},
		{LevelError, zapcore.ErrorLevel},
		{LevelFatal, zapcore.FatalLevel},
		{"unknown", zapcore.InfoLevel},
	}
	for _, c := range cases {
		SetLevel(c.level)
		assert.Equal(t, c.want, zapLevel.Level(), "level %q", c.level)
	}
}

type recordingLogger struct {
	Logger
	messages []string
}

func (r *recordingLogger) Infof(format string, args ...any) {
	r.messages = append(r.messages, format)
}

func TestDefaultIsSwappable(t *testing.T) {
	orig := Default
	defer func() { Default = orig }()

	rec := &recordingLogger{Logger: orig}
	Default = rec
	Infof("hello %s", "weft")
	assert.Equal(t, []string{"hello %s"}, rec.messages)
}
