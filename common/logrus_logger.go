// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package common

import "github.com/sirupsen/logrus"

// NewStructuredLogger returns a logrus logger for the per-session/per-RPC
// tier: fields for session_id, message_id and operation are attached by
// callers via WithFields, the process-bootstrap tier (daemon start/stop)
// stays on the standard log package instead of this one.
func NewStructuredLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	// Debug output is gated by the LogLevel/LogType table in LogAt, so
	// the logger itself lets Debug entries through.
	l.SetLevel(logrus.DebugLevel)
	return l
}

// LogAt emits msg with fields through logger at Debug level, gated by the
// same LogLevel/LogType table SetConfigDebug manages — a disabled LogType
// means the call costs nothing beyond the table lookup.
func LogAt(logger *logrus.Logger, logType LogType, fields logrus.Fields, msg string) {
	if !LoggingIsEnabledAtLevel(LevelDebug, logType) {
		return
	}
	logger.WithFields(fields).Debug(msg)
}

// LogError always emits, mirroring cfgDebugSettings' "commit 'error' level
// logs ... are always on" rule.
func LogError(logger *logrus.Logger, fields logrus.Fields, msg string) {
	logger.WithFields(fields).Error(msg)
}
