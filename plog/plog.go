// Package plog is the structured logging facade every other package in
// this module logs through. The teacher's own call sites use stdlib
// `log.Printf`; this package adds github.com/sirupsen/logrus as a
// dependency of this module, generalizing the teacher's scattered
// "log.Printf(warning): %v" call sites into leveled, field-structured
// logging every rank-aware operation in this module can attach context
// to (rank, IOSystem handle, file handle).
package plog

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu   sync.RWMutex
	base = logrus.New()
)

// SetLevel adjusts the global log level (logrus.DebugLevel, etc.).
func SetLevel(level logrus.Level) {
	mu.Lock()
	defer mu.Unlock()
	base.SetLevel(level)
}

// Rank returns a logger pre-populated with a "rank" field, the context
// every comm/decomp/iobuf call this module makes is scoped under.
func Rank(rank int) *logrus.Entry {
	mu.RLock()
	defer mu.RUnlock()
	return base.WithField("rank", rank)
}

// System returns a logger pre-populated with an "iosystem" field.
func System(handle int) *logrus.Entry {
	mu.RLock()
	defer mu.RUnlock()
	return base.WithField("iosystem", handle)
}

// File returns a logger pre-populated with a "file" field.
func File(handle int) *logrus.Entry {
	mu.RLock()
	defer mu.RUnlock()
	return base.WithField("file", handle)
}

// With returns a logger with arbitrary extra structured fields, for call
// sites that need more than rank/system/file context.
func With(f logrus.Fields) *logrus.Entry {
	mu.RLock()
	defer mu.RUnlock()
	return base.WithFields(f)
}

// Base exposes the underlying *logrus.Logger for callers (e.g. cmd/pario)
// that want to set an output writer or formatter.
func Base() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}
