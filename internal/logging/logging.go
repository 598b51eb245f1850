// Package logging provides the process-wide logrus logger used across the
// kvstore core, the grpc transport, and the CLI. Init installs stdout
// (optionally) plus any additional hooks, and For returns a child logger
// scoped to a node id.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	root     *logrus.Logger
	initOnce sync.Once
)

// Init initializes the package-level root logger. Safe to call multiple
// times; only the first call takes effect.
func Init(writeToStdout bool) *logrus.Logger {
	initOnce.Do(func() {
		root = logrus.New()
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		if writeToStdout {
			root.SetOutput(os.Stdout)
		} else {
			root.SetOutput(io.Discard)
		}
	})
	return root
}

// Root returns the root logger, initializing it with stdout output if
// nothing has called Init yet.
func Root() *logrus.Logger {
	if root == nil {
		return Init(true)
	}
	return root
}

// For returns a child logger tagged with the given node id.
func For(nodeID string) *logrus.Entry {
	return Root().WithField("node", nodeID)
}

// AddHook registers an additional logrus.Hook on the root logger, e.g. the
// ring-buffer hook consumed by the interactive TUI.
func AddHook(h logrus.Hook) {
	Root().AddHook(h)
}

// SetEnabled toggles logging on (debug level) or off. "Off" sets the level
// to logrus.FatalLevel, so fatal and panic entries are still logged.
func SetEnabled(enabled bool) {
	if enabled {
		Root().SetLevel(logrus.DebugLevel)
	} else {
		Root().SetLevel(logrus.PanicLevel + 1)
	}
}

var (
	bufferOnce   sync.Once
	globalBuffer *LogBuffer
)

// GlobalBuffer returns the shared ring buffer used to feed the interactive
// TUI's log pane.
func GlobalBuffer() *LogBuffer {
	bufferOnce.Do(func() {
		globalBuffer = NewLogBuffer(1000)
	})
	return globalBuffer
}
