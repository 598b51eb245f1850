package logging

import (
	"github.com/sirupsen/logrus"
)

// BufferHook is a logrus.Hook that appends every log entry to a LogBuffer,
// feeding the interactive TUI's scrollable log pane. The node id arrives
// as a structured logrus field rather than being scraped out of a
// formatted line.
type BufferHook struct {
	buffer *LogBuffer
}

// NewBufferHook creates a hook that appends formatted entries to buffer.
func NewBufferHook(buffer *LogBuffer) *BufferHook {
	return &BufferHook{buffer: buffer}
}

// Levels implements logrus.Hook.
func (h *BufferHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *BufferHook) Fire(entry *logrus.Entry) error {
	nodeID := "system"
	if v, ok := entry.Data["node"]; ok {
		if s, ok := v.(string); ok {
			nodeID = s
		}
	}
	h.buffer.Add(nodeID, entry.Message)
	return nil
}
