package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithRun(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	base := slog.New(slog.NewTextHandler(&buf, nil))

	WithRun(base, "daily-digest", "trace-42").Info("routing")

	out := buf.String()
	assert.Contains(t, out, "workflow_id=daily-digest")
	assert.Contains(t, out, "trace_id=trace-42")
}
