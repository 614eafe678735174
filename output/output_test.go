package output

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLines(t *testing.T) {
	lines := []string{
		"[Run] Started on 2023-05-01 10:00:00",
		"",
		"[Pipeline] Job: build",
		"[TimeConsuming] StartTime: 2023-05-01 10:00:00",
		"[Pipeline] Step: unit tests",
		"[2023-05-01 10:00:01] > pytest tests/unit",
		"[2023-05-01 10:00:05] 12 passed",
		"[Pipeline] Step: integration tests",
		"[2023-05-01 10:00:06] > pytest tests/integration",
		"[TimeConsuming] EndTime: 2023-05-01 10:00:30, Duration: 30s",
		"[Run] Finished on 2023-05-01 10:00:30, Duration: 30s",
	}

	log := parseLogLines(lines)
	assert.Len(t, log.Jobs, 1)
	assert.Equal(t, "build", log.Jobs[0].Name)
	assert.Equal(t, 30*time.Second, log.Jobs[0].Duration)
	assert.False(t, log.StartTime.IsZero())
	assert.Equal(t, 30*time.Second, log.Duration)

	steps := ParseJobSteps(&log.Jobs[0])
	assert.Len(t, steps, 2)
	assert.Equal(t, "unit tests", steps[0].Name)
	assert.Equal(t, "integration tests", steps[1].Name)
	assert.Len(t, steps[0].Lines, 2)
}

func TestMaskValues(t *testing.T) {
	o := &Output{
		buffer:           make([]string, 0, 4),
		jobTimeConsuming: make(map[string]TimeConsuming),
	}
	o.SetMaskValues("tok-123", "")

	o.WriteLine("scan with token tok-123")
	content := o.Content()
	assert.NotContains(t, content, "tok-123")
	assert.Contains(t, content, "***")
}

func TestNewContentCursor(t *testing.T) {
	o := &Output{
		buffer:           make([]string, 0, 4),
		jobTimeConsuming: make(map[string]TimeConsuming),
	}

	o.WriteLineWithNoTime("line 1")
	assert.Equal(t, "line 1\n", o.NewContent())
	assert.Equal(t, "", o.NewContent())
	o.WriteLineWithNoTime("line 2")
	assert.Equal(t, "line 2\n", o.NewContent())
}
