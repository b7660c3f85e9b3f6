package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// captureLogOutput switches to JSON output on a buffer for the duration of fn.
func captureLogOutput(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, SetFormat(FormatJSON))
	SetOutput(&buf)
	defer func() {
		SetOutput(out0)
		require.NoError(t, SetFormat(FormatConsole))
	}()
	fn()
	return buf.String()
}

var out0 = out

// decodeLines parses each JSON log line.
func decodeLines(t *testing.T, output string) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), "log line should be JSON: %s", line)
		lines = append(lines, m)
	}
	return lines
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		inputStr      string
		expectedLevel int
		expectError   bool
	}{
		{"none", None, false},
		{"NONE", None, false},
		{"error", Error, false},
		{"warn", Warning, false},
		{"WARNING", Warning, false},
		{"info", Info, false},
		{"debug", Debug, false},
		{"DEBUG", Debug, false},
		{"", Info, true},
		{"invalid", Info, true},
	}
	for _, tc := range testCases {
		t.Run(tc.inputStr, func(t *testing.T) {
			level, err := ParseLevel(tc.inputStr)
			assert.Equal(t, tc.expectedLevel, level)
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSetGetLevel(t *testing.T) {
	originalLevel := GetLevel()
	defer SetLevel(originalLevel)

	for _, level := range []int{None, Error, Warning, Info, Debug} {
		t.Run(fmt.Sprintf("Level_%d", level), func(t *testing.T) {
			SetLevel(level)
			assert.Equal(t, level, GetLevel())
		})
	}
}

func TestSetupLogging_InvalidLevelWarns(t *testing.T) {
	originalLevel := GetLevel()
	defer SetLevel(originalLevel)

	SetLevel(Warning)
	var actual int
	output := captureLogOutput(t, func() {
		actual = SetupLogging("invalid-level")
	})

	assert.Equal(t, Info, actual)
	assert.Equal(t, Info, GetLevel())
	lines := decodeLines(t, output)
	require.NotEmpty(t, lines)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Contains(t, lines[0]["msg"], "Invalid log level 'invalid-level' provided")
}

func TestLogfOutput(t *testing.T) {
	originalLevel := GetLevel()
	defer SetLevel(originalLevel)

	testCases := []struct {
		name          string
		setLevel      int
		logCallLevel  int
		expectOutput  bool
		expectedLevel string
	}{
		{"DebugAtDebug", Debug, Debug, true, "DEBUG"},
		{"InfoAtDebug", Debug, Info, true, "INFO"},
		{"WarnAtInfo", Info, Warning, true, "WARN"},
		{"ErrorAtInfo", Info, Error, true, "ERROR"},
		{"DebugAtInfo", Info, Debug, false, ""},
		{"InfoAtWarning", Warning, Info, false, ""},
		{"WarnAtError", Error, Warning, false, ""},
		{"ErrorAtNone", None, Error, false, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			SetLevel(tc.setLevel)
			output := captureLogOutput(t, func() {
				Logf(tc.logCallLevel, "message %d", 7)
			})

			if !tc.expectOutput {
				assert.Empty(t, output)
				return
			}
			lines := decodeLines(t, output)
			require.Len(t, lines, 1)
			assert.Equal(t, tc.expectedLevel, lines[0]["level"])
			assert.Equal(t, "message 7", lines[0]["msg"])
			assert.Contains(t, lines[0]["caller"], "logging_test.go", "caller should point at the Logf call site")
		})
	}
}

func TestLogwFields(t *testing.T) {
	originalLevel := GetLevel()
	defer SetLevel(originalLevel)
	SetLevel(Debug)

	output := captureLogOutput(t, func() {
		Logw(Info, "request sent", zap.String("method", "POST"), zap.Int("status", 201))
	})

	lines := decodeLines(t, output)
	require.Len(t, lines, 1)
	assert.Equal(t, "request sent", lines[0]["msg"])
	assert.Equal(t, "POST", lines[0]["method"])
	assert.EqualValues(t, 201, lines[0]["status"])
}

func TestSetFormat(t *testing.T) {
	assert.NoError(t, SetFormat("JSON"))
	assert.NoError(t, SetFormat(""))
	assert.Error(t, SetFormat("xml"))
	require.NoError(t, SetFormat(FormatConsole))
}
