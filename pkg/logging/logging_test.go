package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("chatty"))
	assert.Equal(t, "WARN", LevelWarn.String())
}

func TestFormatLine(t *testing.T) {
	ts := time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC)
	line := formatLine(ts, "INFO", "Uploaded", []interface{}{"path", "a/b.msi", "bytes", 12, "dangling"})
	assert.Equal(t, "[2024-03-01 14:05:09] INFO  Uploaded path=a/b.msi bytes=12 dangling", line)
}

func TestLoggerWritesFileAndEvents(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	l, err := newLogger(LoggerConfig{BaseDir: dir, Level: LevelInfo, Console: &console, EnableJSON: true, NoColor: true})
	require.NoError(t, err)

	l.logMessage(LevelInfo, "", "INFO", "hello", "entry", "7zip")
	l.logMessage(LevelDebug, "", "DEBUG", "hidden")
	l.writeEvent(Event{Package: "7zip", Stage: "download", Status: "failed", Error: errors.New("boom").Error()})

	instance = l
	t.Cleanup(func() { instance = nil })
	Close()

	assert.Contains(t, console.String(), "INFO  hello entry=7zip")
	assert.NotContains(t, console.String(), "hidden")

	logData, err := os.ReadFile(l.logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "hello entry=7zip")

	f, err := os.Open(filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())
	var ev Event
	require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
	assert.Equal(t, "download", ev.Stage)
	assert.Equal(t, "boom", ev.Error)
	assert.Equal(t, l.sessionID, ev.SessionID)
	assert.NotEmpty(t, ev.SessionID)
}

func TestEventOptions(t *testing.T) {
	ev := Event{Level: LevelInfo.String()}
	for _, opt := range []EventOption{
		WithVersion("23.01"),
		WithDuration(time.Second),
		WithError(errors.New("x")),
		WithContext("url", "https://example.com"),
	} {
		opt(&ev)
	}
	assert.Equal(t, "23.01", ev.Version)
	assert.Equal(t, time.Second, *ev.Duration)
	assert.Equal(t, "ERROR", ev.Level)
	assert.Equal(t, "https://example.com", ev.Context["url"])
}
