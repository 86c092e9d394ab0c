package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appLog "agenda/internal/log"
)

func init() {
	appLog.SetOutput(io.Discard)
}

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:standup@test
DTSTAMP:20240101T000000Z
DTSTART:20240101T090000Z
DTEND:20240101T093000Z
SUMMARY:Standup
RRULE:FREQ=DAILY
BEGIN:VALARM
ACTION:DISPLAY
TRIGGER:-PT15M
END:VALARM
END:VEVENT
BEGIN:VEVENT
UID:review@test
DTSTAMP:20240101T000000Z
DTSTART:20240102T091500Z
DTEND:20240102T100000Z
SUMMARY:Review
END:VEVENT
END:VCALENDAR
`

// setup writes the feed and a config importing it; database selects the
// sqlite file, empty for an in-memory document.
func setup(t *testing.T, database string) (configPath, feedPath string) {
	t.Helper()
	dir := t.TempDir()
	feedPath = filepath.Join(dir, "feed.ics")
	require.NoError(t, os.WriteFile(feedPath, []byte(strings.ReplaceAll(feed, "\n", "\r\n")), 0o600))

	if database != "" {
		database = filepath.Join(dir, database)
	}
	configPath = filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf(`timezone: UTC
database: %q
cache_dir: %q
log_level: error
calendars:
  - id: feed
    url: %q
`, database, filepath.Join(dir, "cache"), feedPath)
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o600))
	return configPath, feedPath
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	require.NoError(t, cmd.Execute())
	return out.String()
}

type rangeOutput struct {
	Occurrences []occurrenceJSON `json:"occurrences"`
	Overlaps    []struct {
		Start time.Time `json:"Start"`
		End   time.Time `json:"End"`
	} `json:"overlaps"`
}

func TestRange(t *testing.T) {
	cfg, _ := setup(t, "")
	out := run(t, "range", "2024-01-01", "2024-01-03", "--config", cfg, "--format", "json")

	var got rangeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Occurrences, 3)
	assert.Equal(t, "standup@test", got.Occurrences[0].Item)
	assert.Equal(t, "Standup", got.Occurrences[0].Text)
	assert.True(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC).Equal(got.Occurrences[0].Start))
	require.NotNil(t, got.Occurrences[0].Alarm)
	assert.True(t, time.Date(2024, 1, 1, 8, 45, 0, 0, time.UTC).Equal(*got.Occurrences[0].Alarm))
	assert.Equal(t, "review@test", got.Occurrences[2].Item)

	// Standup 09:00-09:30 and review 09:15-10:00 on Jan 2.
	require.Len(t, got.Overlaps, 1)
	assert.True(t, time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC).Equal(got.Overlaps[0].Start))
	assert.True(t, time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC).Equal(got.Overlaps[0].End))

	text := run(t, "range", "2024-01-01", "2024-01-02", "--config", cfg)
	assert.Contains(t, text, "START")
	assert.Contains(t, text, "Standup")

	feedOut := run(t, "range", "2024-01-01", "2024-01-02", "--config", cfg, "--ics")
	assert.Contains(t, feedOut, "BEGIN:VCALENDAR")
	assert.Contains(t, feedOut, "SUMMARY:Standup")
}

func TestNext(t *testing.T) {
	cfg, _ := setup(t, "")
	out := run(t, "next", "--after", "2024-01-02T08:00:00Z", "--config", cfg, "--format", "json")

	var got struct {
		At          *time.Time       `json:"at"`
		Occurrences []occurrenceJSON `json:"occurrences"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NotNil(t, got.At)
	assert.True(t, time.Date(2024, 1, 2, 8, 45, 0, 0, time.UTC).Equal(*got.At))
	require.Len(t, got.Occurrences, 1)
	assert.Equal(t, "standup@test", got.Occurrences[0].Item)

	text := run(t, "next", "--after", "2024-01-02T08:00:00Z", "--config", cfg)
	assert.True(t, strings.HasPrefix(text, "due 2024-01-02 08:45 UTC"), text)
}

func TestImportThenOffline(t *testing.T) {
	cfg, feedPath := setup(t, "agenda.db")
	out := run(t, "import", feedPath, "--config", cfg)
	assert.Equal(t, "imported 2 items into ", out[:len("imported 2 items into ")])

	list := run(t, "range", "2024-01-02", "2024-01-03", "--config", cfg, "--offline", "--format", "json")
	var got rangeOutput
	require.NoError(t, json.Unmarshal([]byte(list), &got))
	assert.Len(t, got.Occurrences, 2)
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	cfg, _ := setup(t, "")
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"next", "--config", cfg, "--format", "yaml"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.Execute())
}
