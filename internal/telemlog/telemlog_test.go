package telemlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/habtools/groundstation/internal/telemetry"
)

func testRecord(callsign string) *telemetry.Record {
	return &telemetry.Record{
		Callsign:  callsign,
		Time:      "01:02:03",
		Latitude:  -34.5,
		Longitude: 138.6,
		Altitude:  1000,
		SNR:       11.5,
		BaudRate:  100,
	}
}

func readOnlyFile(t *testing.T, dir string) string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("found %d files, want 1", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}
	return string(data)
}

func TestLogger_CSV(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, FormatCSV)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := l.write(testRecord("TEST1")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := l.write(testRecord("TEST1")); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	content := readOnlyFile(t, dir)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "time,callsign,latitude") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "TEST1") || !strings.Contains(lines[1], "-34.50000") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestLogger_JSON(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, FormatJSON)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := l.write(testRecord("TEST2")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(readOnlyFile(t, dir)), &got); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if got["callsign"] != "TEST2" {
		t.Errorf("callsign = %v", got["callsign"])
	}
}

func TestLogger_DisablesOnBadDirectory(t *testing.T) {
	l, err := New("/nonexistent/directory/nowhere", FormatCSV)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := l.write(testRecord("TEST3")); err == nil {
		t.Fatal("write into a bad directory should fail")
	}
	if !l.disabled {
		t.Error("logger should disable itself after a directory failure")
	}

	// Reconfiguring the directory re-enables logging.
	l.SetDirectory(t.TempDir())
	if l.disabled {
		t.Error("SetDirectory should clear the disabled state")
	}
	if err := l.write(testRecord("TEST3")); err != nil {
		t.Errorf("write after reconfiguration failed: %v", err)
	}
}

func TestLogger_UnknownFormat(t *testing.T) {
	if _, err := New(t.TempDir(), Format("xml")); err == nil {
		t.Error("New should reject an unknown format")
	}
}

func TestLogger_QueuedDrain(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, FormatJSON)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	l.Add(testRecord("TEST4"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, _ := os.ReadDir(dir)
		if len(entries) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("queued record never reached disk")
		}
		time.Sleep(10 * time.Millisecond)
	}

	l.Stop()
	l.Stop()
}
