package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	prevOut, prevErr := Out, Err
	Out, Err = &out, &errOut
	t.Cleanup(func() { Out, Err = prevOut, prevErr })
	return &out, &errOut
}

func TestColorDisabled_PlainText(t *testing.T) {
	if err := Init(true, ""); err != nil {
		t.Fatal(err)
	}
	for in, got := range map[string]string{
		"bold": Bold("bold"), "dim": Dim("dim"), "red": Red("red"), "green": Green("green"), "yellow": Yellow("yellow"),
	} {
		if got != in {
			t.Errorf("expected plain text %q, got %q", in, got)
		}
	}
}

func TestInitLevel(t *testing.T) {
	if err := Init(true, "debug"); err != nil {
		t.Fatal(err)
	}
	if Logger.GetLevel() != log.DebugLevel {
		t.Errorf("level = %v", Logger.GetLevel())
	}
	if err := Init(true, "loud"); err == nil {
		t.Error("unknown level accepted")
	}
}

func TestTable(t *testing.T) {
	Init(true, "")
	out, _ := capture(t)
	Table([]string{"NAME", "SIZE"}, [][]string{{"Work", "12"}, {"Home", "0"}})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("table = %q", out.String())
	}
	if !strings.HasPrefix(lines[0], "NAME") || !strings.Contains(lines[1], "Work") {
		t.Errorf("table = %q", out.String())
	}
	if strings.Index(lines[1], "12") != strings.Index(lines[0], "SIZE") {
		t.Errorf("columns not aligned: %q", out.String())
	}
}

func TestMessages(t *testing.T) {
	Init(true, "")
	out, errOut := capture(t)
	Success("saved")
	Warning("careful")
	Error("broken")
	Info("note")
	Detail("dir", "/tmp")
	EmptyState("nothing here")
	Header("Work")

	for _, want := range []string{"✓ saved", "⚠ careful", "✗ broken", "▸ note", "dir /tmp"} {
		if !strings.Contains(errOut.String(), want) {
			t.Errorf("stderr missing %q: %q", want, errOut.String())
		}
	}
	if !strings.Contains(out.String(), "nothing here") || !strings.Contains(out.String(), "Work") {
		t.Errorf("stdout = %q", out.String())
	}
}
