package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestKeysCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newKeysCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--drive-power=70"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	for _, want := range []string{"CONTROL", "steer-right", "DriveUntilStopped(70)", "DriveUntilStopped(-70)", "SteerUntilStopped(-25)", "StopDrive(brake)"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if lines := strings.Count(strings.TrimSpace(got), "\n") + 1; lines < 6 {
		t.Errorf("got %d lines, want a header and 5 controls", lines)
	}
}
