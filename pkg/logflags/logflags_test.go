package logflags

import "testing"

func resetFlags() {
	tracer = false
	probe = false
	build = false
}

func TestSetupDefaults(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, ""); err != nil {
		t.Fatal(err)
	}
	if !Probe() {
		t.Error("probe logging not enabled by default")
	}
	if Tracer() || Build() {
		t.Error("unrequested components enabled")
	}
}

func TestSetupComponents(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, "tracer,build"); err != nil {
		t.Fatal(err)
	}
	if !Tracer() || !Build() {
		t.Error("requested components not enabled")
	}
	if Probe() {
		t.Error("probe enabled without being requested")
	}
}

func TestSetupLogstrWithoutLog(t *testing.T) {
	defer resetFlags()
	if err := Setup(false, "tracer"); err == nil {
		t.Error("expected error for --log-output without --log")
	}
}
