package finder

import (
	"testing"

	"github.com/fault-injection-lab/dramhammer/rhconfig"
)

type fakeRecorder struct {
	started int
	ended   int
}

func (r *fakeRecorder) StartExperiment(aggressorRows, hammerCount uint64, targetTemp int64, comment string) (int64, error) {
	r.started++
	return int64(r.started), nil
}

func (r *fakeRecorder) EndExperiment() error {
	r.ended++
	return nil
}

func newTestBase(t *testing.T, deps Deps) *Finder {
	t.Helper()
	cfg := rhconfig.Default()
	cfg.ExperimentRepetitions = 3

	f, err := newBase(cfg, deps)
	if err != nil {
		t.Fatalf("failed to build finder: %v", err)
	}
	return f
}

func TestRepetitionLoopRunsConfiguredRepetitions(t *testing.T) {
	rec := &fakeRecorder{}
	f := newTestBase(t, Deps{OptRecorder: rec})

	calls := 0
	f.repetitionLoop(func() { calls++ }, 0)

	if calls != 3 {
		t.Fatalf("expected 3 iterations, got %d", calls)
	}
	if rec.started != 3 || rec.ended != 3 {
		t.Fatalf("expected 3 start/end experiment calls, got %d/%d", rec.started, rec.ended)
	}
}

func TestExperimentLoopWithoutTargetTempsRunsOnce(t *testing.T) {
	f := newTestBase(t, Deps{})
	f.cfg.ExperimentRepetitions = 1

	calls := 0
	if err := f.experimentLoop(func() { calls++ }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 iteration, got %d", calls)
	}
}

func TestExperimentLoopRequiresTempControllerWhenTargetsConfigured(t *testing.T) {
	f := newTestBase(t, Deps{})
	f.cfg.TargetTemps = []int64{30}

	if err := f.experimentLoop(func() {}); err == nil {
		t.Fatalf("expected an error when target_temps is set without a temperature controller")
	}
}

func TestVictimCount(t *testing.T) {
	f := newTestBase(t, Deps{})
	if f.victimRows == 0 {
		t.Fatalf("expected the default \"va\" pattern to have at least one victim row")
	}
	if f.victimRows >= f.hammerRows {
		t.Fatalf("expected fewer victim rows than total hammer rows, got %d/%d", f.victimRows, f.hammerRows)
	}
}
