package digitizer

import (
	"errors"
	"testing"

	"labmq/internal/config"
)

func newTestBoard() *Board {
	return NewBoard(config.Digitizer{
		Device:  "/dev/drs4",
		Samples: 256,
		Rate:    2.0,
	})
}

func TestCaptureLifecycle(t *testing.T) {
	board := newTestBoard()

	if ready, err := board.IsReady(); err != nil || !ready {
		t.Fatalf("fresh board ready = %v, %v", ready, err)
	}
	if _, err := board.Waveform(0); !errors.Is(err, ErrNoCapture) {
		t.Fatalf("waveform before capture: %v", err)
	}

	if err := board.StartCollect(); err != nil {
		t.Fatalf("start collect: %v", err)
	}
	if ready, _ := board.IsReady(); ready {
		t.Fatal("armed board must not be ready")
	}
	if err := board.ForceStop(); err != nil {
		t.Fatalf("force stop: %v", err)
	}
	if ready, _ := board.IsReady(); !ready {
		t.Fatal("board must be ready after force stop")
	}

	waveform, err := board.Waveform(0)
	if err != nil {
		t.Fatalf("waveform: %v", err)
	}
	if len(waveform) != 256 {
		t.Fatalf("waveform length = %d", len(waveform))
	}
	lowest := 0.0
	for _, v := range waveform {
		if v < lowest {
			lowest = v
		}
	}
	if lowest > -50 {
		t.Fatalf("expected a pulse dip in the window, lowest = %v", lowest)
	}

	if _, err := board.Waveform(Channels); err == nil {
		t.Fatal("expected channel range error")
	}
}

func TestWaveformReadCompletesArmedCapture(t *testing.T) {
	board := newTestBoard()

	if err := board.StartCollect(); err != nil {
		t.Fatalf("start collect: %v", err)
	}
	if _, err := board.Waveform(1); err != nil {
		t.Fatalf("waveform while armed: %v", err)
	}
	if ready, _ := board.IsReady(); !ready {
		t.Fatal("read must complete the armed capture")
	}
}

func TestWaveformSum(t *testing.T) {
	board := newTestBoard()
	if err := board.StartCollect(); err != nil {
		t.Fatalf("start collect: %v", err)
	}
	if err := board.ForceStop(); err != nil {
		t.Fatalf("force stop: %v", err)
	}

	full, err := board.WaveformSum(0, 0, 256, 0, 0)
	if err != nil {
		t.Fatalf("full-window sum: %v", err)
	}
	if full <= 0 {
		t.Fatalf("pulse area = %v, want positive", full)
	}

	// A window far from the pulse carries almost no area.
	tail, err := board.WaveformSum(0, 200, 256, 0, 0)
	if err != nil {
		t.Fatalf("tail sum: %v", err)
	}
	if tail >= full/2 {
		t.Fatalf("tail area %v should be well below the full area %v", tail, full)
	}

	if _, err := board.WaveformSum(0, 100, 100, 0, 0); err == nil {
		t.Fatal("expected empty integration window error")
	}
	if _, err := board.WaveformSum(7, 0, 256, 0, 0); err == nil {
		t.Fatal("expected channel range error")
	}
}

func TestTimeSliceSpacing(t *testing.T) {
	board := newTestBoard()

	slice, err := board.TimeSlice()
	if err != nil {
		t.Fatalf("time slice: %v", err)
	}
	if len(slice) != 256 {
		t.Fatalf("slice length = %d", len(slice))
	}
	if slice[0] != 0 {
		t.Fatalf("slice[0] = %v", slice[0])
	}
	// 2 GS/s means 0.5 ns between samples.
	if slice[1] != 0.5 || slice[100] != 50 {
		t.Fatalf("spacing wrong: slice[1]=%v slice[100]=%v", slice[1], slice[100])
	}
}

func TestTriggerConfiguration(t *testing.T) {
	board := newTestBoard()

	if got := board.TriggerSettings(); got.Channel != ExternalTrigger {
		t.Fatalf("default trigger channel = %d", got.Channel)
	}

	if err := board.SetTrigger(2, 0.05, 1, 50); err != nil {
		t.Fatalf("set trigger: %v", err)
	}
	got := board.TriggerSettings()
	if got.Channel != 2 || got.Level != 0.05 || got.Direction != 1 || got.Delay != 50 {
		t.Fatalf("trigger = %+v", got)
	}

	// External trigger keeps the internal level and direction untouched.
	if err := board.SetTrigger(ExternalTrigger, 9.9, 0, 10); err != nil {
		t.Fatalf("set external trigger: %v", err)
	}
	got = board.TriggerSettings()
	if got.Channel != ExternalTrigger || got.Level != 0.05 || got.Direction != 1 || got.Delay != 10 {
		t.Fatalf("trigger = %+v", got)
	}

	if err := board.SetTrigger(5, 0, 0, 0); err == nil {
		t.Fatal("expected channel range error")
	}
	if err := board.SetTrigger(1, 0, 2, 0); err == nil {
		t.Fatal("expected direction error")
	}
	if err := board.SetTrigger(1, 0, 0, -1); err == nil {
		t.Fatal("expected negative delay error")
	}
}

func TestRateRoundsIntoSupportedRange(t *testing.T) {
	board := newTestBoard()

	if err := board.SetRate(10); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if rate, _ := board.Rate(); rate != maxRate {
		t.Fatalf("rate = %v, want clamped %v", rate, maxRate)
	}
	if err := board.SetRate(0.1); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if rate, _ := board.Rate(); rate != minRate {
		t.Fatalf("rate = %v, want clamped %v", rate, minRate)
	}
	if err := board.SetRate(-1); err == nil {
		t.Fatal("expected rejection of negative rate")
	}
}

func TestSamplesCapAtChannelDepth(t *testing.T) {
	board := newTestBoard()

	if err := board.SetSamples(4096); err != nil {
		t.Fatalf("set samples: %v", err)
	}
	if got := board.Samples(); got != channelDepth {
		t.Fatalf("samples = %d", got)
	}
	if err := board.SetSamples(0); err == nil {
		t.Fatal("expected rejection of zero samples")
	}
}

func TestUnavailableBoardRefusesOperations(t *testing.T) {
	board := newTestBoard()
	if err := board.StartCollect(); err != nil {
		t.Fatalf("start collect: %v", err)
	}

	board.SetAvailable(false)

	if err := board.StartCollect(); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("start collect error = %v", err)
	}
	if err := board.SetRate(2); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("set rate error = %v", err)
	}
	if _, err := board.Rate(); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("rate error = %v", err)
	}
	if _, err := board.Waveform(0); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("waveform error = %v", err)
	}
	if _, err := board.IsReady(); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("is-ready error = %v", err)
	}
	if board.IsAvailable() {
		t.Fatal("is-available must report the detach")
	}

	// The sample setting is board-local state, not a hardware call.
	if err := board.SetSamples(128); err != nil {
		t.Fatalf("set samples while detached: %v", err)
	}

	board.SetAvailable(true)
	if ready, err := board.IsReady(); err != nil || !ready {
		t.Fatalf("reattach must abort the armed capture: ready=%v err=%v", ready, err)
	}
}

func TestCalibrationRequiresIdleBoard(t *testing.T) {
	board := newTestBoard()

	if err := board.RunCalibration(); err != nil {
		t.Fatalf("calibration: %v", err)
	}
	if err := board.StartCollect(); err != nil {
		t.Fatalf("start collect: %v", err)
	}
	if err := board.RunCalibration(); err == nil {
		t.Fatal("expected calibration rejection while armed")
	}
}
