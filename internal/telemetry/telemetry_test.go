package telemetry

import "testing"

func reset() {
	mu.Lock()
	enabled = false
	logger = nil
	mu.Unlock()
}

func TestLog_WhenDisabled(t *testing.T) {
	reset()
	Log("should not panic: %s", "test")
}

func TestLog_WhenEnabled(t *testing.T) {
	reset()
	Enable()
	defer reset()
	Log("test message: %s", "value")
}

func TestLogHTTP_WhenDisabled(t *testing.T) {
	reset()
	LogHTTP("GET", "http://example.com", 200)
	LogHTTP("POST", "http://example.com", 0)
}

func TestLogHTTP_WhenEnabled(t *testing.T) {
	reset()
	Enable()
	defer reset()
	LogHTTP("GET", "http://example.com", 200)
	LogHTTP("POST", "http://example.com", 0)
}

func TestWarn_WhenDisabled(t *testing.T) {
	reset()
	Warn("should not panic: %d", 123)
}

func TestWarn_WhenEnabled(t *testing.T) {
	reset()
	Enable()
	defer reset()
	Warn("warning message: %d", 456)
}

func TestEnabled_ReflectsState(t *testing.T) {
	reset()
	if Enabled() {
		t.Fatal("expected disabled by default")
	}
	Enable()
	defer reset()
	if !Enabled() {
		t.Fatal("expected enabled after Enable()")
	}
}
