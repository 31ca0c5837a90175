package telemetry

import "testing"

func TestRecordHelpersNoopBeforeInit(t *testing.T) {
	defaultMetrics = nil

	// Services record through these unconditionally; they must be safe
	// when metrics were never initialized (unit tests, worker misconfig).
	RecordTokensUsed(128, "gemini-2.0-flash")
	RecordExtraction(0.25, "pdf", "completed")
	RecordBriefGeneration("gemini-2.0-flash", "completed")
	RecordCitationCheck(true, 3)
	RecordCitationCheck(false, 0)
	RecordCacheLookup(true)
}

func TestInitMetricsSetsDefault(t *testing.T) {
	defaultMetrics = nil

	m, err := InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	if m == nil {
		t.Fatal("expected metrics instance")
	}
	if defaultMetrics != m {
		t.Fatal("InitMetrics did not install the default recorder")
	}

	// The global meter defaults to a no-op provider, so recording must not
	// panic even without an exporter configured.
	RecordTokensUsed(42, "gemini-2.0-flash")
	RecordBriefGeneration("gemini-2.0-flash", "parse_failed")
	RecordExtraction(1.5, "url", "failed")
	RecordCitationCheck(false, 2)
	RecordCacheLookup(false)
}
