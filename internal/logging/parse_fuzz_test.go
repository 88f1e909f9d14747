package logging

import "testing"

func FuzzParseLevel(f *testing.F) {
	seeds := []string{"debug", "info", "warn", "warning", "error", "", "trace", "Error ", "\tWARN"}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		level, ok := ParseLevel(raw)
		if ok && normalizeLevel(level) != level {
			t.Fatalf("parsed level %q does not normalize to itself", level)
		}
		if !ok && level != "" {
			t.Fatalf("failed parse returned non-empty level %q", level)
		}
	})
}
