package capi

import (
	"strings"
	"testing"
)

func TestGoString(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		if got := GoString(nil); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		buf := []byte{0}
		if got := GoString(&buf[0]); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		buf := CString("invalid index handle")
		if got := GoString(&buf[0]); got != "invalid index handle" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("CopiesOut", func(t *testing.T) {
		buf := CString("abc")
		s := GoString(&buf[0])
		buf[0] = 'x'
		if s != "abc" {
			t.Errorf("string aliases the engine buffer: %q", s)
		}
	})
}

func TestCString(t *testing.T) {
	buf := CString("hi")
	if len(buf) != 3 || buf[0] != 'h' || buf[1] != 'i' || buf[2] != 0 {
		t.Errorf("got %v", buf)
	}

	empty := CString("")
	if len(empty) != 1 || empty[0] != 0 {
		t.Errorf("got %v", empty)
	}
}

func TestKindStrings(t *testing.T) {
	scalars := map[ScalarKind]string{
		ScalarF32:       "f32",
		ScalarF64:       "f64",
		ScalarF16:       "f16",
		ScalarBF16:      "bf16",
		ScalarI8:        "i8",
		ScalarB1:        "b1",
		ScalarUnknown:   "unknown",
		ScalarKind(200): "unknown",
	}
	for k, want := range scalars {
		if got := k.String(); got != want {
			t.Errorf("scalar %d: got %q want %q", k, got, want)
		}
	}

	metrics := map[MetricKind]string{
		MetricIP:         "ip",
		MetricCos:        "cos",
		MetricL2sq:       "l2sq",
		MetricHaversine:  "haversine",
		MetricDivergence: "divergence",
		MetricPearson:    "pearson",
		MetricHamming:    "hamming",
		MetricTanimoto:   "tanimoto",
		MetricSorensen:   "sorensen",
		MetricUnknown:    "unknown",
	}
	for m, want := range metrics {
		if got := m.String(); got != want {
			t.Errorf("metric %d: got %q want %q", m, got, want)
		}
	}

	// Every named kind renders a lowercase identifier.
	for m := MetricIP; m <= MetricSorensen; m++ {
		if s := m.String(); s != strings.ToLower(s) {
			t.Errorf("metric %d name %q not lowercase", m, s)
		}
	}
}
