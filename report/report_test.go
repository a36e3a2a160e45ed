package report

import (
	"bytes"
	"strings"
	"testing"

	yaml "gopkg.in/yaml.v2"

	"github.com/ebeamtools/hvpsqual/sequence"
)

func sampleReport() Report {
	results := sequence.NewResults()
	results.MarkOccupied(sequence.Beam)
	results.MarkOccupied(sequence.Solenoid)
	results.Record(sequence.Beam, 0, "100.0", "99.8")
	results.Record(sequence.Solenoid, 1, "1.20", "1.19")
	rb, ms := results.Mappings()
	return New("SN-042", []sequence.Channel{sequence.Beam, sequence.Solenoid}, rb, ms)
}

func TestYAMLRoundTrip(t *testing.T) {
	r := sampleReport()
	var buf bytes.Buffer
	if err := r.EncodeYAML(&buf); err != nil {
		t.Fatalf("EncodeYAML: %v", err)
	}
	var back Report
	if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.SerialNumber != "SN-042" {
		t.Errorf("serial = %q, want SN-042", back.SerialNumber)
	}
	if back.Measurements["BM"][0] != "99.8" {
		t.Errorf("BM[0] = %q, want 99.8", back.Measurements["BM"][0])
	}
	if back.Measurements["BM"][1] != sequence.Unmeasured {
		t.Errorf("BM[1] = %q, want %q", back.Measurements["BM"][1], sequence.Unmeasured)
	}
	if back.Measurements["EX"][0] != sequence.NotInstalled {
		t.Errorf("EX[0] = %q, want %q", back.Measurements["EX"][0], sequence.NotInstalled)
	}
}

func TestSummaryTable(t *testing.T) {
	r := sampleReport()
	var buf bytes.Buffer
	if err := r.Summary(&buf); err != nil {
		t.Fatalf("Summary: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"channel", "BM", "100 V", "99.8", "1.2 A", "1.19", sequence.NotInstalled} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
