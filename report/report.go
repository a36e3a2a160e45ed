// Package report renders the accumulated acceptance test results into the
// YAML artifact that travels with the supply and a bench-readable summary.
package report

import (
	"io"
	"io/ioutil"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/ebeamtools/hvpsqual/sequence"
)

// Report is the full record of one acceptance test run
type Report struct {
	// SerialNumber identifies the supply under test
	SerialNumber string `yaml:"serialNumber"`

	// Generated is when the run completed
	Generated time.Time `yaml:"generated"`

	// Channels is the occupied set that was walked, in test order
	Channels []string `yaml:"channels"`

	// Readbacks holds the supply's own readings per channel, in ladder order
	Readbacks map[string][]string `yaml:"readbacks"`

	// Measurements holds the operator's meter readings per channel
	Measurements map[string][]string `yaml:"measurements"`
}

// New assembles a report from the mappings a completed session emits.
func New(serialNumber string, channels []sequence.Channel, readbacks, measurements map[string][]string) Report {
	ids := make([]string, len(channels))
	for i, ch := range channels {
		ids[i] = string(ch)
	}
	return Report{
		SerialNumber: serialNumber,
		Generated:    time.Now().UTC(),
		Channels:     ids,
		Readbacks:    readbacks,
		Measurements: measurements,
	}
}

// EncodeYAML writes the report as YAML to w
func (r Report) EncodeYAML(w io.Writer) error {
	buf, err := yaml.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshalling report")
	}
	_, err = w.Write(buf)
	return err
}

// WriteFile writes the report as YAML to path
func (r Report) WriteFile(path string) error {
	buf, err := yaml.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshalling report")
	}
	return ioutil.WriteFile(path, buf, 0644)
}

// Summary writes an aligned plain text table of the results to w, one row
// per test point of each channel in the canonical order.
func (r Report) Summary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, err := io.WriteString(tw, "channel\tpoint\treadback\tmeasured\n")
	if err != nil {
		return err
	}
	for _, ch := range sequence.CanonicalOrder {
		pts := sequence.Ladder(ch.Kind())
		rb := r.Readbacks[string(ch)]
		ms := r.Measurements[string(ch)]
		for i, pt := range pts {
			row := string(ch) + "\t" + pt.Label() + "\t"
			if i < len(rb) {
				row += rb[i]
			}
			row += "\t"
			if i < len(ms) {
				row += ms[i]
			}
			row += "\n"
			if _, err := io.WriteString(tw, row); err != nil {
				return err
			}
		}
	}
	return tw.Flush()
}
