package sequence

// Sentinel values for result slots that hold no captured data.
const (
	// NotInstalled marks the slots of channels that are not populated
	NotInstalled = "N/I"

	// Unmeasured marks the slots of occupied channels the operator skipped
	Unmeasured = "unmeasured"
)

// Results accumulates the (readback, measurement) pair for every result
// slot of every channel.  Every channel has its full complement of slots
// (six for HV, three for the solenoid) whether or not it is occupied; slots
// hold sentinels until a capture overwrites them.
type Results struct {
	readbacks    map[Channel][]string
	measurements map[Channel][]string
}

// NewResults returns a Results with every slot of every channel holding the
// NotInstalled sentinel.
func NewResults() *Results {
	r := &Results{
		readbacks:    map[Channel][]string{},
		measurements: map[Channel][]string{},
	}
	for _, ch := range CanonicalOrder {
		n := PointCount(ch)
		rb := make([]string, n)
		ms := make([]string, n)
		for i := 0; i < n; i++ {
			rb[i] = NotInstalled
			ms[i] = NotInstalled
		}
		r.readbacks[ch] = rb
		r.measurements[ch] = ms
	}
	return r
}

// MarkOccupied downgrades a channel's sentinels from NotInstalled to
// Unmeasured.  Slots already captured are left alone.
func (r *Results) MarkOccupied(ch Channel) {
	for i, v := range r.readbacks[ch] {
		if v == NotInstalled {
			r.readbacks[ch][i] = Unmeasured
		}
	}
	for i, v := range r.measurements[ch] {
		if v == NotInstalled {
			r.measurements[ch][i] = Unmeasured
		}
	}
}

// Record commits a captured (readback, measurement) pair to the channel's
// slot at the given ordinal.
func (r *Results) Record(ch Channel, ordinal int, readback, measurement string) {
	r.readbacks[ch][ordinal] = readback
	r.measurements[ch][ordinal] = measurement
}

// Measurement returns the stored measurement for a slot.
func (r *Results) Measurement(ch Channel, ordinal int) string {
	return r.measurements[ch][ordinal]
}

// Readback returns the stored readback for a slot.
func (r *Results) Readback(ch Channel, ordinal int) string {
	return r.readbacks[ch][ordinal]
}

// Captured returns true if the slot holds real data rather than a sentinel.
func (r *Results) Captured(ch Channel, ordinal int) bool {
	m := r.measurements[ch][ordinal]
	return m != NotInstalled && m != Unmeasured
}

// Mappings returns the two accumulated mappings keyed by the canonical
// channel identifiers, for handoff to the report consumer.  The returned
// maps share no storage with the Results.
func (r *Results) Mappings() (readbacks, measurements map[string][]string) {
	readbacks = map[string][]string{}
	measurements = map[string][]string{}
	for _, ch := range CanonicalOrder {
		rb := make([]string, len(r.readbacks[ch]))
		copy(rb, r.readbacks[ch])
		ms := make([]string, len(r.measurements[ch]))
		copy(ms, r.measurements[ch])
		readbacks[string(ch)] = rb
		measurements[string(ch)] = ms
	}
	return readbacks, measurements
}
