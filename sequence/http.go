package sequence

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/pkg/errors"

	"github.com/ebeamtools/hvpsqual/generichttp"
	"github.com/ebeamtools/hvpsqual/server"
)

// HTTPWrapper provides HTTP bindings on top of a Session.  A mutex
// serializes operator actions; the workflow is single-operator and the
// device cannot service interleaved transitions.
type HTTPWrapper struct {
	// Session is the underlying session that is wrapped
	Session *Session

	// RouteTable maps method-path pairs to handlers
	RouteTable generichttp.RouteTable

	sync.Mutex
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured
func NewHTTPWrapper(s *Session) *HTTPWrapper {
	w := &HTTPWrapper{Session: s}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/activation"}:      w.HTTPActivation,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/status"}:          w.HTTPStatus,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/results"}:         w.HTTPResults,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/arm"}:            w.HTTPArm,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/capture"}:        w.HTTPCapture,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/output/disable"}: w.HTTPDisableOutput,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/next"}:           w.HTTPNext,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/back"}:           w.HTTPBack,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/close"}:          w.HTTPClose,
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (h *HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// httpStatus picks the response code for a session error: operator mistakes
// are 400s, structural guards 409s, device trouble 500s.
func httpStatus(err error) int {
	switch errors.Cause(err) {
	case ErrBadMeasurement, ErrBadOrdinal:
		return http.StatusBadRequest
	case ErrPointArmed, ErrNoArmedPoint, ErrAtFirstChannel,
		ErrSessionComplete, ErrSessionClosed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// HTTPActivation returns the current channel visit as JSON
func (h *HTTPWrapper) HTTPActivation(w http.ResponseWriter, r *http.Request) {
	h.Lock()
	defer h.Unlock()
	act, err := h.Session.Activation()
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	respondJSON(w, act)
}

// HTTPStatus returns the session's progress as JSON
func (h *HTTPWrapper) HTTPStatus(w http.ResponseWriter, r *http.Request) {
	h.Lock()
	defer h.Unlock()
	plan := h.Session.seq.Plan()
	ids := make([]string, len(plan))
	for i, ch := range plan {
		ids[i] = string(ch)
	}
	respondJSON(w, struct {
		Plan     []string `json:"plan"`
		Index    int      `json:"index"`
		Complete bool     `json:"complete"`
	}{Plan: ids, Index: h.Session.seq.Index(), Complete: h.Session.Complete()})
}

// HTTPResults returns the accumulated mappings as JSON
func (h *HTTPWrapper) HTTPResults(w http.ResponseWriter, r *http.Request) {
	h.Lock()
	defer h.Unlock()
	rb, ms := h.Session.Mappings()
	respondJSON(w, struct {
		Readbacks    map[string][]string `json:"readbacks"`
		Measurements map[string][]string `json:"measurements"`
	}{Readbacks: rb, Measurements: ms})
}

// HTTPArm arms the test point whose ordinal is in the json payload {'int': ordinal}
func (h *HTTPWrapper) HTTPArm(w http.ResponseWriter, r *http.Request) {
	i := server.IntT{}
	err := json.NewDecoder(r.Body).Decode(&i)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Lock()
	defer h.Unlock()
	if err := h.Session.Arm(i.Int); err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPCapture commits the measurement in the json payload {'str': text} for
// the armed point and returns the next focus target
func (h *HTTPWrapper) HTTPCapture(w http.ResponseWriter, r *http.Request) {
	s := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&s)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Lock()
	defer h.Unlock()
	focus, err := h.Session.Capture(s.Str)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	respondJSON(w, focus)
}

// HTTPDisableOutput is the manual kill control
func (h *HTTPWrapper) HTTPDisableOutput(w http.ResponseWriter, r *http.Request) {
	h.Lock()
	defer h.Unlock()
	if err := h.Session.DisableOutput(); err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPNext quiesces the supply and advances to the next channel
func (h *HTTPWrapper) HTTPNext(w http.ResponseWriter, r *http.Request) {
	h.Lock()
	defer h.Unlock()
	if err := h.Session.Next(); err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPBack quiesces the supply and retreats to the previous channel
func (h *HTTPWrapper) HTTPBack(w http.ResponseWriter, r *http.Request) {
	h.Lock()
	defer h.Unlock()
	if err := h.Session.Back(); err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPClose quiesces the supply and retires the session
func (h *HTTPWrapper) HTTPClose(w http.ResponseWriter, r *http.Request) {
	h.Lock()
	defer h.Unlock()
	h.Session.Close()
	w.WriteHeader(http.StatusOK)
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
