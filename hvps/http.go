package hvps

import (
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/ebeamtools/hvpsqual/generichttp"
)

// HTTPWrapper provides HTTP bindings on top of a supply Controller
type HTTPWrapper struct {
	// Supply is the underlying controller that is wrapped
	Supply Controller

	// RouteTable maps method-path pairs to handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured
func NewHTTPWrapper(c Controller) HTTPWrapper {
	w := HTTPWrapper{Supply: c}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/state"}:             w.HTTPState,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/voltage/{ch}"}:      w.HTTPVoltage,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/voltage/{ch}"}:     w.HTTPSetVoltage,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/current/{ch}"}:      w.HTTPCurrent,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/solenoid-current"}: generichttp.SetFloat(c.SetSolenoidCurrent),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/hv/enable"}:        noBody(c.EnableHV),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/hv/disable"}:       noBody(c.DisableHV),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/solenoid/enable"}:  noBody(c.EnableSolenoid),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/solenoid/disable"}: noBody(c.DisableSolenoid),
	}
	if raw, ok := c.(interface {
		Raw(string) (string, error)
	}); ok {
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/raw"}] = httpRaw(raw.Raw)
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// HTTPState returns the decoded supply state as JSON
func (h HTTPWrapper) HTTPState(w http.ResponseWriter, r *http.Request) {
	s, err := h.Supply.State()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err = json.NewEncoder(w).Encode(s)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HTTPVoltage returns the voltage readback for the channel in the URL
func (h HTTPWrapper) HTTPVoltage(w http.ResponseWriter, r *http.Request) {
	ch := chi.URLParam(r, "ch")
	generichttp.GetString(func() (string, error) {
		return h.Supply.Voltage(ch)
	})(w, r)
}

// HTTPSetVoltage commands the voltage target for the channel in the URL
func (h HTTPWrapper) HTTPSetVoltage(w http.ResponseWriter, r *http.Request) {
	ch := chi.URLParam(r, "ch")
	generichttp.SetFloat(func(v float64) error {
		return h.Supply.SetVoltage(ch, v)
	})(w, r)
}

// HTTPCurrent returns the current readback for the channel in the URL
func (h HTTPWrapper) HTTPCurrent(w http.ResponseWriter, r *http.Request) {
	ch := chi.URLParam(r, "ch")
	generichttp.GetString(func() (string, error) {
		return h.Supply.Current(ch)
	})(w, r)
}

func noBody(fcn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func httpRaw(fcn func(string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		data, err := ioutil.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := fcn(string(data))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(resp))
	}
}
