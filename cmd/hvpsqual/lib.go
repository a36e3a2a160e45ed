package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/ebeamtools/hvpsqual/generichttp"
	"github.com/ebeamtools/hvpsqual/hvps"
	"github.com/ebeamtools/hvpsqual/report"
	"github.com/ebeamtools/hvpsqual/sequence"
	"github.com/ebeamtools/hvpsqual/server/middleware/locker"
)

// SupplySetup holds the args for connecting to the supply under test
type SupplySetup struct {
	// Addr holds the network or filesystem address of the supply,
	// e.g. 192.168.100.123:2006 for a device connected to port 6 on a digi
	// portserver, or /dev/ttyS4 for an RS232 device on a serial cable
	Addr string `yaml:"Addr"`

	// Serial determines if the connection is serial/RS232 (True) or TCP (False)
	Serial bool `yaml:"Serial"`
}

// Config holds the initialization parameters for one acceptance test run.
// It is to be populated by a yaml/unmarshal call.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// SerialNumber identifies the supply under test; it is stamped into
	// the report
	SerialNumber string `yaml:"SerialNumber"`

	// Occupied lists the channel ids populated on this supply,
	// e.g. [BM, EX, SL].  Order does not matter; the test order is fixed.
	Occupied []string `yaml:"Occupied"`

	// Mock swaps the real supply for an in-memory stand in, for dry runs
	// of the bench procedure without hardware
	Mock bool `yaml:"Mock"`

	// ReportPath is where the YAML report is written on completion
	ReportPath string `yaml:"ReportPath"`

	Supply SupplySetup `yaml:"Supply"`
}

// occupiedChannels converts the config's channel ids, dropping anything that
// is not one of the seven.
func occupiedChannels(ids []string) []sequence.Channel {
	out := make([]sequence.Channel, 0, len(ids))
	for _, id := range ids {
		ch := sequence.Channel(id)
		if !ch.Valid() {
			log.Printf("ignoring unknown channel id %q", id)
			continue
		}
		out = append(out, ch)
	}
	return out
}

// BuildMux assembles the operator-facing router: the session surface under
// /session, the raw supply surface under /supply, each behind its own lock,
// and a route supergraph at /endpoints.
func BuildMux(c Config, session *sequence.Session, supply hvps.Controller) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	mount := func(stem string, httper generichttp.HTTPer) {
		hndlS := generichttp.SubMuxSanitize(stem)
		supergraph[hndlS] = httper.RT().Endpoints()
		lock := locker.New()
		locker.Inject(httper, lock)
		r := chi.NewRouter()
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(hndlS, r)
	}

	mount("session", sequence.NewHTTPWrapper(session))
	mount("supply", hvps.NewHTTPWrapper(supply))

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}

// emitReport writes the YAML report and prints the summary table; it is
// hooked to the session's completion.
func emitReport(c Config, channels []sequence.Channel) func(rb, ms map[string][]string) {
	return func(rb, ms map[string][]string) {
		rpt := report.New(c.SerialNumber, channels, rb, ms)
		if err := rpt.WriteFile(c.ReportPath); err != nil {
			log.Printf("writing report to %s: %v", c.ReportPath, err)
		} else {
			log.Printf("report written to %s", c.ReportPath)
		}
		if err := rpt.Summary(log.Writer()); err != nil {
			log.Printf("printing summary: %v", err)
		}
	}
}
