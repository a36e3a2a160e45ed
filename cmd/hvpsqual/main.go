package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"

	"github.com/ebeamtools/hvpsqual/hvps"
	"github.com/ebeamtools/hvpsqual/sequence"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "hvpsqual.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:         ":8000",
		SerialNumber: "UNSET",
		Occupied:     []string{"BM", "EX", "L1", "L2", "L3", "L4", "SL"},
		ReportPath:   "hvpsqual-report.yml",
		Supply:       SupplySetup{Addr: "/dev/ttyS0", Serial: true}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `hvpsqual runs the acceptance test sequence for v3 high voltage power supplies.
An operator walks the occupied channels in a fixed order, arming one test
point at a time and recording external meter readings against the supply's
own readbacks.  The workflow is served over HTTP so any bench UI can drive it.

Usage:
	hvpsqual <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `hvpsqual is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Occupied lists the channel ids populated on the supply under test.  The seven
ids, in the order they are tested:
- BM  beam
- EX  extractor
- L1..L4  lenses 1 through 4
- SL  solenoid (current channel; the others are high voltage)

Each HV channel is tested at +-100, +-500 and +-1000 volts; the solenoid at
0.3, 1.2 and 2.5 amps.  The supply is never left energized across a channel
transition, and ctrl-C mid-test shuts the outputs down before exiting.

Set Mock: true to dry run the bench procedure without hardware.

On completion the report is written to ReportPath and a summary table is
printed.  Slots for channels that are not populated read "N/I"; slots the
operator skipped on an occupied channel read "unmeasured".`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("hvpsqual version %v\n", Version)
}

// connectSupply builds the supply controller and probes it once, behind a
// spinner so the operator can see the bench is alive.
func connectSupply(c Config) hvps.Controller {
	cfg := yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " connecting to supply at " + c.Supply.Addr,
		SuffixAutoColon: true,
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
		StopFailMessage: "no response from supply",
	}
	spinner, err := yacspin.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()

	var supply hvps.Controller
	if c.Mock {
		supply = hvps.NewMock(c.Supply.Addr, c.Supply.Serial)
	} else {
		supply = hvps.NewHVPSv3(c.Supply.Addr, c.Supply.Serial)
	}
	st, err := supply.State()
	if err != nil {
		spinner.StopFail()
		log.Fatalf("probing supply state: %v", err)
	}
	spinner.Stop()
	if st.HVEnabled || st.SolenoidEnabled {
		log.Println("supply had an output enabled at startup; it will be disabled when the first transition runs")
	}
	return supply
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	occupied := occupiedChannels(c.Occupied)
	if len(occupied) == 0 {
		log.Fatal("no occupied channels configured; nothing to test")
	}

	supply := connectSupply(c)
	session := sequence.NewSession(supply, occupied)
	session.OnComplete = emitReport(c, sequence.BuildPlan(occupied))

	// ctrl-C mid-test still shuts the outputs down
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("interrupted, shutting the supply down")
		session.Close()
		os.Exit(1)
	}()

	mux := BuildMux(c, session, supply)
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
