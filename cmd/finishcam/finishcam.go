package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/finishcam/finishcam/server"
	"github.com/finishcam/finishcam/server/monitor"
)

func main() {
	nominalDefaultDB := "$HOME/finishcam/config.sqlite"

	parser := argparse.NewParser("finishcam", "Race finish line tracking server")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration database file", Default: nominalDefaultDB})
	detections := parser.String("d", "detections", &argparse.Options{Help: "Detection stream to replay (JSONL, one detection result per line)", Default: ""})
	realtime := parser.Flag("", "realtime", &argparse.Options{Help: "Pace a replayed detection stream at its original speed", Default: false})
	port := parser.Int("p", "port", &argparse.Options{Help: "HTTP port (overrides the configured port)", Default: 0})
	hotReloadWWW := parser.Flag("", "hot", &argparse.Options{Help: "Hot reload www instead of embedding into binary", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if *configFile == nominalDefaultDB {
		home, _ := os.UserHomeDir()
		if home == "" {
			home = "/var/lib"
		}
		*configFile = filepath.Join(home, "finishcam", "config.sqlite")
	}

	var source monitor.FrameSource
	if *detections != "" {
		jsonlSource, err := monitor.OpenJSONLSource(*detections)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		jsonlSource.Realtime = *realtime
		source = jsonlSource
		logger.Infof("Replaying detections from %v (%vx%v)", *detections, jsonlSource.FrameWidth(), jsonlSource.FrameHeight())
	}

	srv, err := server.NewServer(logger, *configFile, source, nil, *hotReloadWWW)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	srv.Start()
	srv.ListenForKillSignals()

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	listenPort := srv.Settings().HTTPPort
	if *port != 0 {
		listenPort = *port
	}
	if err := srv.ListenHTTP(fmt.Sprintf(":%v", listenPort)); err != nil {
		logger.Errorf("ListenHTTP returned: %v", err)
		os.Exit(1)
	}
}
