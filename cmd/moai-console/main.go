package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/everforgeworks/moai-clicker/internal/config"
	"github.com/everforgeworks/moai-clicker/internal/console"
	"github.com/everforgeworks/moai-clicker/internal/platform/logger"
	"github.com/everforgeworks/moai-clicker/internal/platform/metrics"
	"github.com/everforgeworks/moai-clicker/internal/session"
)

func main() {
	var (
		configPath string
		debug      bool
	)
	flag.StringVar(&configPath, "config", "", "path to moai.yaml (defaults built in)")
	flag.BoolVar(&debug, "debug", false, "log every engine call to stderr")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	cat, err := cfg.Catalog()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Discard()
	if debug {
		log = logger.NewWriterLogger(os.Stderr, true)
	}
	sess := session.New(cat, session.RealClock{}, log, metrics.New())

	if err := console.New(sess, os.Stdout).Run(os.Stdin); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
