package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"

	sensormux "github.com/luhtfiimanal/go-linux-sensormux"
	"github.com/luhtfiimanal/go-linux-sensormux/httpdev"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	configFile = flag.String("config", "sensormuxd.yml", "path to the configuration file")
	debug      = flag.Bool("debug", false, "log selections and failed requests")
)

func root() {
	str := `sensormuxd exposes the temperature and pressure sensors of this host as one
device node over HTTP.  Write "temp" or "pres" to the node to pick a sensor,
then read it; the read after that is empty until the next write.

Usage:
	sensormuxd [-config file] [-debug] <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `sensormuxd is configured by its .yml file, overridden by SENSORMUX_* environment
variables (SENSORMUX_ADDR, SENSORMUX_SOURCES_TEMP, ...).  When no configuration
is provided, the defaults are used.  mkconf writes the defaults to the file.

Example session:
	curl -X POST -d temp localhost:8000/sensormux
	curl localhost:8000/sensormux        # 21500
	curl -i localhost:8000/sensormux     # 204 No Content`
	fmt.Println(str)
}

func loadconf() sensormux.Config {
	cfg, err := sensormux.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}
	return cfg
}

func mkconf() {
	f, err := os.Create(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := sensormux.WriteConfig(f, sensormux.DefaultConfig()); err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	if err := sensormux.WriteConfig(os.Stdout, loadconf()); err != nil {
		log.Fatal(err)
	}
}

func newLogger() *zap.SugaredLogger {
	var (
		logger *zap.Logger
		err    error
	)
	if *debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal(err)
	}
	return logger.Sugar()
}

func run() {
	cfg := loadconf()
	logger := newLogger()
	defer logger.Sync()

	registrar := httpdev.New(logger)
	dev, err := sensormux.Open(cfg, registrar, sensormux.WithLogger(logger.Named(cfg.Name)))
	if err != nil {
		logger.Fatalw("opening device", "error", err)
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		if err := dev.Close(); err != nil {
			logger.Warnw("closing device", "error", err)
		}
		logger.Sync()
		os.Exit(0)
	}()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Mount("/", registrar.Handler())
	logger.Infow("now listening for requests", "addr", cfg.Addr, "device", dev.Name)
	logger.Fatal(http.ListenAndServe(cfg.Addr, r))
}

func pversion() {
	fmt.Println("sensormuxd version", Version)
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		root()
		return
	}
	switch args[0] {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "version":
		pversion()
	case "run":
		run()
	default:
		log.Fatal("unknown command")
	}
}
