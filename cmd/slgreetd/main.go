// slgreetd runs a greeter on a virtual terminal and replaces it with the
// login session the greeter asks for.
package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/user"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/sunlightlinux/slgreet/pkg/clock"
	"github.com/sunlightlinux/slgreet/pkg/config"
	"github.com/sunlightlinux/slgreet/pkg/eventloop"
	"github.com/sunlightlinux/slgreet/pkg/ipc"
	"github.com/sunlightlinux/slgreet/pkg/logging"
	"github.com/sunlightlinux/slgreet/pkg/orchestrator"
	"github.com/sunlightlinux/slgreet/pkg/process"
	"github.com/sunlightlinux/slgreet/pkg/session"
	"github.com/sunlightlinux/slgreet/pkg/vt"
)

const version = "0.1.0"

//go:generate go tool go-md2man -in ../../doc/slgreetd.8.md -out ../../doc/slgreetd.8

func main() {
	// Intercept SIGCHLD and friends before any child can exist.
	signals := eventloop.NewSignals(clock.Real())

	var (
		configPath  string
		vtSpec      string
		greeterCmd  string
		greeterUser string
		socketPath  string
		pidFile     string
		logLevel    string
		logFormat   string
		showVersion bool
	)

	pflag.StringVarP(&configPath, "config", "c", "", "configuration file (default "+config.DefaultPath+")")
	pflag.StringVar(&vtSpec, "vt", "", "VT to run on: a number, next or current")
	pflag.StringVar(&greeterCmd, "greeter", "", "greeter command, run through /bin/sh")
	pflag.StringVarP(&greeterUser, "greeter-user", "u", "", "user to run the greeter as")
	pflag.StringVarP(&socketPath, "socket-path", "s", "", "request socket path")
	pflag.StringVar(&pidFile, "pid-file", "", "PID file path")
	pflag.StringVar(&logLevel, "log-level", "", "log level (debug, info, notice, warn, error)")
	pflag.StringVar(&logFormat, "log-format", "", "log format (text, json)")
	pflag.BoolVarP(&showVersion, "version", "V", false, "show version and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("slgreetd version %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal("%v", err)
	}

	flags := pflag.CommandLine
	if flags.Changed("vt") {
		cfg.Terminal.VT = config.VTSpec(vtSpec)
	}
	if flags.Changed("greeter") {
		cfg.Greeter.Command = config.Command{greeterCmd}
	}
	if flags.Changed("greeter-user") {
		cfg.Greeter.User = greeterUser
	}
	if flags.Changed("socket-path") {
		cfg.SocketPath = socketPath
	}
	if flags.Changed("pid-file") {
		cfg.PIDFile = pidFile
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		fatal("%v", err)
	}

	logger := logging.NewWithWriter(os.Stderr, logging.Format(cfg.Log.Format), logging.ParseLevel(cfg.Log.Level))
	logger.Notice("slgreetd %s starting (PID %d)", version, os.Getpid())

	if cfg.PIDFile != "" {
		if err := process.WritePIDFile(cfg.PIDFile); err != nil {
			logger.Error("PID file: %v", err)
			os.Exit(1)
		}
	}

	process.IgnoreJobControlSignals()
	if err := process.SetChildSubreaper(); err != nil {
		logger.Warn("Cannot become child subreaper: %v", err)
	}

	terminal := vt.NewController(cfg.Console)
	spec, err := cfg.Terminal.VT.Parse()
	if err != nil {
		fatal("%v", err)
	}
	vtNum, err := spec.Resolve(terminal)
	if err != nil {
		logger.Error("Selecting VT %s: %v", spec, err)
		removePIDFile(cfg.PIDFile, logger)
		os.Exit(1)
	}
	logger.Info("Using VT %d", vtNum)

	server := ipc.NewServer(cfg.SocketPath, logger)
	if uid, gid, err := lookupOwner(cfg.Greeter.User); err != nil {
		logger.Warn("Request socket stays root-owned: %v", err)
	} else {
		server.SetOwner(uid, gid)
	}
	ctx := context.Background()
	if err := server.Start(ctx); err != nil {
		logger.Error("Failed to start request socket: %v", err)
		removePIDFile(cfg.PIDFile, logger)
		os.Exit(1)
	}

	cleanup := func() {
		signals.Stop()
		if err := server.Stop(); err != nil {
			logger.Debug("Stopping request socket: %v", err)
		}
		removePIDFile(cfg.PIDFile, logger)
	}

	greeterEnv := maps.Clone(cfg.Greeter.Env)
	if greeterEnv == nil {
		greeterEnv = make(map[string]string)
	}
	greeterEnv[ipc.EnvSocket] = cfg.SocketPath

	launcher := &session.ExecLauncher{
		Terminal:     terminal,
		TrustGreeter: cfg.InsecureTrustGreeter,
		Logger:       logger,
	}
	if cfg.InsecureTrustGreeter {
		logger.Warn("insecure_trust_greeter is set: passwords are not checked")
	} else {
		logger.Warn("No authenticator available: logins will be refused unless insecure_trust_greeter is set")
	}
	orch := orchestrator.New(orchestrator.Config{
		GreeterCommand: cfg.Greeter.Command,
		GreeterUser:    cfg.Greeter.User,
		GreeterEnv:     greeterEnv,
		VT:             vtNum,
	}, launcher, terminal, signals, clock.Real(), logger)
	orch.BeforeExit = func(code int) { cleanup() }

	if err := orch.Greet(); err != nil {
		logger.Error("Cannot start greeter: %v", err)
		fallBack(terminal, logger)
		cleanup()
		os.Exit(1)
	}

	loop := eventloop.New(orch, signals, server.Requests(), logger)
	err = loop.Run(ctx)
	logger.Error("Event loop: %v", err)
	fallBack(terminal, logger)
	cleanup()
	os.Exit(1)
}

// fallBack leaves the console usable as a text terminal.
func fallBack(terminal *vt.Controller, logger *logging.Logger) {
	if err := terminal.SetMode(vt.Text); err != nil {
		logger.Error("Cannot restore text mode: %v", err)
	}
}

func removePIDFile(path string, logger *logging.Logger) {
	if path == "" {
		return
	}
	if err := process.RemovePIDFile(path); err != nil {
		logger.Debug("Removing PID file: %v", err)
	}
}

func lookupOwner(name string) (int, int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, err
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, err
	}
	return uid, gid, nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "slgreetd: "+format+"\n", args...)
	os.Exit(1)
}
