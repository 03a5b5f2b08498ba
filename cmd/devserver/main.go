package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"game-devserver/internal/config"
	"game-devserver/internal/handler"
	"game-devserver/internal/logger"
	"game-devserver/internal/metrics"
	"game-devserver/internal/repository"
	"game-devserver/internal/service"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"
)

func main() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	os.Exit(run(os.Args[1:], sigChan, os.Stdout, os.Stderr))
}

// run starts the server and blocks until a value arrives on stop. It returns
// the process exit code.
func run(args []string, stop <-chan os.Signal, stdout, stderr io.Writer) int {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(args, os.Getenv, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "devserver: %v\n", err)
		return 2
	}

	log, err := logger.New(cfg.LogLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "devserver: %v\n", err)
		return 2
	}

	metricsInstance := metrics.NewMetrics()

	opts := handler.Options{
		Decorate:  handler.CORSHeaders,
		MIMETypes: handler.MergeMIMETypes(cfg.MIMETypes),
		Metrics:   metricsInstance,
		Logger:    log,
	}

	var accessLog *service.AccessLogService
	if cfg.AccessDB != "" {
		repo, err := repository.NewSQLiteRepository(cfg.AccessDB)
		if err != nil {
			log.WithError(err).Error("failed to open access database")
			return 1
		}
		defer repo.Close()

		accessLog = service.NewAccessLogService(repo, metricsInstance, service.DefaultQueueSize, log)
		opts.Recorder = accessLog
	}

	browser.Stdout = io.Discard
	browser.Stderr = io.Discard

	srv := service.NewServer(cfg, handler.New(cfg.Root, opts), browser.OpenURL, log)
	if _, err := srv.Start(); err != nil {
		if errors.Is(err, service.ErrNoFreePort) {
			printNoFreePort(stderr, cfg.Candidates())
			log.WithError(err).Debug("bind failed")
			return 1
		}
		log.WithError(err).Error("failed to start server")
		return 1
	}

	printBanner(stdout, srv.URL(), cfg.Root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	if accessLog != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			accessLog.Run(ctx)
		}()
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})

	go func() {
		defer close(shutdownDone)
		sig := <-stop
		log.WithField("signal", sig.String()).Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.WithError(err).Error("error closing server")
		}
	}()

	if err := srv.Serve(); err != nil {
		log.WithError(err).Error("server error")
		return 1
	}
	<-shutdownDone

	cancel()
	wg.Wait()

	fields := logrus.Fields{}
	for k, v := range metricsInstance.GetSnapshot() {
		fields[k] = v
	}
	log.WithFields(fields).Info("request summary")

	color.New(color.FgYellow).Fprintln(stdout, "Server stopped")
	return 0
}

const rule = "========================================"

func printBanner(w io.Writer, url, root string) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)

	fmt.Fprintln(w, rule)
	bold.Fprintln(w, "  Game dev server running")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  URL:  %s\n", cyan.Sprint(url))
	fmt.Fprintf(w, "  Root: %s\n", root)
	fmt.Fprintln(w, "  Press Ctrl+C to stop")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
}

func printNoFreePort(w io.Writer, tried []int) {
	red := color.New(color.FgRed, color.Bold)

	ports := make([]string, len(tried))
	for i, p := range tried {
		ports[i] = strconv.Itoa(p)
	}

	red.Fprintf(w, "Error: every candidate port is in use (%s)\n", strings.Join(ports, ", "))
	fmt.Fprintln(w, "Pass a free port explicitly: devserver <port>")
	fmt.Fprintln(w, "For example: devserver 9000")
}
