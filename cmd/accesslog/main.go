package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"game-devserver/internal/logger"
	"game-devserver/internal/models"
	"game-devserver/internal/repository"
	"game-devserver/internal/service"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run prints the report and returns the process exit code
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("accesslog", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "access.db", "path to the SQLite access database")
	limit := fs.Int("n", 20, "number of recent records to show")
	id := fs.String("id", "", "show a single record by ID")
	logLevel := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	log, err := logger.New(*logLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "accesslog: %v\n", err)
		return 2
	}

	if _, err := os.Stat(*dbPath); err != nil {
		log.WithError(err).Error("access database not found")
		return 1
	}

	// Initialize repository
	repo, err := repository.NewSQLiteRepository(*dbPath)
	if err != nil {
		log.WithError(err).Error("failed to initialize repository")
		return 1
	}
	defer repo.Close()

	accessLog := service.NewAccessLogService(repo, nil, 0, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *id != "" {
		rec, err := accessLog.GetRecord(ctx, *id)
		if err != nil {
			log.WithError(err).WithField("id", *id).Error("failed to read record")
			return 1
		}
		printRecords(stdout, []*models.AccessRecord{rec})
		fmt.Fprintf(stdout, "  remote %s, agent %q\n", rec.RemoteAddr, rec.UserAgent)
		return 0
	}

	recs, err := accessLog.ListRecent(ctx, *limit)
	if err != nil {
		log.WithError(err).Error("failed to read records")
		return 1
	}
	counts, err := accessLog.StatusSummary(ctx)
	if err != nil {
		log.WithError(err).Error("failed to read summary")
		return 1
	}

	printRecords(stdout, recs)
	fmt.Fprintln(stdout)
	printSummary(stdout, counts)
	return 0
}

func statusColor(status int) *color.Color {
	switch {
	case status >= 500:
		return color.New(color.FgRed, color.Bold)
	case status >= 400:
		return color.New(color.FgYellow)
	case status >= 300:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgGreen)
	}
}

func printRecords(out io.Writer, recs []*models.AccessRecord) {
	color.New(color.Bold).Fprintf(out, "Recent requests (%d)\n", len(recs))
	if len(recs) == 0 {
		fmt.Fprintln(out, "  none recorded")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, rec := range recs {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%d B\t%s\n",
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			statusColor(rec.Status).Sprint(rec.Status),
			rec.Method,
			rec.Path,
			rec.Bytes,
			rec.Duration.Round(time.Microsecond),
		)
	}
	w.Flush()
}

func printSummary(out io.Writer, counts []models.StatusCount) {
	color.New(color.Bold).Fprintln(out, "By status")
	var total int64
	for _, c := range counts {
		fmt.Fprintf(out, "  %s  %d\n", statusColor(c.Status).Sprint(c.Status), c.Count)
		total += c.Count
	}
	fmt.Fprintf(out, "  total %d\n", total)
}
