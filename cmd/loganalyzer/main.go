package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"loganalyzer/pkg/api"
	"loganalyzer/pkg/ingest"
	"loganalyzer/pkg/report"
	"loganalyzer/pkg/storage"
	"loganalyzer/pkg/storage/memdb"
	"loganalyzer/pkg/storage/postgres"
)

const connectTimeout = 10 * time.Second

type Config struct {
	LogLevel string          `toml:"logLevel"`
	Postgres postgres.Config `toml:"postgres"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "process":
		runProcess(os.Args[2:])
	case "report":
		runReport(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: loganalyzer <process|report|serve> [flags]")
	fmt.Fprintln(os.Stderr, "  process -file <path>                  parse a log file and store its records")
	fmt.Fprintln(os.Stderr, "  report  -type <name> [-n N] [-date D] run an aggregate report")
	fmt.Fprintln(os.Stderr, "  serve   [-http addr]                  expose reports over HTTP")
}

// commonFlags registers the flags every subcommand shares.
func commonFlags(fs *flag.FlagSet) (configPath, logLevel *string, dev *bool) {
	configPath = fs.String("config", "config.toml", "Path to TOML config file.")
	logLevel = fs.String("log", "info", "Log level: debug, info, warn, error.")
	dev = fs.Bool("dev", false, "Run with in-memory DB instead of postgres.")
	return
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	}
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Postgres.Password == "" {
		cfg.Postgres.Password = os.Getenv("POSTGRES_PASSWORD")
	}

	return cfg, nil
}

// openStorage connects to the configured store. The returned store is held
// for the rest of the invocation; callers must Close it on every exit path.
func openStorage(ctx context.Context, cfg Config, dev bool) (storage.Storage, error) {
	if dev {
		log.Info("Using in-memory DB")
		return memdb.New(), nil
	}

	if !cfg.Postgres.IsValid() {
		return nil, fmt.Errorf("invalid postgres config: %s", cfg.Postgres)
	}

	db, err := postgres.New(ctx, cfg.Postgres.ConString())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrConnectDB, err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", storage.ErrDBNotResponding, err)
	}
	log.Infof("connected to postgres: %s", cfg.Postgres)

	return db, nil
}

func runProcess(args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	configPath, logLevel, dev := commonFlags(fs)
	filePath := fs.String("file", "", "Path to the access-log file to ingest.")
	fs.Parse(args)

	setLogLevel(*logLevel)

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "Error: -file is required for process")
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil && !*dev {
		log.Fatalf("failed to load config file %s: %v", *configPath, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	db, err := openStorage(ctx, cfg, *dev)
	cancel()
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx = context.Background()
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("failed to bootstrap schema: %v", err)
	}

	sum, err := ingest.NewProcessor(db).ProcessFile(ctx, *filePath)
	if err != nil {
		log.Fatalf("ingestion failed: %v", err)
	}

	if sum.Rejected > 0 {
		log.Infof("rejected %d malformed lines", sum.Rejected)
	}
	fmt.Printf("Processed %d entries.\n", sum.Accepted)
}

func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	configPath, logLevel, dev := commonFlags(fs)
	reportType := fs.String("type", "", "Report type: top_n_ips, status_code_distribution, hourly_traffic, top_n_pages, user_agent_summary, traffic_by_os, error_logs_by_date.")
	n := fs.Int("n", 5, "Top N results.")
	dateStr := fs.String("date", "", "Date for error logs (YYYY-MM-DD).")
	fs.Parse(args)

	setLogLevel(*logLevel)

	// Argument validation happens before any query runs.
	var date time.Time
	if *reportType == "error_logs_by_date" {
		if *dateStr == "" {
			fmt.Fprintln(os.Stderr, "Error: -date is required for error_logs_by_date")
			os.Exit(2)
		}
		var err error
		date, err = time.Parse("2006-01-02", *dateStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -date %q, expected YYYY-MM-DD\n", *dateStr)
			os.Exit(2)
		}
	}

	cfg, err := loadConfig(*configPath)
	if err != nil && !*dev {
		log.Fatalf("failed to load config file %s: %v", *configPath, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	db, err := openStorage(ctx, cfg, *dev)
	cancel()
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx = context.Background()
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("failed to bootstrap schema: %v", err)
	}

	var table report.Table
	switch *reportType {
	case "top_n_ips":
		rows, err := db.TopIPs(ctx, *n)
		if err != nil {
			log.Fatalf("report failed: %v", err)
		}
		table = report.TopIPs(rows)
	case "status_code_distribution":
		rows, err := db.StatusDistribution(ctx)
		if err != nil {
			log.Fatalf("report failed: %v", err)
		}
		table = report.StatusDistribution(rows)
	case "hourly_traffic":
		rows, err := db.HourlyTraffic(ctx)
		if err != nil {
			log.Fatalf("report failed: %v", err)
		}
		table = report.HourlyTraffic(rows)
	case "top_n_pages":
		rows, err := db.TopPaths(ctx, *n)
		if err != nil {
			log.Fatalf("report failed: %v", err)
		}
		table = report.TopPaths(rows)
	case "user_agent_summary":
		rows, err := db.UserAgentSummary(ctx, *n)
		if err != nil {
			log.Fatalf("report failed: %v", err)
		}
		table = report.UserAgentSummary(rows)
	case "traffic_by_os":
		rows, err := db.TrafficByOS(ctx)
		if err != nil {
			log.Fatalf("report failed: %v", err)
		}
		table = report.TrafficByOS(rows)
	case "error_logs_by_date":
		rows, err := db.ErrorLogsByDate(ctx, date)
		if err != nil {
			log.Fatalf("report failed: %v", err)
		}
		table = report.ErrorLogs(rows)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown report type %q\n", *reportType)
		os.Exit(2)
	}

	table.Render(os.Stdout)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath, logLevel, dev := commonFlags(fs)
	httpAddr := fs.String("http", ":8067", "HTTP server address in the form 'host:port'.")
	fs.Parse(args)

	setLogLevel(*logLevel)

	if !strings.Contains(*httpAddr, ":") {
		log.Warn("use ':' before port number, e.g. ':8080'")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil && !*dev {
		log.Fatalf("failed to load config file %s: %v", *configPath, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	db, err := openStorage(ctx, cfg, *dev)
	cancel()
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Bootstrap(context.Background()); err != nil {
		log.Fatalf("failed to bootstrap schema: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{
		Addr:    *httpAddr,
		Handler: api.New(db).Router,
	}

	go func() {
		log.Infof("serving reports on %s", *httpAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
		log.Info("Stopped serving new connections")
	}()

	<-sigChan

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP shutdown error: %v", err)
	}
	log.Info("Server stopped")
}
