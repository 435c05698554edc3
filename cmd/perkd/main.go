package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"perkledger/audit"
	"perkledger/config"
	"perkledger/core"
	"perkledger/core/genesis"
	"perkledger/crypto"
	"perkledger/observability/logging"
	"perkledger/storage"
	"perkledger/storage/journal"
)

const (
	genCommand    = "gen-address"
	verifyCommand = "verify-journal"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case genCommand:
			runGenAddress(os.Args[2:])
			return
		case verifyCommand:
			runVerifyJournal(os.Args[2:])
			return
		}
	}
	runNode(os.Args[1:])
}

func runNode(args []string) {
	fs := flag.NewFlagSet("perkd", flag.ExitOnError)
	configFile := fs.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := fs.String("genesis", "", "Path to the genesis JSON file (overrides config GenesisFile)")
	fs.Parse(args)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("perkd", cfg.Environment)

	genesisPath := strings.TrimSpace(*genesisFlag)
	if genesisPath == "" {
		genesisPath = strings.TrimSpace(cfg.GenesisFile)
	}
	if genesisPath == "" {
		logger.Error("no genesis file configured; set GenesisFile or pass -genesis")
		os.Exit(1)
	}
	spec, err := genesis.LoadGenesisSpec(genesisPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load genesis spec: %v", err))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		panic(fmt.Sprintf("Failed to prepare data directory: %v", err))
	}
	for _, sinkPath := range []string{cfg.JournalPath, cfg.AuditPath} {
		if dir := filepath.Dir(sinkPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				panic(fmt.Sprintf("Failed to prepare sink directory: %v", err))
			}
		}
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	jrnl, err := journal.Open(cfg.JournalPath, nil)
	if err != nil {
		panic(fmt.Sprintf("Failed to open journal: %v", err))
	}
	defer jrnl.Close()

	dsn, err := audit.FileDSN(cfg.AuditPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to resolve audit path: %v", err))
	}
	idx, err := audit.Open(dsn)
	if err != nil {
		panic(fmt.Sprintf("Failed to open audit index: %v", err))
	}
	defer idx.Close()

	node, err := core.NewNode(db, spec, jrnl, idx, logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to create node: %v", err))
	}

	if err := jrnl.Verify(); err != nil {
		panic(fmt.Sprintf("Journal integrity check failed: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics listener started", "address", cfg.MetricsAddress)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	head, _, err := jrnl.Head()
	if err != nil {
		panic(fmt.Sprintf("Failed to read journal head: %v", err))
	}
	logger.Info("ledger node initialised and running",
		"dataDir", cfg.DataDir,
		"journalSeq", head,
		"owner", spec.Owner)

	<-ctx.Done()
	if err := node.SinkErr(); err != nil {
		logger.Error("event sink reported failures during run", "error", err)
	}
	logger.Info("ledger node shutting down")
}

func runGenAddress(args []string) {
	fs := flag.NewFlagSet(genCommand, flag.ExitOnError)
	output := fs.String("out", "member.key", "Output path for the generated private key")
	fs.Parse(args)

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, key.Bytes(), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save key to %s: %v\n", *output, err)
		os.Exit(1)
	}
	fmt.Printf("Generated new key and saved to %s\n", *output)
	fmt.Printf("Member address: %s\n", key.PubKey().Address().String())
}

func runVerifyJournal(args []string) {
	fs := flag.NewFlagSet(verifyCommand, flag.ExitOnError)
	path := fs.String("journal", "", "Path to the journal file (defaults to the config JournalPath)")
	configFile := fs.String("config", "./config.toml", "Path to the configuration file")
	fs.Parse(args)

	target := strings.TrimSpace(*path)
	if target == "" {
		cfg, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
			os.Exit(1)
		}
		target = cfg.JournalPath
	}

	jrnl, err := journal.Open(target, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open journal: %v\n", err)
		os.Exit(1)
	}
	defer jrnl.Close()

	if err := jrnl.Verify(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: journal verification failed: %v\n", err)
		os.Exit(1)
	}
	seq, head, err := jrnl.Head()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read journal head: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Journal verified: %d entries, head %s\n", seq, head)
}
