package main

import (
	"context"
	"flag"
	"log"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"perkledger/audit"
	"perkledger/core"
	"perkledger/core/genesis"
	"perkledger/crypto"
	"perkledger/storage"
	"perkledger/storage/journal"
)

const (
	defaultDuration = 30 * time.Second
	defaultMembers  = 100
)

type latencyTracker struct {
	mu        sync.Mutex
	latencies []time.Duration
}

func (lt *latencyTracker) record(d time.Duration) {
	lt.mu.Lock()
	lt.latencies = append(lt.latencies, d)
	lt.mu.Unlock()
}

func (lt *latencyTracker) snapshot() []time.Duration {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return append([]time.Duration(nil), lt.latencies...)
}

func main() {
	var (
		memberCount  int
		durationFlag time.Duration
		workDir      string
	)
	flag.IntVar(&memberCount, "members", defaultMembers, "number of membership tokens to mint before the run")
	flag.DurationVar(&durationFlag, "duration", defaultDuration, "load duration")
	flag.StringVar(&workDir, "workdir", "", "directory for journal and audit files (defaults to a temp dir)")
	flag.Parse()

	if memberCount <= 0 {
		log.Fatalf("members must be positive, got %d", memberCount)
	}
	if durationFlag <= 0 {
		durationFlag = defaultDuration
	}
	if workDir == "" {
		dir, err := os.MkdirTemp("", "perk-ledgerload")
		if err != nil {
			log.Fatalf("create work dir: %v", err)
		}
		defer os.RemoveAll(dir)
		workDir = dir
	}

	ownerKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		log.Fatalf("generate owner key: %v", err)
	}
	owner := ownerKey.PubKey().Address().Array()

	spec := &genesis.GenesisSpec{
		GenesisTime:             time.Now().UTC().Format(time.RFC3339),
		Owner:                   ownerKey.PubKey().Address().String(),
		Transferable:            true,
		ExpirationPeriodSeconds: 365 * 24 * 60 * 60,
	}

	jrnl, err := journal.Open(filepath.Join(workDir, "journal.db"), nil)
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}
	defer jrnl.Close()

	dsn, err := audit.FileDSN(filepath.Join(workDir, "audit.db"))
	if err != nil {
		log.Fatalf("build audit dsn: %v", err)
	}
	idx, err := audit.Open(dsn)
	if err != nil {
		log.Fatalf("open audit index: %v", err)
	}
	defer idx.Close()

	node, err := core.NewNode(storage.NewMemDB(), spec, jrnl, idx, nil)
	if err != nil {
		log.Fatalf("start node: %v", err)
	}

	members := make([][20]byte, memberCount)
	tokens := make([]*big.Int, memberCount)
	for i := range members {
		members[i] = memberAddr(i)
		tokenID, err := node.Mint(owner, members[i])
		if err != nil {
			log.Fatalf("mint member %d: %v", i, err)
		}
		if err := node.CreditPoints(owner, members[i], tokenID, big.NewInt(1_000_000)); err != nil {
			log.Fatalf("seed member %d: %v", i, err)
		}
		tokens[i] = tokenID
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracker := &latencyTracker{}
	credit := big.NewInt(10)
	spend := big.NewInt(1)
	deadline := time.Now().Add(durationFlag)
	var executed int
	started := time.Now()
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			log.Printf("context cancelled: %v", ctx.Err())
			return
		default:
		}
		i := executed % memberCount
		next := (i + 1) % memberCount
		opStart := time.Now()
		if err := node.CreditPoints(owner, members[i], tokens[i], credit); err != nil {
			log.Fatalf("credit op %d: %v", executed, err)
		}
		if err := node.TransferPoints(members[i], members[next], tokens[i], spend); err != nil {
			log.Fatalf("transfer op %d: %v", executed, err)
		}
		if err := node.RedeemPoints(members[i], tokens[i], spend); err != nil {
			log.Fatalf("redeem op %d: %v", executed, err)
		}
		tracker.record(time.Since(opStart))
		executed += 3
	}
	elapsed := time.Since(started)

	seq, _, err := jrnl.Head()
	if err != nil {
		log.Fatalf("read journal head: %v", err)
	}
	if err := jrnl.Verify(); err != nil {
		log.Fatalf("journal verification failed: %v", err)
	}
	if sinkErr := node.SinkErr(); sinkErr != nil {
		log.Printf("sink degraded during run: %v", sinkErr)
	}
	reportLoadSummary(tracker.snapshot(), executed, seq, elapsed)
}

// memberAddr derives a deterministic non-zero address for member i.
func memberAddr(i int) [20]byte {
	var addr [20]byte
	addr[0] = byte(i >> 8)
	addr[1] = byte(i)
	addr[19] = 0x01
	return addr
}

func reportLoadSummary(latencies []time.Duration, executed int, journaled uint64, elapsed time.Duration) {
	var max time.Duration
	var total time.Duration
	for _, latency := range latencies {
		if latency > max {
			max = latency
		}
		total += latency
	}
	avg := time.Duration(0)
	if len(latencies) > 0 {
		avg = time.Duration(int64(total) / int64(len(latencies)))
	}
	rate := float64(executed) / elapsed.Seconds()
	log.Printf("Ledger loader executed %d operations in %s (%.0f ops/sec)", executed, elapsed.Round(time.Millisecond), rate)
	log.Printf("Journal sealed %d events, chain verified", journaled)
	log.Printf("Batch latency avg=%s max=%s", avg, max)
}
