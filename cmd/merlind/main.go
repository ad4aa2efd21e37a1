// Command merlind is the Merlin SwarmOS controller daemon: epoch clock,
// settlement pen, truth sealer.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swarmos/merlin/pkg/codec"
	"github.com/swarmos/merlin/pkg/config"
	"github.com/swarmos/merlin/pkg/epoch"
	"github.com/swarmos/merlin/pkg/metrics"
	"github.com/swarmos/merlin/pkg/model"
	"github.com/swarmos/merlin/pkg/schema"
	"github.com/swarmos/merlin/pkg/store"
	"github.com/swarmos/merlin/pkg/supervisor"
	"github.com/swarmos/merlin/pkg/watcher"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "run":
		cmdRun(args)
	case "status":
		cmdStatus(args)
	case "epochs":
		cmdEpochs(args)
	case "seal":
		cmdSeal(args)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Merlin — SwarmOS Controller Daemon

Usage:
  merlind run              Start the daemon
  merlind seal <epoch_id>  Manually seal an epoch
  merlind status           Show current status
  merlind epochs           List epochs

Examples:
  merlind run
  merlind seal epoch-0042
  merlind status --json
  merlind epochs --limit 5`)
}

func printBanner() {
	fmt.Print(`
    +------------------------------------------------------------+
    |                                                            |
    |   MERLIN -- SwarmOS Controller                             |
    |                                                            |
    |   merlin.swarmos.eth                                       |
    |                                                            |
    |   Epoch Clock . Settlement Pen . Truth Sealer               |
    |                                                            |
    +------------------------------------------------------------+
`)
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}
	return cfg
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.Parse(args)

	printBanner()

	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsReg := metrics.New()
	storeClient := store.New(cfg.IPFSAPI, store.WithMetrics(metricsReg))

	log.Printf("connecting to object store at %s", cfg.IPFSAPI)
	if !storeClient.Connected(ctx) {
		log.Fatalf("object store connection failed at %s", cfg.IPFSAPI)
	}
	log.Println("object store connected")

	if err := storeClient.EnsureDirectories(ctx); err != nil {
		log.Fatalf("initializing object store directories: %v", err)
	}

	w := watcher.New(storeClient)
	em := epoch.New(storeClient, epoch.Config{
		PrivateKey:    cfg.PrivateKey,
		Identity:      cfg.Identity,
		Pool:          cfg.Pool,
		ProviderShare: cfg.ProviderShare,
		EpochDuration: time.Duration(cfg.EpochDurationSeconds) * time.Second,
		Metrics:       metricsReg,
	})

	sup := supervisor.New(supervisor.Config{
		Watcher:      w,
		EpochManager: em,
		Publisher:    storeClient,
		Identity:     cfg.Identity,
		Pool:         cfg.Pool,
		PollInterval: time.Duration(cfg.PollIntervalSeconds) * time.Second,
		Metrics:      metricsReg,
		Logger:       log.New(log.Writer(), "[merlin] ", log.LstdFlags),
	})

	go serveMetrics(cfg.MetricsPort, metricsReg)
	go serveHealth(cfg.HealthPort, storeClient)

	if err := sup.Start(ctx); err != nil {
		log.Fatalf("starting supervisor: %v", err)
	}
	log.Println("merlin running")

	<-ctx.Done()
	log.Println("shutdown signal received, sealing current epoch before exit if it holds proofs")
	sup.Stop(context.Background())
	log.Println("merlin stopped")
}

func serveMetrics(port int, reg *metrics.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	log.Printf("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics server stopped: %v", err)
	}
}

func serveHealth(port int, s *store.Client) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if s.Connected(r.Context()) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("object store unreachable"))
	})
	addr := fmt.Sprintf(":%d", port)
	log.Printf("health check listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("health server stopped: %v", err)
	}
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "output as JSON")
	fs.Parse(args)

	cfg := loadConfig()
	storeClient := store.New(cfg.IPFSAPI)
	ctx := context.Background()
	connected := storeClient.Connected(ctx)

	if *jsonOutput {
		status := map[string]interface{}{
			"controller":             cfg.Identity,
			"pool":                   cfg.Pool,
			"ipfs_connected":         connected,
			"epoch_duration_seconds": cfg.EpochDurationSeconds,
			"provider_share":         cfg.ProviderShare,
			"network_ops_share":      cfg.NetworkOpsShare,
		}
		data, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Println("\nMerlin Status")
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("  Controller: %s\n", cfg.Identity)
	fmt.Printf("  Pool: %s\n", cfg.Pool)
	if connected {
		fmt.Println("  Object store: connected")
	} else {
		fmt.Println("  Object store: disconnected")
	}
	fmt.Printf("  Epoch Duration: %ds\n", cfg.EpochDurationSeconds)
	fmt.Printf("  Provider Share: %.0f%%\n", cfg.ProviderShare*100)
	fmt.Println()

	if !connected {
		os.Exit(1)
	}
}

func cmdEpochs(args []string) {
	fs := flag.NewFlagSet("epochs", flag.ExitOnError)
	limit := fs.Int("limit", 10, "number of epochs to list")
	epochID := fs.String("id", "", "show a specific epoch")
	fs.Parse(args)

	cfg := loadConfig()
	storeClient := store.New(cfg.IPFSAPI)
	ctx := context.Background()

	if !storeClient.Connected(ctx) {
		fmt.Fprintln(os.Stderr, "object store connection failed")
		os.Exit(1)
	}

	ids, err := storeClient.FilesLS(ctx, "/swarmledger/epochs")
	if err != nil {
		log.Fatalf("listing epochs: %v", err)
	}
	if len(ids) == 0 {
		fmt.Println("No epochs found")
		return
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	if *epochID != "" {
		data, err := storeClient.FilesRead(ctx, fmt.Sprintf("/swarmledger/epochs/%s.json", *epochID))
		if err != nil {
			fmt.Printf("Epoch not found: %s\n", *epochID)
			return
		}
		var pretty map[string]interface{}
		if err := json.Unmarshal(data, &pretty); err == nil {
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
		} else {
			fmt.Println(string(data))
		}
		return
	}

	fmt.Println("\nEpochs")
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("%-16s %-12s %-10s %-8s %-12s\n", "ID", "Name", "Status", "Jobs", "Volume")
	fmt.Println(strings.Repeat("-", 60))

	if *limit < 0 {
		*limit = 0
	}
	if *limit > len(ids) {
		*limit = len(ids)
	}
	for _, id := range ids[:*limit] {
		data, err := storeClient.FilesRead(ctx, fmt.Sprintf("/swarmledger/epochs/%s.json", id))
		if err != nil {
			continue
		}
		var e model.Epoch
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		fmt.Printf("%-16s %-12s %-10s %-8d $%s\n", e.EpochID, e.Name, e.Status, e.JobsCount, e.TotalVolumeUSDC)
	}
	fmt.Println()
}

// cmdSeal implements the reference's documented-but-stubbed manual seal:
// load the active epoch document, rehydrate the accumulator from the
// live proofs directory, and run the ordinary seal algorithm. This is a
// best-effort recovery tool for an epoch whose daemon crashed before its
// seal deadline.
func cmdSeal(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: merlind seal <epoch_id>")
		os.Exit(1)
	}
	epochID := args[0]
	fmt.Printf("Sealing epoch: %s\n", epochID)

	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	storeClient := store.New(cfg.IPFSAPI)
	ctx := context.Background()

	if !storeClient.Connected(ctx) {
		fmt.Fprintln(os.Stderr, "object store connection failed")
		os.Exit(1)
	}

	data, err := storeClient.FilesRead(ctx, fmt.Sprintf("/swarmledger/epochs/%s.json", epochID))
	if err != nil {
		fmt.Fprintf(os.Stderr, "epoch not found: %s\n", epochID)
		os.Exit(1)
	}
	var e model.Epoch
	if err := json.Unmarshal(data, &e); err != nil {
		log.Fatalf("decoding epoch document: %v", err)
	}
	if e.Status != "active" {
		fmt.Printf("epoch %s is already sealed; nothing to do\n", epochID)
		return
	}

	em := epoch.New(storeClient, epoch.Config{
		PrivateKey:    cfg.PrivateKey,
		Identity:      cfg.Identity,
		Pool:          cfg.Pool,
		ProviderShare: cfg.ProviderShare,
		EpochDuration: time.Duration(cfg.EpochDurationSeconds) * time.Second,
	})
	em.Resume(&e)

	proofIDs, err := storeClient.FilesLS(ctx, "/swarmpool/proofs")
	if err != nil {
		log.Fatalf("listing proofs: %v", err)
	}

	accepted := 0
	for _, id := range proofIDs {
		raw, err := storeClient.FilesRead(ctx, fmt.Sprintf("/swarmpool/proofs/%s.json", id))
		if err != nil {
			continue
		}
		var p model.Proof
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		if ok, _ := schema.ValidateProof(&p); !ok {
			continue
		}
		if ok, _, err := em.AcceptProof(ctx, &p); err == nil && ok {
			accepted++
		}
	}

	sealed, err := em.Seal(ctx)
	if err != nil {
		log.Fatalf("sealing epoch: %v", err)
	}

	addr, err := codec.AddressFromPrivateKey(cfg.PrivateKey)
	if err == nil {
		fmt.Printf("sealed as controller %s\n", addr)
	}
	fmt.Printf("sealed %s: %d proofs, volume %s\n", sealed.EpochID, accepted, sealed.TotalVolumeUSDC)
}
