// Package main is the bertd CLI entry point.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bertlib/internal/cli"
	"github.com/hyperjump/bertlib/internal/config"
	"github.com/hyperjump/bertlib/internal/embedding"
	"github.com/hyperjump/bertlib/internal/protocol"
	"github.com/hyperjump/bertlib/internal/server"
	"github.com/hyperjump/bertlib/internal/storage"
	"github.com/hyperjump/bertlib/internal/vector"
	"github.com/hyperjump/bertlib/internal/watcher"
	"github.com/hyperjump/bertlib/internal/worker"
	"github.com/hyperjump/bertlib/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/bertlib/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development). When neither exists the
// defaults are returned, so encode and similar work with the built-in worker.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		if path == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
			cfg = &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
		return nil, "", err
	}
	return cfg, path, nil
}

// workerCommand builds the worker launch command. With no worker path configured
// it runs this binary's own reference worker.
func workerCommand(wc config.WorkerConfig, self string) worker.Command {
	if wc.Path == "" {
		return worker.Command{
			Path: self,
			Args: []string{"worker", "-dim", strconv.Itoa(wc.EmbeddingLength)},
			Env:  wc.Env,
			Dir:  wc.Dir,
		}
	}
	return worker.Command{Path: wc.Path, Args: wc.Args, Env: wc.Env, Dir: wc.Dir}
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// readSentences returns args, or one sentence per non-empty line of r when args is empty.
func readSentences(args []string, r io.Reader) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	var sentences []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			sentences = append(sentences, line)
		}
	}
	return sentences, sc.Err()
}

func parseFormat(s string) (cli.OutputFormat, error) {
	switch s {
	case "text":
		return cli.OutputText, nil
	case "json":
		return cli.OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve", "server":
		runServe()
	case "encode":
		runEncode()
	case "similar":
		runSimilar()
	case "ping":
		runPing()
	case "worker":
		runWorker()
	case "version", "--version", "-v":
		fmt.Printf("bertd version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components holds the started worker and the embedder stack in front of it.
type Components struct {
	Handle   *worker.Handle
	Embedder embedding.Embedder
	Store    *storage.SQLiteStore
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, cached bool) (*Components, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	handle := worker.NewHandle(
		worker.WithLogger(logger),
		worker.WithPolicy(worker.Policy(cfg.Worker.Policy)),
		worker.WithShutdownGrace(cfg.Worker.ShutdownGrace),
	)
	if err := handle.Start(ctx, workerCommand(cfg.Worker, self)); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	channel := embedding.NewChannel(handle,
		embedding.WithDimensions(cfg.Worker.EmbeddingLength),
		embedding.WithTimeout(cfg.Worker.EncodeTimeout),
		embedding.WithChannelLogger(logger),
	)
	c := &Components{Handle: handle, Embedder: channel}
	if !cached {
		return c, nil
	}

	var store embedding.VectorStore
	if cfg.Cache.DatabasePath != "" {
		s, err := storage.NewSQLiteStore(cfg.Cache.DatabasePath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open embedding cache: %w", err)
		}
		c.Store = s
		store = s
	}
	c.Embedder = embedding.NewCachedEmbedder(channel, cfg.Cache.Size, store, logger)
	return c, nil
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (worker lifecycle, per-call timings)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if cfg.Worker.Watch && cfg.Worker.Path != "" {
		watchOpts := []watcher.WatcherOption{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		handle := components.Handle
		w := watcher.NewWatcher(cfg.Worker.Path, func(path string) {
			logger.Info("worker executable changed, restarting", zap.String("path", path))
			if err := handle.Restart(ctx); err != nil {
				logger.Error("worker restart failed", zap.Error(err))
			}
		}, watchOpts...)
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	var stats server.CacheStats
	if components.Store != nil {
		stats = components.Store
	}
	srv := server.NewServer(components.Embedder, components.Handle, stats, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// setupClient loads config for the encode and similar commands and applies the
// -worker override.
func setupClient(configPath, workerPath string) (*config.Config, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if workerPath != "" {
		cfg.Worker.Path = workerPath
		cfg.Worker.Args = nil
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger
}

func runEncode() {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	workerPath := fs.String("worker", "", "worker executable (overrides worker.path)")
	outputFormat := fs.String("output", "text", "output format: text (index and first value per row) or json (full vectors)")
	rounds := fs.Int("rounds", 2, "number of times to encode the batch")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := parseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	sentences, err := readSentences(fs.Args(), os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read sentences: %v\n", err)
		os.Exit(1)
	}

	cfg, logger := setupClient(*configPath, *workerPath)
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, false)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	for round := 0; round < *rounds; round++ {
		embeddings, err := components.Embedder.EmbedBatch(ctx, sentences)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Encode failed (%s): %v\n", worker.KindOf(err), err)
			os.Exit(1)
		}
		if err := cli.WriteEmbeddings(os.Stdout, sentences, embeddings, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func runSimilar() {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	workerPath := fs.String("worker", "", "worker executable (overrides worker.path)")
	threshold := fs.Float64("threshold", 0.4, "minimum cosine similarity to report")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := parseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	sentences, err := readSentences(fs.Args(), os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read sentences: %v\n", err)
		os.Exit(1)
	}
	if len(sentences) == 0 {
		fmt.Println("Usage: bertd similar [flags] <sentence>...")
		os.Exit(1)
	}

	cfg, logger := setupClient(*configPath, *workerPath)
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, false)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	embeddings, err := components.Embedder.EmbedBatch(ctx, sentences)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encode failed (%s): %v\n", worker.KindOf(err), err)
		os.Exit(1)
	}
	rows := vector.Neighbours(embeddings, *threshold)
	if err := cli.WriteNeighbours(os.Stdout, sentences, rows, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runPing() {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	serverURL := fs.String("server", "", "server URL (empty = answer locally)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: bertd ping [flags] <int>")
		os.Exit(1)
	}
	x, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		fmt.Printf("Not an integer: %s\n", fs.Arg(0))
		os.Exit(1)
	}
	if *serverURL == "" {
		fmt.Println(2 * x)
		return
	}
	result, err := pingViaHTTP(*serverURL, x)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ping failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(result)
}

func pingViaHTTP(serverURL string, x int) (int, error) {
	resp, err := http.Get(serverURL + "/api/v1/ping?x=" + url.QueryEscape(strconv.Itoa(x)))
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Result int `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return out.Result, nil
}

// runWorker serves the pipe protocol on stdin/stdout with deterministic embeddings.
// Stdout carries responses only.
func runWorker() {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	fs.SetOutput(os.Stderr)
	dim := fs.Int("dim", protocol.EmbeddingLength, "embedding length")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	logger, err := utils.NewLogger(*debug || utils.DebugFromEnv("BERTLIB_DEBUG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *dim <= 0 {
		*dim = protocol.EmbeddingLength
	}
	model := embedding.NewMockEmbedder(*dim)
	logger.Debug("reference worker ready", zap.Int("dim", *dim), zap.Int("pid", os.Getpid()))
	if err := protocol.Serve(os.Stdin, os.Stdout, *dim, model.Encode); err != nil {
		logger.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`bertd - sentence embeddings from a pipe-connected worker

Usage:
  bertd serve [flags]                  Start the HTTP server
  bertd encode [flags] <sentence>...   Encode sentences (stdin lines when none given)
  bertd similar [flags] <sentence>...  Print sentence pairs above a similarity threshold
  bertd ping [flags] <int>             Print twice the argument
  bertd worker [flags]                 Run the reference worker on stdin/stdout
  bertd version                        Show version
  bertd help                           Show this help

Serve Flags:
  --config string    Config file path (default: /usr/local/etc/bertlib/config.yaml)
  --debug            Enable debug logging

Encode Flags:
  --config string    Config file path
  --worker string    Worker executable (default: worker.path, or the built-in reference worker)
  --output string    Output format: text or json (default: text)
  --rounds int       Times to encode the batch (default: 2)

Similar Flags:
  --config string    Config file path
  --worker string    Worker executable
  --threshold float  Minimum cosine similarity (default: 0.4)
  --output string    Output format: text or json (default: text)

Ping Flags:
  --server string    Server URL (empty answers locally)

Worker Flags:
  --dim int          Embedding length (default: 384)
  --debug            Enable debug logging on stderr

Examples:
  bertd serve
  bertd encode "Rust" "apple"
  bertd encode --output json "The new movie is awesome"
  bertd similar "The cat sits outside" "The dog plays in the garden" "A man is playing guitar"
  bertd ping --server http://localhost:8484 21`)
}
