// Package main is the kensaku CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/backend"
	"github.com/hyperjump/kensaku/internal/cli"
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/metrics"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/rerank"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/server"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/watcher"
	"github.com/hyperjump/kensaku/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory; if that exists it is used, so that
// "kensaku server" from a project dir picks up the project's config.
// Returns the config and the path that was actually loaded.
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
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "metadata":
		runMetadata()
	case "info":
		runInfo()
	case "status":
		runStatus()
	case "index":
		runIndex()
	case "delete":
		runDelete()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("kensaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func newLogger(cfg *config.Config, debug bool) *zap.Logger {
	logger, err := utils.NewLoggerWithFile(cfg.Debug || debug, utils.LogFileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	return logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (requests, backend calls, reloads)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug),
		zap.Strings("collections", cfg.Collections),
	)

	m := metrics.New()
	components, err := initializeComponents(cfg, logger, m)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	snapshot := config.NewSnapshot(cfg)
	watchSvc := watcher.NewWatcher(resolvedConfigPath, snapshot, watcher.WithLogger(logger))
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Warn("config watcher unavailable; changes need a restart", zap.Error(err))
	}

	srv := server.NewServer(components.Engine, snapshot, m, logger, version)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchSvc.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	if err := components.Backends.SaveVectors(); err != nil {
		logger.Warn("vector index save failed", zap.Error(err))
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kensaku search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results from the vector and keyword backends are fused into one ranked list.
  • Use --mode semantic or --mode keyword to query a single backend.
  • Use --collections to restrict the search (email, document, web; comma separated).
  • Use --fuzzy to enable typo tolerance for keyword matching.
  • --threshold drops results below a fused score; it is ignored in keyword mode.

Examples:
  kensaku search quarterly budget
  kensaku search --mode keyword "invoice 2024"
  kensaku search --collections emails,web --top-k 20 travel plans
  kensaku search --rerank=false --output json your query
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "kensaku search budget -top-k 5"
// would otherwise leave -top-k unparsed.
func searchArgsReorder(args []string) []string {
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

// setFlags returns the names of flags given explicitly on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search the local indices directly)")
	mode := fs.String("mode", "", "combined, semantic, or keyword (default from config)")
	topK := fs.Int("top-k", 0, "number of results (default from config)")
	collections := fs.String("collections", "", "comma-separated collection filter")
	fuzzy := fs.Bool("fuzzy", false, "enable fuzzy keyword matching")
	threshold := fs.Float64("threshold", 0, "minimum fused score in [0,1] (default from config)")
	useRerank := fs.Bool("rerank", false, "rerank results with the cross-encoder (default from config)")
	rag := fs.Bool("rag", false, "send the query to /api/rag instead of /api/query")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}

	given := setFlags(fs)
	req := &models.SearchRequest{
		Query:            queryStr,
		Mode:             models.Mode(*mode),
		CollectionFilter: *collections,
	}
	if given["top-k"] {
		req.TopK = topK
	}
	if given["fuzzy"] {
		req.Fuzzy = fuzzy
	}
	if given["threshold"] {
		req.SimilarityThreshold = threshold
	}
	if given["rerank"] {
		req.UseReranking = useRerank
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		// The server holds the bleve and SQLite locks, so go through its API.
		endpoint := "/api/query"
		if *rag {
			endpoint = "/api/rag"
		}
		client := newAPIClient(*serverURL)
		response, err = client.search(endpoint, req)
		if err == nil && len(response.Results) == 0 && !given["fuzzy"] {
			// Retry with typo tolerance when the exact query found nothing.
			fuzzyOn := true
			req.Fuzzy = &fuzzyOn
			if retry, retryErr := client.search(endpoint, req); retryErr == nil && len(retry.Results) > 0 {
				response = retry
			}
		}
	} else {
		response, err = searchDirect(*configPath, req)
	}
	if err != nil {
		fatalf("Search failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func searchDirect(configPath string, req *models.SearchRequest) (*models.SearchResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg, false)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	params, err := req.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	response, err := components.Engine.Search(context.Background(), cfg, params)
	if err == nil && len(response.Results) == 0 && req.Fuzzy == nil && !params.Fuzzy {
		params.Fuzzy = true
		if retry, retryErr := components.Engine.Search(context.Background(), cfg, params); retryErr == nil && len(retry.Results) > 0 {
			response = retry
		}
	}
	return response, err
}

// parseMetadataArgs turns key=value arguments into a metadata filter.
func parseMetadataArgs(args []string) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(args))
	for _, a := range args {
		key, value, ok := strings.Cut(a, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("metadata filter %q is not key=value", a)
		}
		fields[key] = value
	}
	return fields, nil
}

func runMetadata() {
	fs := flag.NewFlagSet("metadata", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search the local indices directly)")
	query := fs.String("query", "", "optional content query blended with the metadata score")
	topK := fs.Int("top-k", 0, "number of results (default from config)")
	collections := fs.String("collections", "", "comma-separated collection filter")
	fuzzy := fs.Bool("fuzzy", true, "fuzzy metadata matching")
	threshold := fs.Float64("threshold", 0, "minimum metadata similarity in [0,1] (default from config)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kensaku metadata [flags] key=value [key=value...]\n\n")
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), "\nExamples:\n  kensaku metadata author=kim\n  kensaku metadata --query budget source_url=https://example.com/reports\n")
	}
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	fields, err := parseMetadataArgs(fs.Args())
	if err != nil || len(fields) == 0 {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}

	given := setFlags(fs)
	req := &models.MetadataSearchRequest{
		Metadata:         fields,
		Query:            *query,
		CollectionFilter: *collections,
	}
	if given["top-k"] {
		req.TopK = topK
	}
	if given["fuzzy"] {
		req.MetadataFuzzy = fuzzy
	}
	if given["threshold"] {
		req.MetadataThreshold = threshold
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = newAPIClient(*serverURL).search("/api/metadata_search", req)
	} else {
		response, err = metadataDirect(*configPath, req)
	}
	if err != nil {
		fatalf("Metadata search failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func metadataDirect(configPath string, req *models.MetadataSearchRequest) (*models.SearchResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg, false)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	params, err := req.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	return components.Engine.MetadataSearch(context.Background(), cfg, params)
}

func runInfo() {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	info, err := newAPIClient(*serverURL).info()
	if err != nil {
		fatalf("Info failed: %v", err)
	}
	if err := cli.WriteInfo(os.Stdout, info, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the local indices directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}

	var status *models.StatusResponse
	if *serverURL != "" {
		status, err = newAPIClient(*serverURL).status()
	} else {
		status, err = statusDirect(*configPath)
	}
	if err != nil {
		fatalf("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func statusDirect(configPath string) (*models.StatusResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg, false)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return components.Engine.Status(context.Background(), cfg)
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	batchSize := fs.Int("batch-size", 0, "records embedded and written per batch")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kensaku index [flags] <records.jsonl> [more.jsonl...]")
		fmt.Println("Each line is a JSON record: collection, doc_id, chunk_id, chunk_number, total_chunks, content, metadata, timestamp.")
		fmt.Println("Stop the server first; the indices are opened for writing.")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, *debug)
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, nil)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	idx := components.newIndexer(logger, *batchSize)
	ctx := context.Background()
	var total indexer.Stats
	for _, path := range fs.Args() {
		stats, err := idx.IndexFile(ctx, path)
		total.Records += stats.Records
		total.Documents += stats.Documents
		total.Skipped += stats.Skipped
		if err != nil {
			_ = components.Backends.SaveVectors()
			fatalf("Indexing %s failed after %d records: %v", path, stats.Records, err)
		}
		fmt.Printf("%s: %d records in %d documents (%d skipped)\n", path, stats.Records, stats.Documents, stats.Skipped)
	}
	if err := components.Backends.SaveVectors(); err != nil {
		fatalf("Saving vector indices failed: %v", err)
	}
	if len(fs.Args()) > 1 {
		fmt.Printf("total: %d records in %d documents (%d skipped)\n", total.Records, total.Documents, total.Skipped)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 2 {
		fmt.Println("Usage: kensaku delete [flags] <collection> <doc-id>")
		os.Exit(1)
	}
	collection, docID := fs.Arg(0), fs.Arg(1)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger := newLogger(cfg, false)
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, nil)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if err := components.newIndexer(logger, 0).DeleteDocument(context.Background(), collection, docID); err != nil {
		fatalf("Deletion failed: %v", err)
	}
	if err := components.Backends.SaveVectors(); err != nil {
		fatalf("Saving vector indices failed: %v", err)
	}
	fmt.Printf("Document deleted: %s/%s\n", collection, docID)
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if _, err := os.Stat(*configPath); err == nil && !*force {
		fatalf("%s already exists; use --force to overwrite", *configPath)
	}
	if err := config.Save(*configPath, config.Default()); err != nil {
		fatalf("Failed to write config: %v", err)
	}
	fmt.Printf("Wrote default config to %s\n", *configPath)
}

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Embedder embedding.Embedder
	Backends *backend.Set
	Reranker *rerank.Service
	Engine   *search.Engine
}

func (c *Components) newIndexer(logger *zap.Logger, batchSize int) *indexer.Indexer {
	return indexer.NewIndexer(c.Storage, c.Embedder, c.Backends.Keyword, c.Backends.Vector,
		indexer.WithLogger(logger), indexer.WithBatchSize(batchSize))
}

func (c *Components) Close() {
	if c.Reranker != nil {
		_ = c.Reranker.Close()
	}
	if c.Backends != nil {
		_ = c.Backends.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// openEmbedder loads the configured embedding model. A model that fails to load
// is replaced by an embedder that always errors, so vector search is reported
// unavailable while keyword search keeps working.
func openEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Embedder {
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		logger.Warn("embedding model unavailable, vector search disabled",
			zap.String("model_path", cfg.Embedding.ModelPath), zap.Error(err))
		return embedding.NewUnavailableEmbedder(cfg.Embedding.Dimensions, err)
	}
	return embedder
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder := openEmbedder(cfg, logger)

	backends := backend.Open(cfg, embedder, store, logger)
	logger.Info("indices opened",
		zap.String("vector_index_type", cfg.Vector.IndexType),
		zap.Int("keyword_collections", len(backends.Keyword)),
		zap.Int("vector_collections", len(backends.Vector)))

	var reranker *rerank.Service
	if loader := rerank.LoaderFor(cfg.Reranker); loader != nil {
		reranker = rerank.NewService(loader, rerank.Options{
			ModelName: cfg.Reranker.ModelName,
			Timeout:   cfg.Reranker.Timeout,
		}, logger)
	}

	return &Components{
		Storage:  store,
		Embedder: embedder,
		Backends: backends,
		Reranker: reranker,
		Engine:   search.NewEngine(backends, store, reranker, m, logger),
	}, nil
}

func printUsage() {
	fmt.Println(`kensaku - Hybrid retrieval over email, document, and web collections

Usage:
  kensaku server [flags]                     Start the HTTP server
  kensaku search [flags] <query>             Fused vector + keyword search
  kensaku metadata [flags] key=value...      Fuzzy metadata search
  kensaku info [flags]                       Show models, collections, and weights
  kensaku status [flags]                     Show record and index counts
  kensaku index [flags] <records.jsonl>      Import pre-chunked records
  kensaku delete [flags] <collection> <id>   Delete every chunk of a document
  kensaku init [flags]                       Write a default config file
  kensaku version                            Show version
  kensaku help                               Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kensaku/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --server string       Server URL (default: http://localhost:8080). Use --server "" to search local indices directly.
  --mode string         combined, semantic, or keyword
  --top-k int           Number of results
  --collections string  Comma-separated collection filter
  --fuzzy               Fuzzy keyword matching
  --threshold float     Minimum fused score
  --rerank              Rerank with the cross-encoder
  --rag                 Use /api/rag
  --output string       text, compact, or json

Metadata Flags:
  --query string        Content query blended with the metadata score
  --fuzzy               Fuzzy metadata matching (default: true)
  --threshold float     Minimum metadata similarity

Examples:
  kensaku server
  kensaku search "quarterly budget"
  kensaku search --mode keyword --collections emails invoice
  kensaku metadata author=kim --query budget
  kensaku index records.jsonl
  kensaku status --output json`)
}
