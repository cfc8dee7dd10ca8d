package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/minoapp/minosync/internal/config"
	"github.com/minoapp/minosync/internal/extraction"
	"github.com/minoapp/minosync/internal/llm"
	"github.com/minoapp/minosync/internal/logger"
	"github.com/minoapp/minosync/internal/mail"
	"github.com/minoapp/minosync/internal/store"
	syncer "github.com/minoapp/minosync/internal/sync"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sync":
		runSync(log)
	case "status":
		runStatus(log)
	case "rules":
		runRules(log)
	case "graph":
		runGraph(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("minosync - pull card transactions out of forwarded email")
	fmt.Println("\nUsage:")
	fmt.Println("  minosync <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  sync      Fetch recent mail and save new transactions")
	fmt.Println("  status    Show last sync time and API usage")
	fmt.Println("  rules     List or manage category rules")
	fmt.Println("  graph     Dump the place/category graph as JSON")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'minosync <command> -h' for more information on a command.")
}

func openStore(log zerolog.Logger, path string) *store.SQLite {
	st, err := store.Open(path)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", path).Msg("open database failed")
	}
	return st
}

func loadConfig(log zerolog.Logger, path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration failed")
	}
	return cfg
}

func runSync(log zerolog.Logger) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultPath(), "Path to the settings file")
	days := fs.Int("days", 0, "Lookback window in days (default from config)")
	dbPath := fs.String("db", "", "Database path override")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(log, *cfgPath)
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	daysBack := *days
	if daysBack <= 0 {
		daysBack = cfg.SyncDaysBack
	}

	st := openStore(log, cfg.DBPath)
	defer st.Close()

	provider := llm.Resolve(cfg.LLM(), log)
	gateway := llm.NewGateway(provider, log, llm.WithUsageRecorder(st))
	extractor := extraction.NewExtractor(gateway, st, log)
	mailbox := mail.NewClient(cfg.Mail(), log)
	runner := syncer.NewRunner(mailbox, extractor, st, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if last, err := runner.LastSync(ctx); err == nil && !last.IsZero() {
		fmt.Printf("Last sync: %s (%s ago)\n", last.Format(time.RFC3339), time.Since(last).Round(time.Second))
	}
	log.Info().Str("provider", gateway.ProviderName()).Msg("starting sync")

	res, err := runner.Run(ctx, syncer.Options{
		DaysBack: daysBack,
		Progress: func(ev syncer.Event) {
			fmt.Println(ev.Message)
		},
	})
	switch {
	case errors.Is(err, syncer.ErrCancelled):
		os.Exit(130)
	case err != nil:
		log.Fatal().Err(err).Msg("sync failed")
	}
	log.Info().Int("saved", res.Saved).Int("skipped", res.Skipped).Msg("sync finished")
}

func runStatus(log zerolog.Logger) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultPath(), "Path to the settings file")
	dbPath := fs.String("db", "", "Database path override")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(log, *cfgPath)
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	st := openStore(log, cfg.DBPath)
	defer st.Close()

	ctx := context.Background()

	provider := llm.Resolve(cfg.LLM(), log)
	fmt.Printf("Provider:  %s\n", provider.Name())

	last, err := st.SyncInfo(ctx, store.WatermarkKey)
	if err != nil || last == "" {
		fmt.Println("Last sync: never")
	} else {
		fmt.Printf("Last sync: %s\n", last)
	}

	for _, name := range []string{"llm", "kakao"} {
		usage, err := st.APIUsage(ctx, name)
		if err != nil {
			continue
		}
		fmt.Printf("API %-6s %d calls since %s\n", name+":", usage.Count, usage.LastReset.Format(time.RFC3339))
	}
}

func runRules(log zerolog.Logger) {
	fs := flag.NewFlagSet("rules", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultPath(), "Path to the settings file")
	dbPath := fs.String("db", "", "Database path override")
	add := fs.String("add", "", "Add a rule: -add KEYWORD -category CATEGORY")
	category := fs.String("category", "", "Category for -add")
	remove := fs.String("delete", "", "Delete a rule by id")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(log, *cfgPath)
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	st := openStore(log, cfg.DBPath)
	defer st.Close()

	ctx := context.Background()

	switch {
	case *add != "":
		if *category == "" {
			log.Fatal().Msg("Usage: minosync rules -add KEYWORD -category CATEGORY")
		}
		if err := st.UpsertRule(ctx, *add, *category); err != nil {
			log.Fatal().Err(err).Msg("add rule failed")
		}
		fmt.Printf("Rule saved: %q -> %s\n", *add, *category)
	case *remove != "":
		id, err := strconv.ParseInt(*remove, 10, 64)
		if err != nil {
			log.Fatal().Str("id", *remove).Msg("rule id must be a number")
		}
		if err := st.DeleteRule(ctx, id); err != nil {
			log.Fatal().Err(err).Msg("delete rule failed")
		}
		fmt.Printf("Rule %d deleted\n", id)
	default:
		rules, err := st.ListRules(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("list rules failed")
		}
		if len(rules) == 0 {
			fmt.Println("No rules.")
			return
		}
		for _, r := range rules {
			fmt.Printf("%4d  %-20s -> %s\n", r.ID, r.Keyword, r.Category)
		}
	}
}

func runGraph(log zerolog.Logger) {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultPath(), "Path to the settings file")
	dbPath := fs.String("db", "", "Database path override")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(log, *cfgPath)
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	st := openStore(log, cfg.DBPath)
	defer st.Close()

	nodes, edges, err := st.GraphData(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("load graph failed")
	}
	out := struct {
		Nodes []store.Node `json:"nodes"`
		Edges []store.Edge `json:"edges"`
	}{Nodes: nodes, Edges: edges}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("encode graph failed")
	}
}
