// Package main is the entrypoint for the capability bridge.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/morezero/capability-bridge/internal/config"
	"github.com/morezero/capability-bridge/internal/server"
	"github.com/morezero/capability-bridge/internal/tui"
	"github.com/morezero/capability-bridge/pkg/capability"
	"github.com/morezero/capability-bridge/pkg/db"
	"github.com/morezero/capability-bridge/pkg/invocation"
	"github.com/morezero/capability-bridge/pkg/ledger"
	"github.com/morezero/capability-bridge/pkg/orchestrator"
)

const usage = `Usage: bridge [command]
       bridge serve                       Start the bridge with its HTTP frontend.
       bridge run "<instruction>"         Connect, handle one instruction, print the answer.
       bridge invoke <capability> [json]  Call one capability with JSON arguments.
       bridge capabilities                List the provider's capabilities.
       bridge chat                        Interactive chat in the terminal.
       bridge history [k]                 Show the k most recent outcomes from the history store.
       bridge migrate up                  Apply history store migrations.
       bridge migrate status              Show migration status.

Commands:
  serve           (default) Start the bridge and serve /health, /ready, /capabilities, /history, /run, /invoke.
  run             Plan, invoke and compose the answer for a single instruction.
  invoke          Invoke a capability directly; arguments default to {}.
  capabilities    Print the catalog as listed by the provider.
  chat            Chat over the bridge; /help inside the chat lists commands.
  history [k]     Read recorded outcomes back from BRIDGE_HISTORY_SINK_URL (default k: 10).
  migrate up      Run database migrations only (postgres history store).
  migrate status  Show applied and pending migrations.

Environment: COMMS_URL, BRIDGE_PROVIDER_SUBJECT, BRIDGE_PROTOCOL_RANGE, OPENAI_API_KEY,
BRIDGE_HISTORY_SINK_URL, MIGRATION_PATH, REGISTRY_HTTP_ADDR (default 0.0.0.0:8080). See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "run":
		if len(args) < 2 || strings.TrimSpace(strings.Join(args[1:], " ")) == "" {
			log.Fatalf("bridge run: require an instruction")
		}
		if err := runInstruction(strings.Join(args[1:], " ")); err != nil {
			log.Fatalf("bridge run: %v", err)
		}
		return
	case "invoke":
		if len(args) < 2 {
			log.Fatalf("bridge invoke: require a capability name")
		}
		rawArgs := ""
		if len(args) > 2 {
			rawArgs = args[2]
		}
		if err := runInvoke(args[1], rawArgs); err != nil {
			log.Fatalf("bridge invoke: %v", err)
		}
		return
	case "capabilities", "caps":
		if err := runCapabilities(); err != nil {
			log.Fatalf("bridge capabilities: %v", err)
		}
		return
	case "chat":
		if err := runChat(); err != nil {
			log.Fatalf("bridge chat: %v", err)
		}
		return
	case "history":
		k := ledger.DefaultCapacity
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				log.Fatalf("bridge history: k must be a positive integer, got %q", args[1])
			}
			k = n
		}
		if err := runHistory(k); err != nil {
			log.Fatalf("bridge history: %v", err)
		}
		return
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("bridge migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("bridge migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("bridge migrate status: %v", err)
			}
		default:
			log.Fatalf("bridge migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("bridge: %v", err)
	}
}

// loadConfig loads and validates config for commands that talk to the provider.
// Logs go to stderr so command output stays clean.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForRun(); err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if cfg.SlogLevel() < level {
		level = cfg.SlogLevel()
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

// connectBridge builds a bridge and connects it.
func connectBridge(ctx context.Context) (*server.Bridge, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	b, err := server.NewBridge(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := b.Connect(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("connect to %s: %w", cfg.COMMSURL, err)
	}
	return b, nil
}

func runInstruction(instruction string) error {
	ctx := context.Background()
	b, err := connectBridge(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	printAnswer(b.Run(ctx, instruction))
	return nil
}

func printAnswer(ans *orchestrator.Answer) {
	switch ans.Kind {
	case orchestrator.KindAnswered:
		fmt.Println(ans.Text)
	case orchestrator.KindNotActionable:
		fmt.Println(color.YellowString(ans.Text))
	default:
		fmt.Println(color.RedString(ans.Text))
	}
	if ans.Capability != "" {
		fmt.Println(color.New(color.Faint).Sprintf("(%s via %s)", ans.Kind, ans.Capability))
	}
}

// parseArguments decodes a JSON object; empty input means no arguments.
func parseArguments(raw string) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

func runInvoke(name, rawArgs string) error {
	args, err := parseArguments(rawArgs)
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, err := connectBridge(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	out, err := b.Invoke(ctx, name, args)
	if out == nil {
		return err
	}
	data, jerr := json.MarshalIndent(out, "", "  ")
	if jerr != nil {
		return fmt.Errorf("encode outcome: %w", jerr)
	}
	if out.OK() {
		fmt.Println(color.GreenString(string(out.Status)))
	} else {
		fmt.Println(color.RedString("%s: %s", out.Status, invocation.Describe(out.ErrorCode)))
	}
	fmt.Println(string(data))
	return nil
}

func runCapabilities() error {
	ctx := context.Background()
	b, err := connectBridge(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	printCatalog(b.Catalog())
	return nil
}

func printCatalog(cat *capability.Catalog) {
	fmt.Println(color.CyanString("Catalog v%d (%d capabilities)", cat.Version(), cat.Len()))
	for _, d := range cat.All() {
		fmt.Printf("  %s", color.New(color.Bold).Sprint(d.Name))
		if d.Description != "" {
			fmt.Printf("  %s", d.Description)
		}
		fmt.Println()
		for _, p := range d.Parameters {
			req := ""
			if p.Required {
				req = color.YellowString(" required")
			}
			fmt.Printf("      %s: %s%s\n", p.Name, p.Type, req)
		}
	}
}

func runChat() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := server.NewBridge(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.Connect(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.YellowString("not connected: %v (use /connect in the chat)", err))
	}
	return tui.Run(ctx, b)
}

func runHistory(k int) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	store, err := db.OpenHistoryStore(ctx, cfg.HistorySinkURL)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	outs, err := store.RecentOutcomes(ctx, k)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	fmt.Println(tui.RenderHistory(outs))
	return nil
}

func runMigrateUp() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForMigrate(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.HistorySinkURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Println(color.GreenString("Migrations applied."))
	return nil
}

func runMigrateStatus() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForMigrate(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.HistorySinkURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	report, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
	if err != nil {
		return err
	}
	for _, name := range report.Applied {
		fmt.Printf("%s %s\n", color.GreenString("applied"), name)
	}
	for _, name := range report.Pending {
		fmt.Printf("%s %s\n", color.YellowString("pending"), name)
	}
	return nil
}
