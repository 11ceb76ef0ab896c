// main.go - subctl runs one coordinator workflow against the local ledger and exits.
//
// Usage:
//
//	subctl [-config subledger.yaml] [-account 0x...] [-yes] [-remote URL] <command> [args]
//
// With -remote the command is sent to a running subledgerd instead of opening the ledger file.
//
// Commands:
//
//	setup                               generate circuit and KMS keys
//	create -name N -amount A [-category C] [-description D]
//	decrypt <record-id>
//	list [-q text] [-category all|streaming|software|other]
//	stats
//	history [-n 10]
//	available
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/abhaldrota/SubManage-FHE/internal/api"
	"github.com/abhaldrota/SubManage-FHE/internal/app"
	"github.com/abhaldrota/SubManage-FHE/internal/config"
	"github.com/abhaldrota/SubManage-FHE/internal/logger"
	"github.com/abhaldrota/SubManage-FHE/internal/status"
)

type globalFlags struct {
	config  string
	account string
	yes     bool
	remote  string
}

func main() {
	var g globalFlags
	flag.StringVar(&g.config, "config", "subledger.yaml", "path to the YAML configuration file")
	flag.StringVar(&g.account, "account", "", "signing account (overrides the configuration)")
	flag.BoolVar(&g.yes, "yes", false, "approve every signature without prompting")
	flag.StringVar(&g.remote, "remote", "", "daemon URL, e.g. http://127.0.0.1:8080")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, g, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "subctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: subctl [flags] setup|create|decrypt|list|stats|history|available [args]\n")
	flag.PrintDefaults()
}

func run(ctx context.Context, g globalFlags, cmd string, args []string) error {
	cfg, err := config.LoadConfig(g.config)
	if err != nil {
		return err
	}
	if g.account != "" {
		cfg.Account = g.account
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cmd == "setup" && g.remote != "" {
		return errors.New("setup runs against the local key directory; drop -remote")
	}

	var b backend
	if g.remote != "" {
		b = api.NewClient(g.remote, cfg.Timeout())
	} else {
		a, err := openLocal(ctx, cfg, g.yes)
		if err != nil {
			return err
		}
		defer a.Log.Close()
		defer a.Close()
		b = local{app: a}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	out := os.Stdout
	switch cmd {
	case "setup":
		fmt.Fprintf(out, "Keys ready in %s (contract %s)\n", cfg.KeyDir, cfg.ContractAddress)
		return nil
	case "create":
		return cmdCreate(ctx, b, args, out)
	case "decrypt":
		return cmdDecrypt(ctx, b, args, out)
	case "list":
		return cmdList(ctx, b, args, out)
	case "stats":
		return cmdStats(ctx, b, out)
	case "history":
		return cmdHistory(ctx, b, args, cfg.HistoryViewSize, out)
	case "available":
		return cmdAvailable(ctx, b, out)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func openLocal(ctx context.Context, cfg *config.Config, yes bool) (*app.App, error) {
	auditPath := ""
	if cfg.EnableAudit {
		auditPath = cfg.AuditLogPath
	}
	// The console reporter already shows progress; keep the log stream for warnings.
	level := cfg.LogLevel
	if level == "info" {
		level = "warn"
	}
	log, err := logger.New(level, cfg.LogFile, auditPath)
	if err != nil {
		return nil, err
	}

	approve := promptApproval(os.Stdin, os.Stderr)
	if yes {
		approve = func(context.Context, string, string) bool { return true }
	}
	a, err := app.New(ctx, cfg, log, app.WithReporter(status.Stderr()), app.WithApproval(approve))
	if err != nil {
		log.Close()
		return nil, err
	}
	return a, nil
}

// promptApproval asks on the terminal before each signature, like a wallet confirmation.
func promptApproval(in io.Reader, out io.Writer) func(ctx context.Context, op, recordID string) bool {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, op, recordID string) bool {
		fmt.Fprintf(out, "Sign %s transaction for %s? [y/N] ", op, recordID)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}
