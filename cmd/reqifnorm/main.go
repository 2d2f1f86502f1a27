// Command reqifnorm converts ReqIF documents and archives into StrictDoc
// JSON or a flat requirements list, and surveys whole corpora.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/reqifnorm/internal/config"
	"github.com/FocuswithJustin/reqifnorm/internal/logging"
)

const version = "0.4.0"

// CLI defines the command-line interface for reqifnorm.
type CLI struct {
	// Global flags
	Config    string `short:"c" help:"Config file (YAML or TOML)" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level: debug, info, warn, error"`
	LogFormat string `name:"log-format" help:"Log format: text, json"`

	Normalize NormalizeCmd `cmd:"" help:"Convert ReqIF files and archives to StrictDoc JSON"`
	Flatten   FlattenCmd   `cmd:"" help:"Flatten ReqIF files and archives to requirements and links"`
	Corpus    CorpusCmd    `cmd:"" help:"Parse every ReqIF file under a directory and report"`
	History   HistoryCmd   `cmd:"" help:"List corpus runs recorded in a SQLite database"`
	Watch     WatchCmd     `cmd:"" help:"Normalize ReqIF files as they appear in a directory"`
	Init      InitCmd      `cmd:"" help:"Write the effective configuration to a file"`
	Version   VersionCmd   `cmd:"" help:"Print version information"`
}

// env is bound into every command's Run method.
type env struct {
	ctx context.Context
	cfg *config.Config
	out io.Writer
	st  styles
}

// run parses args and executes the selected command, returning the
// process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("reqifnorm"),
		kong.Description("ReqIF normalization with automatic repair"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		fmt.Fprintf(stderr, "reqifnorm: %v\n", err)
		return 2
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "reqifnorm: %v\n", err)
		return 2
	}

	cfg, err := loadConfig(&cli)
	if err != nil {
		fmt.Fprintf(stderr, "reqifnorm: %v\n", err)
		return 2
	}
	level, _ := logging.ParseLevel(cfg.Log.Level)
	format, _ := logging.ParseFormat(cfg.Log.Format)
	logging.InitLoggerTo(stderr, level, format)

	e := &env{ctx: ctx, cfg: cfg, out: stdout, st: newStyles(stdout)}
	if err := kctx.Run(e); err != nil {
		fmt.Fprintf(stderr, "reqifnorm: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(cli *CLI) (*config.Config, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
