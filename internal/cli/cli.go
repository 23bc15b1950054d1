// Package cli 实现 statsctl 命令行工具：离线规整、回填、查看序列与生成分析。
package cli

import (
	"io"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	DatabaseURL      string `long:"database-url" env:"DATABASE_URL" description:"Database URL (postgres://, sqlite:// or a file path)"`
	DatabasePassword string `long:"database-password" env:"DATABASE_PASSWORD" description:"Password injected into a postgres URL"`
	JSON             bool   `long:"json" description:"Output in JSON format"`
}

type commands struct {
	Normalize *NormalizeCommand
	Ingest    *IngestCommand
	Recent    *RecentCommand
	Analyze   *AnalyzeCommand
}

func buildParser(out io.Writer) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "statsctl"
	parser.LongDescription = "Inspect, backfill and analyze blog traffic statistics."

	cmds := &commands{
		Normalize: &NormalizeCommand{globals: &globals, out: out},
		Ingest:    &IngestCommand{globals: &globals, out: out},
		Recent:    &RecentCommand{globals: &globals, out: out},
		Analyze:   &AnalyzeCommand{globals: &globals, out: out},
	}

	parser.AddCommand("normalize", "Extract daily facts from a saved payload", "Run the payload normalizer on a saved scrape and print the extracted facts and skipped entries without writing anything.", cmds.Normalize)
	parser.AddCommand("ingest", "Backfill a saved payload into the database", "Normalize a saved scrape and merge the facts into stored records.", cmds.Ingest)
	parser.AddCommand("recent", "Print the most recent daily records", "Print the most recent daily records in ascending date order.", cmds.Recent)
	parser.AddCommand("analyze", "Generate a narrative for recent traffic", "Request a narrative analysis of the most recent daily records.", cmds.Analyze)

	return parser, &globals, cmds
}

// Run is the main entry point for statsctl using os.Args.
func Run() error {
	return RunWithArgs(nil, os.Stdout)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(args []string, out io.Writer) error {
	parser, _, _ := buildParser(out)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok && flagsErr.Type == goflags.ErrHelp {
			return nil
		}
		return err
	}
	return nil
}
