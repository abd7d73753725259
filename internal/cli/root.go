package cli

import (
	"fmt"

	"github.com/nao1215/tablequery"
	"github.com/spf13/cobra"
)

// RootOptions holds the flags of the tablequery command.
type RootOptions struct {
	Verbose bool
	Format  string // "ntriples" | "csv" | "tsv" | "json", empty picks by query type
	Output  string
	Config  string

	Header     bool
	NoHeader   bool
	Delimiter  string
	QuoteChar  string
	EscapeChar string
	Encoding   string
	Tabs       bool
	InputType  string
	Sheet      string

	Compress string
	Test     bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"ntriples", "csv", "tsv", "json"}

// NewRootCommand creates the tablequery command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tablequery [flags] <query-file> [<data-file>|-]",
		Short: "SPARQL queries over CSV and other tables",
		Long: `tablequery runs SPARQL SELECT and CONSTRUCT queries over tabular data.

Every row of the table becomes a solution that binds one variable per column.
Columns are named after the header row or, without one, ?a, ?b, ?c and so on.
?ROWNUM holds the row number. An OFFSET 1 on the first query marks the first
row as the header unless --header or --no-header is given.

The table is read from <data-file>, from stdin when it is "-", or from the
FROM clause of the first query. Format options may follow the file name as a
fragment, for example "data.csv#delimiter=semicolon;encoding=latin1".

Example:
  tablequery mapping.sparql people.csv > people.nt
  tablequery --format json --no-header select.sparql data.tsv
  cat people.csv | tablequery --delimiter semicolon select.sparql -`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "" && !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Header && opts.NoHeader {
				return NewExitError(ExitCommandError, "--header and --no-header are mutually exclusive")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args, cmd)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "", "output format (ntriples|csv|tsv|json), default by query type")
	flags.StringVarP(&opts.Output, "output", "o", "", "write results to this file instead of stdout")
	flags.StringVar(&opts.Config, "config", "", "YAML file with default input and output settings")

	flags.BoolVarP(&opts.Header, "header", "H", false, "the first row holds column names")
	flags.BoolVar(&opts.NoHeader, "no-header", false, "the first row is data")
	flags.StringVarP(&opts.Delimiter, "delimiter", "d", "", "field delimiter, a character or one of comma, semicolon, tab")
	flags.StringVarP(&opts.QuoteChar, "quotechar", "q", "", "quote character, a character or one of doublequote, singlequote")
	flags.StringVarP(&opts.EscapeChar, "escapechar", "p", "", "escape character, a character or backslash")
	flags.StringVarP(&opts.Encoding, "encoding", "e", "", "character encoding of the input, default UTF-8")
	flags.BoolVarP(&opts.Tabs, "tabs", "t", false, "the input is tab-separated")
	flags.StringVar(&opts.InputType, "input-type", "", "input file type (csv|tsv|ltsv|parquet|xlsx), default by extension")
	flags.StringVar(&opts.Sheet, "sheet", "", "XLSX sheet to read, default the first one")

	flags.StringVar(&opts.Compress, "compress", "", "compress the output (gz|xz|zst)")
	flags.BoolVar(&opts.Test, "test", false, "print the rewritten queries without evaluating them")

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	_, err := tablequery.ParseOutputFormat(format)
	return err == nil
}
