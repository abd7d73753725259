package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nao1215/tablequery"
	"github.com/nao1215/tablequery/domain/model"
	"github.com/spf13/cobra"
)

// stdinName is the source name used for "-". It carries no extension, so
// the input is read as CSV unless a type is given.
const stdinName = "stdin"

func runQuery(opts *RootOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg := &Config{}
	if opts.Config != "" {
		loaded, err := LoadConfig(opts.Config)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid config", err)
		}
		cfg = loaded
		logger.Debug("loaded config", "path", opts.Config)
	}
	defaults, err := cfg.FormatOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	overrides, err := flagFormatOptions(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flag", err)
	}

	builder := tablequery.NewBuilder().
		AddQueryFile(args[0]).
		WithDefaultFormatOptions(defaults).
		WithFormatOptions(overrides).
		WithOptions(tablequery.WithLogger(logger))
	if limit := cfg.MemoryLimit(); limit != nil {
		builder.WithOptions(tablequery.WithMemoryLimit(limit))
	}
	if err := configureInput(builder, opts, cfg, args, cmd.InOrStdin()); err != nil {
		return WrapExitError(ExitCommandError, "invalid input", err)
	}

	// Build may spool stdin before it fails.
	defer func() {
		if err := builder.Cleanup(); err != nil {
			logger.Warn("failed to remove temporary files", "error", err)
		}
	}()
	if _, err := builder.Build(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to prepare query", err)
	}
	format := builder.Format()
	logger.Debug("resolved input format",
		"type", format.Type,
		"header", format.Header,
		"compression", format.Compression)

	exec, err := builder.Open(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to prepare query", err)
	}
	defer func() {
		_ = exec.Close() // Results are written, a close error changes nothing
	}()

	if opts.Test {
		return printRewritten(exec, cmd.OutOrStdout())
	}
	return writeResults(ctx, exec, opts, cfg, cmd.OutOrStdout(), logger)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// flagFormatOptions collects the format options given as flags.
func flagFormatOptions(opts *RootOptions) (tablequery.FormatOptions, error) {
	o := tablequery.FormatOptions{Encoding: opts.Encoding}
	switch {
	case opts.Header:
		o.Header = tablequery.HeaderPresent
	case opts.NoHeader:
		o.Header = tablequery.HeaderAbsent
	}

	var err error
	if o.Delimiter, err = parseCharOption("delimiter", opts.Delimiter); err != nil {
		return o, err
	}
	if o.QuoteChar, err = parseCharOption("quotechar", opts.QuoteChar); err != nil {
		return o, err
	}
	if o.EscapeChar, err = parseCharOption("escapechar", opts.EscapeChar); err != nil {
		return o, err
	}
	return o, nil
}

// configureInput sets the input and the settings that are not format
// options: file type and sheet.
func configureInput(b *tablequery.Builder, opts *RootOptions, cfg *Config, args []string, stdin io.Reader) error {
	fileType := cfg.Input.Type
	if opts.Tabs {
		fileType = tablequery.FileTypeTSV.String()
	}
	if opts.InputType != "" {
		fileType = opts.InputType
	}
	if fileType != "" {
		ft, err := tablequery.ParseFileType(fileType)
		if err != nil {
			return err
		}
		b.WithFileType(ft)
	}

	sheet := cfg.Input.Sheet
	if opts.Sheet != "" {
		sheet = opts.Sheet
	}
	if sheet != "" {
		b.WithSheet(sheet)
	}

	if len(args) < 2 {
		return nil
	}
	if args[1] == "-" {
		b.SetReader(stdinName, stdin)
		return nil
	}
	b.SetPath(args[1])
	return nil
}

func printRewritten(exec *tablequery.Execution, w io.Writer) error {
	if err := exec.Rewrite(); err != nil {
		return WrapExitError(exitCodeFor(err), "failed to rewrite queries", err)
	}
	for i, q := range exec.Queries() {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprint(w, q.String()); err != nil {
			return err
		}
	}
	return nil
}

func writeResults(ctx context.Context, exec *tablequery.Execution, opts *RootOptions, cfg *Config, stdout io.Writer, logger *slog.Logger) error {
	first := exec.FirstQuery()
	writeOpts, err := resolveWriteOptions(opts, cfg, first)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid output settings", err)
	}

	w, finish, err := outputTarget(opts.Output, stdout)
	if err != nil {
		return err
	}

	if first.IsSelectType() {
		if n := len(exec.Queries()); n > 1 {
			logger.Warn("only the first SELECT query is evaluated", "queries", n)
		}
		err = writeSolutions(ctx, exec, w, writeOpts)
	} else {
		err = writeTriples(ctx, exec, w, writeOpts)
	}
	if finishErr := finish(); err == nil && finishErr != nil {
		err = WrapExitError(ExitFailure, "failed to close output", finishErr)
	}
	return err
}

func writeSolutions(ctx context.Context, exec *tablequery.Execution, w io.Writer, opts tablequery.WriteOptions) error {
	solutions, err := exec.ExecSelect(ctx)
	if err != nil {
		return WrapExitError(exitCodeFor(err), "query failed", err)
	}
	defer func() {
		_ = solutions.Close() // Ignore close error, the results are written
	}()
	if err := tablequery.WriteSolutions(w, solutions, opts); err != nil {
		return WrapExitError(exitCodeFor(err), "query failed", err)
	}
	return nil
}

func writeTriples(ctx context.Context, exec *tablequery.Execution, w io.Writer, opts tablequery.WriteOptions) error {
	triples, err := exec.ExecTriples(ctx)
	if err != nil {
		return WrapExitError(exitCodeFor(err), "query failed", err)
	}
	defer func() {
		_ = triples.Close() // Ignore close error, the results are written
	}()
	if err := tablequery.WriteTriples(w, triples, opts); err != nil {
		return WrapExitError(exitCodeFor(err), "query failed", err)
	}
	return nil
}

// resolveWriteOptions picks the output format and compression from flags,
// then the config, then the query type.
func resolveWriteOptions(opts *RootOptions, cfg *Config, first *model.Query) (tablequery.WriteOptions, error) {
	writeOpts := tablequery.NewWriteOptions()

	name := cfg.Output.Format
	if opts.Format != "" {
		name = opts.Format
	}
	switch {
	case name != "":
		format, err := tablequery.ParseOutputFormat(name)
		if err != nil {
			return writeOpts, err
		}
		writeOpts = writeOpts.WithFormat(format)
	case first.IsSelectType():
		writeOpts = writeOpts.WithFormat(tablequery.OutputFormatCSV)
	}

	isTriples := writeOpts.Format == tablequery.OutputFormatNTriples
	if first.IsSelectType() == isTriples {
		return writeOpts, fmt.Errorf("%s query results cannot be written as %s", first.Type, writeOpts.Format)
	}

	compress := cfg.Output.Compress
	if opts.Compress != "" {
		compress = opts.Compress
	}
	compression, err := tablequery.ParseCompressionType(compress)
	if err != nil {
		return writeOpts, err
	}
	if compression == tablequery.CompressionBZ2 {
		return writeOpts, errors.New("bzip2 output is not supported")
	}
	return writeOpts.WithCompression(compression), nil
}

// exitCodeFor tells misuse apart from failures while reading the input.
func exitCodeFor(err error) int {
	if errors.Is(err, tablequery.ErrUsage) {
		return ExitCommandError
	}
	return ExitFailure
}
