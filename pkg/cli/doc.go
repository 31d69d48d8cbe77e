/*
Package cli provides command-line interface utilities for the lineage command.

Output Formatting:

Command results can be printed as text, JSON or CSV:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

The CSV formatter accepts [][]string or any value implementing CSVRows.

Errors:

ConfigError reports an invalid flag or setting and CommandError wraps the
failure of a subcommand, so callers can tell usage mistakes from runtime
failures with errors.As.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli
