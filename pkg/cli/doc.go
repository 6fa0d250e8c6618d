/*
Package cli provides command-line interface utilities for the ganymede
command: typed command errors, output helpers, and signal handling.

Output:

Commands that support machine-readable output parse the --format flag and
write JSON through WriteJSON:

	format, err := cli.ParseFormat(flagValue)
	if err != nil {
		return err
	}
	if format == cli.FormatJSON {
		return cli.WriteJSON(os.Stdout, result)
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli
