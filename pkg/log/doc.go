/*
Package log provides structured logging for ecsdeploy using zerolog.

A single global Logger is configured once by the CLI through Init. Output is
human-readable console text by default and JSON when JSONOutput is set, which
suits CI systems that ingest structured logs.

# Usage

	log.Init(log.Config{Level: log.InfoLevel})

	logger := log.WithComponent("revision")
	logger = log.WithService(logger, "web")
	logger.Info().Str("image", ref).Msg("Updated container image")

Components capture their child logger at construction time. Mutating actions
that are skipped in dry-run mode are reported through DryRun, which tags the
event with dry_run=true at warn level so previews stand out in the output.
*/
package log
