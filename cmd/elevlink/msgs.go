package elevlink

// Command descriptions
const (
	MsgRootShort = "Create symlinks through an elevated worker"
	MsgRootLong  = `elevlink deploys symbolic links into directories the current user cannot
write to. The links are created by a separate elevated worker process that
elevlink starts on demand and stops as soon as every requested operation has
been confirmed.`

	MsgDeployShort   = "Apply a link manifest"
	MsgDeployLong    = "Deploy reads a YAML manifest and links every entry that is not already in place, then removes the entries listed under remove."
	MsgDeployExample = `  elevlink deploy mods.yaml
  elevlink -v deploy --metrics-file /var/lib/node_exporter/elevlink.prom mods.yaml`

	MsgPurgeShort      = "Remove every link that points into an install directory"
	MsgCheckShort      = "Check whether a path links to a source"
	MsgSupportedShort  = "Check whether elevated linking applies to a platform and game"
	MsgConfigShort     = "Print the effective configuration"
	MsgWorkerShort     = "Run the elevated worker (started by elevlink itself)"
	MsgCompletionShort = "Generate shell completion script"
	MsgVersionShort    = "Print version information"
)

// Flags
const (
	MsgFlagVerbose     = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagConfig      = "Configuration file (TOML)"
	MsgFlagMetricsFile = "Write session metrics to this file in the Prometheus text format"
	MsgFlagFormat      = "Output format: auto, term, text or json"
	MsgFlagPlatform    = "Platform to check (GOOS value, defaults to the running one)"
	MsgFlagGame        = "Game id to check"
)

// Report titles
const (
	MsgDeployed       = "Deployment complete"
	MsgPurged         = "Purge complete"
	MsgLinked         = "Link is in place"
	MsgNotLinked      = "Not linked"
	MsgSupported      = "Elevated linking is supported"
	MsgNotSupported   = "Elevated linking does not apply"
	MsgAbandonedTitle = "Operations abandoned by the worker"
)
