package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// StatusCommand — show visitor identity, consent state, spool depth, and
// configuration summary.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// TrackCommand — record an event through the engine (headless host).
type TrackCommand struct {
	Type       string `long:"type" description:"Event type (required)"`
	Data       string `long:"data" description:"Event data as inline JSON object"`
	URL        string `long:"url" description:"Page URL context" default:"app://tracker/cli"`
	Referrer   string `long:"referrer" description:"Referrer URL context"`
	Conversion bool   `long:"conversion" description:"Record as a conversion (immediate flush semantics)"`

	globals *GlobalFlags
	version string
}

// ConsentCommand — record an explicit consent decision.
type ConsentCommand struct {
	Grant bool `long:"grant" description:"Grant collection consent"`
	Deny  bool `long:"deny" description:"Deny collection consent"`

	globals *GlobalFlags
	version string
}

// FlushCommand — deliver spooled batches to the configured endpoint.
type FlushCommand struct {
	Limit int `long:"limit" description:"Maximum batches to deliver (0 = all)" default:"0"`

	globals *GlobalFlags
	version string
}

// PurgeCommand — delete ALL tracker data with safety confirmation.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	version string
}
