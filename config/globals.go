package config

// GlobalFlags contains common flags used across commands
type GlobalFlags struct {
	// Connection overrides
	APIBaseURL string
	AuthToken  string

	ConfigPath string
	EnvFile    string
	Format     string
	Verbose    bool
	NoColor    bool

	// Command-specific configurations
	Mirror MirrorConfig
}

// MirrorConfig holds the selection and mode flags of the sync and list
// commands
type MirrorConfig struct {
	IDs     []string
	Authors []string
	All     bool

	// For sync command
	Force bool
	Watch bool
}

// Global is the shared instance of GlobalFlags
var Global = GlobalFlags{}
