package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// Version is the node version reported by --version.
const Version = "0.1.0"

// Flags holds parsed command-line flags.
type Flags struct {
	Help    bool
	Version bool
	Config  string // Config file path.

	// Values holds the explicitly set node flags keyed by config key, so
	// unset flags never override file or environment values.
	Values map[string]string

	Args []string // Remaining positional arguments.
}

type flagKind int

const (
	stringFlag flagKind = iota
	intFlag
	boolFlag
)

// nodeFlag binds a command-line flag to a config key.
type nodeFlag struct {
	name  string
	key   string
	kind  flagKind
	group string
	usage string
}

var nodeFlags = []nodeFlag{
	{"network", "network", stringFlag, "Core", "Network type: mainnet (default) or testnet"},
	{"datadir", "datadir", stringFlag, "Core", "Data directory (default: ~/.launchpad)"},
	{"genesis", "genesis", stringFlag, "Core", "Genesis JSON file (default: built-in genesis)"},
	{"storage", "storage.engine", stringFlag, "Core", "Ledger storage engine: badger (default) or memory"},
	{"storage-sync", "storage.sync", boolFlag, "Core", "Fsync every ledger commit"},

	{"rpc", "rpc.enabled", boolFlag, "RPC", "Enable RPC server (default: true)"},
	{"rpc-addr", "rpc.addr", stringFlag, "RPC", "RPC listen address (default: 127.0.0.1)"},
	{"rpc-port", "rpc.port", intFlag, "RPC", "RPC port (mainnet: 8745, testnet: 8845)"},
	{"rpc-allowed", "rpc.allowed", stringFlag, "RPC", "Allowed IPs or CIDRs for RPC (comma-separated)"},
	{"rpc-cors", "rpc.cors", stringFlag, "RPC", "Allowed CORS origins for RPC (comma-separated)"},
	{"metrics", "metrics.enabled", boolFlag, "RPC", "Serve Prometheus metrics on the RPC listener (default: true)"},

	{"sink", "sink.enabled", boolFlag, "Event Mirror", "Mirror creation, purchase and withdrawal events to Postgres"},
	{"sink-dsn", "sink.dsn", stringFlag, "Event Mirror", "Postgres connection string"},

	{"fhe-keyfile", "fhe.keyfile", stringFlag, "Coprocessor", "Network key file (default: <datadir>/<network>/coprocessor.key)"},

	{"log-level", "log.level", stringFlag, "Logging", "Log level: debug, info, warn, error (default: info)"},
	{"log-file", "log.file", stringFlag, "Logging", "Log file path (default: stdout)"},
	{"log-json", "log.json", boolFlag, "Logging", "Output logs as JSON"},
}

// ParseArgs parses command-line arguments (without the program name).
func ParseArgs(args []string) (*Flags, error) {
	f := &Flags{Values: make(map[string]string)}
	fs := flag.NewFlagSet("launchpadd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.BoolVar(&f.Help, "help", false, "")
	fs.BoolVar(&f.Help, "h", false, "")
	fs.BoolVar(&f.Version, "version", false, "")
	fs.BoolVar(&f.Version, "v", false, "")
	fs.StringVar(&f.Config, "config", "", "")
	fs.StringVar(&f.Config, "c", "", "")
	testnet := fs.Bool("testnet", false, "")

	keys := make(map[string]string, len(nodeFlags))
	for _, nf := range nodeFlags {
		keys[nf.name] = nf.key
		switch nf.kind {
		case boolFlag:
			fs.Bool(nf.name, false, nf.usage)
		case intFlag:
			fs.Int(nf.name, 0, nf.usage)
		default:
			fs.String(nf.name, "", nf.usage)
		}
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) {
		if key, ok := keys[fl.Name]; ok {
			f.Values[key] = fl.Value.String()
		}
	})
	if *testnet {
		f.Values["network"] = string(Testnet)
	}
	f.Args = fs.Args()

	// A positional argument stops flag parsing, so any flag after it
	// would otherwise be dropped without notice.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}
	return f, nil
}

// ParseFlags parses os.Args, exiting on error.
func ParseFlags() *Flags {
	f, err := ParseArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage()
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return f
}

// ApplyFlags applies explicitly set flags to cfg.
func ApplyFlags(cfg *Config, f *Flags) error {
	for key, value := range f.Values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("flag for %s: %w", key, err)
		}
	}
	return nil
}

func printUsage() {
	var b strings.Builder
	b.WriteString(`Launchpad Node - confidential token launchpad on a sequential ledger

Usage:
  launchpadd [options]

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --testnet       Shorthand for --network=testnet
  --config, -c    Config file path (default: <datadir>/launchpad.conf)
`)
	group := "Core"
	for _, nf := range nodeFlags {
		if nf.group != group {
			group = nf.group
			fmt.Fprintf(&b, "\n%s Options:\n", group)
		}
		fmt.Fprintf(&b, "  --%-13s %s\n", nf.name, nf.usage)
	}
	b.WriteString(`
Environment:
  Every config key can be set as LAUNCHPAD_<KEY>, with dots replaced by
  underscores (LAUNCHPAD_RPC_PORT, LAUNCHPAD_SINK_DSN). A .env file in the
  working directory or the data directory is loaded first.

Precedence: defaults < config file < environment < flags.
`)
	fmt.Print(b.String())
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Environment (.env files, then LAUNCHPAD_* variables)
// 5. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("launchpadd version " + Version)
		os.Exit(0)
	}

	cfg, err := Resolve(flags, ".env")
	if err != nil {
		return nil, nil, err
	}
	return cfg, flags, nil
}

// Resolve builds the final config from parsed flags. dotenv is an extra
// .env file loaded before the data directory's own .env.
func Resolve(flags *Flags, dotenv string) (*Config, error) {
	if err := LoadDotEnv(dotenv); err != nil {
		return nil, err
	}
	env := EnvValues(os.Environ())

	// Network and data dir decide where the rest of the config lives.
	network := env["network"]
	if v, ok := flags.Values["network"]; ok {
		network = v
	}
	cfg := Default(NetworkType(strings.ToLower(network)))
	if d := env["datadir"]; d != "" {
		cfg.DataDir = d
	}
	if d := flags.Values["datadir"]; d != "" {
		cfg.DataDir = d
	}
	if err := LoadDotEnv(cfg.EnvFile()); err != nil {
		return nil, err
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	if err := ApplyFlags(cfg, flags); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.LedgerDir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
