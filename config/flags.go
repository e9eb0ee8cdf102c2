package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// counter counts occurrences of a boolean flag (-v -v -v).
type counter int

func (c *counter) String() string { return strconv.Itoa(int(*c)) }

func (c *counter) IsBoolFlag() bool { return true }

func (c *counter) Set(v string) error {
	on, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	if on {
		*c++
	}
	return nil
}

// ParseFlags parses command-line flags into a Config. It exits non-zero on
// parse failures or invalid addresses.
func ParseFlags(args []string) *Config {
	cfg := Default()
	fs := flag.NewFlagSet("peridotd", flag.ContinueOnError)

	var seeds stringList
	var verbosity counter

	fs.StringVar(&cfg.P2PAddr, "p2p", cfg.P2PAddr, "IP address and port of the P2P server")
	fs.StringVar(&cfg.APIAddr, "api", cfg.APIAddr, "IP address and port of the API server")
	fs.Var(&seeds, "c", "Peer multiaddr to connect to at start (repeatable)")
	fs.Var(&seeds, "connect", "Peer multiaddr to connect to at start (repeatable)")
	fs.IntVar(&cfg.Workers, "p2p-workers", cfg.Workers, "Number of worker threads for the P2P server")
	fs.Var(&verbosity, "v", "Increase logging verbosity (repeatable)")
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "Data directory path")
	fs.StringVar(&cfg.KeyDir, "keys", cfg.KeyDir, "Directory holding the launch key files")
	fs.BoolVar(&cfg.NoDiscover, "nodiscover", false, "Disable peer discovery")
	fs.BoolVar(&cfg.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	cfg.Seeds = seeds
	cfg.LogLevel = verbosityLevel(int(verbosity))

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "peridotd:", err)
		os.Exit(1)
	}
	return cfg
}

// verbosityLevel maps -v occurrences to a zerolog level name.
func verbosityLevel(n int) string {
	switch {
	case n <= 0:
		return "warn"
	case n == 1:
		return "info"
	default:
		return "debug"
	}
}
