// Package config reads command-line flags. Every flag defaults from an
// environment variable, and a .env file in the working directory is loaded
// into the environment first.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server settings.
type Config struct {
	DBPath       string
	Addr         string
	AdminUser    string
	LogPath      string
	ReportsDir   string
	CORSOrigins  []string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	MailFrom     string
	CleanupDelay time.Duration
}

// SMTPEnabled reports whether a relay is configured.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

const usage = `Usage: najem [flags]

Flags:
  -d, -db <path>             SQLite database path (default: najem.sqlite3)
  -a, -addr <host:port>      listen address (default: :8080)
  -u, -user <name>           administrator username on first run (default: Admin)
  -l, -log <path>            log file path (default: no file, stdout/stderr only)
  -reports-dir <path>        directory for generated PDFs and archives
                             (default: <tmp>/najem-reports)
  -cors-origins <list>       comma-separated dashboard origins allowed by CORS
  -smtp-host <host>          SMTP relay host (default: none, mail is logged)
  -smtp-port <port>          SMTP relay port (default: 587)
  -smtp-user <name>          SMTP username
  -smtp-password <secret>    SMTP password
  -mail-from <address>       sender address for report emails
  -cleanup-delay <duration>  delay before served archives are removed (default: 30s)
  -h, -help                  show this help and exit

Every flag can also be set through the environment, e.g. NAJEM_DB or
NAJEM_SMTP_HOST. A .env file in the working directory is loaded first.
`

// envName maps a flag name to its environment variable.
func envName(flagName string) string {
	return "NAJEM_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func envString(name, def string) string {
	if v, ok := os.LookupEnv(envName(name)); ok {
		return v
	}
	return def
}

// Load reads .env (if present) and parses args.
func Load(args []string, stdout io.Writer) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return Parse(args, stdout)
}

// Parse parses args with environment defaults. It returns flag.ErrHelp when
// -h is given.
func Parse(args []string, stdout io.Writer) (*Config, error) {
	flags := flag.NewFlagSet("najem", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.Usage = func() { fmt.Fprint(stdout, usage) }

	cfg := &Config{}

	dbDefault := envString("db", "najem.sqlite3")
	flags.StringVar(&cfg.DBPath, "db", dbDefault, "")
	flags.StringVar(&cfg.DBPath, "d", dbDefault, "")

	addrDefault := envString("addr", ":8080")
	flags.StringVar(&cfg.Addr, "addr", addrDefault, "")
	flags.StringVar(&cfg.Addr, "a", addrDefault, "")

	userDefault := envString("user", "Admin")
	flags.StringVar(&cfg.AdminUser, "user", userDefault, "")
	flags.StringVar(&cfg.AdminUser, "u", userDefault, "")

	logDefault := envString("log", "")
	flags.StringVar(&cfg.LogPath, "log", logDefault, "")
	flags.StringVar(&cfg.LogPath, "l", logDefault, "")

	flags.StringVar(&cfg.ReportsDir, "reports-dir", envString("reports-dir", filepath.Join(os.TempDir(), "najem-reports")), "")

	var origins string
	flags.StringVar(&origins, "cors-origins", envString("cors-origins", ""), "")

	flags.StringVar(&cfg.SMTPHost, "smtp-host", envString("smtp-host", ""), "")
	flags.StringVar(&cfg.SMTPUser, "smtp-user", envString("smtp-user", ""), "")
	flags.StringVar(&cfg.SMTPPassword, "smtp-password", envString("smtp-password", ""), "")
	flags.StringVar(&cfg.MailFrom, "mail-from", envString("mail-from", ""), "")

	port, err := strconv.Atoi(envString("smtp-port", "587"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", envName("smtp-port"), err)
	}
	flags.IntVar(&cfg.SMTPPort, "smtp-port", port, "")

	delay, err := time.ParseDuration(envString("cleanup-delay", "30s"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", envName("cleanup-delay"), err)
	}
	flags.DurationVar(&cfg.CleanupDelay, "cleanup-delay", delay, "")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flags.Usage()
		}
		return nil, err
	}
	if flags.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}

	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	if cfg.SMTPEnabled() && cfg.MailFrom == "" {
		return nil, errors.New("-mail-from is required when -smtp-host is set")
	}

	return cfg, nil
}
