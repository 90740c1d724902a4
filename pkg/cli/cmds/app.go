// Package cmds defines the flags shared by the agent and manager
// subcommands, the way the teacher's pkg/cli/cmds centralizes its Server/
// Agent flag structs for pkg/cli/server and pkg/cli/agent to consume.
package cmds

import (
	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

// Config collects every flag value shared by both subcommands.
type Config struct {
	Cluster string
	Jobs    string
	Address string
	Debug   bool
	LogFile string

	Endpoints cli.StringSlice
	Username  string
	Password  string
}

// NewApp returns the top-level urfave/cli App, mirroring the teacher's
// cmds.NewApp (name, usage, version set centrally, commands attached by the
// caller).
func NewApp() *cli.App {
	app := cli.NewApp()
	app.Name = "swift"
	app.Usage = "distributed cluster membership and job scheduling runtime"
	app.Version = version
	return app
}

// Flags returns the flag set shared by both the agent (Worker) and manager
// (Manager) commands, binding into cfg.
func Flags(cfg *Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "cluster",
			Usage:       "cluster namespace this process participates in",
			Value:       "default",
			EnvVars:     []string{"SWIFT_CLUSTER"},
			Destination: &cfg.Cluster,
		},
		&cli.StringFlag{
			Name:        "jobs-dir",
			Usage:       "directory of job packages (*.zip); required for the manager command",
			Value:       "/var/lib/swift/jobs",
			EnvVars:     []string{"SWIFT_JOBS_DIR"},
			Destination: &cfg.Jobs,
		},
		&cli.StringFlag{
			Name:        "address",
			Usage:       "address advertised in the service registry; defaults to the selected local id",
			EnvVars:     []string{"SWIFT_ADDRESS"},
			Destination: &cfg.Address,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging",
			EnvVars:     []string{"SWIFT_DEBUG"},
			Destination: &cfg.Debug,
		},
		&cli.StringFlag{
			Name:        "log-file",
			Usage:       "rotate logs to this file instead of stderr (lumberjack-managed)",
			EnvVars:     []string{"SWIFT_LOG_FILE"},
			Destination: &cfg.LogFile,
		},
		&cli.StringSliceFlag{
			Name:        "endpoint",
			Usage:       "KV backend endpoint (may be repeated)",
			EnvVars:     []string{"SWIFT_ENDPOINTS"},
			Value:       cli.NewStringSlice("http://127.0.0.1:2379"),
			Destination: &cfg.Endpoints,
		},
		&cli.StringFlag{
			Name:        "kv-username",
			Usage:       "KV backend username",
			EnvVars:     []string{"SWIFT_KV_USERNAME"},
			Destination: &cfg.Username,
		},
		&cli.StringFlag{
			Name:        "kv-password",
			Usage:       "KV backend password",
			EnvVars:     []string{"SWIFT_KV_PASSWORD"},
			Destination: &cfg.Password,
		},
	}
}
