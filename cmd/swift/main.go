// Command swift runs one cluster-coordination participant, either as the
// Manager (publishes job configs and schedules job records) or a Worker
// (mirrors configs/records and awaits assigned tasks). Grounded on the
// teacher's main.go: a urfave/cli App wired up with cmds-defined flags and
// a Run function per subcommand.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/lurenjiayibingding/Swift/pkg/cli/cmds"
	"github.com/lurenjiayibingding/Swift/pkg/cluster"
	"github.com/lurenjiayibingding/Swift/pkg/kv"
	"github.com/lurenjiayibingding/Swift/pkg/model"
	"github.com/lurenjiayibingding/Swift/pkg/signals"
)

func main() {
	cfg := &cmds.Config{}

	app := cmds.NewApp()
	app.Commands = []*cli.Command{
		{
			Name:  "manager",
			Usage: "run as the cluster Manager",
			Flags: cmds.Flags(cfg),
			Action: func(c *cli.Context) error {
				return run(c, cfg, model.RoleManager)
			},
		},
		{
			Name:  "agent",
			Usage: "run as a Worker",
			Flags: cmds.Flags(cfg),
			Action: func(c *cli.Context) error {
				return run(c, cfg, model.RoleWorker)
			},
		},
	}

	if err := app.Run(os.Args); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Fatal(err)
	}
}

func setupLogging(debug bool, logFile string) {
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if logFile == "" {
		return
	}
	logrus.SetOutput(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})
}

func run(c *cli.Context, cfg *cmds.Config, role model.Role) error {
	setupLogging(cfg.Debug, cfg.LogFile)

	ctx := signals.SetupSignalContext()

	store, err := kv.NewEtcdStore(ctx, kv.Config{
		Endpoints: cfg.Endpoints.Value(),
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	clu, err := cluster.New(cluster.Config{
		Name:    cfg.Cluster,
		Role:    role,
		JobsDir: cfg.Jobs,
		Store:   store,
		Address: cfg.Address,
	})
	if err != nil {
		return err
	}
	defer clu.Stop()

	return clu.Run(ctx)
}
