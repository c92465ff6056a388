package main

import (
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/carrodher/loadBalancer/internal/logger"
	"github.com/carrodher/loadBalancer/pkg/factory"
	"github.com/carrodher/loadBalancer/pkg/service"
)

func main() {
	defer func() {
		if p := recover(); p != nil {
			// Print stack for panic to log. Fatalf() will let program exit.
			logger.MainLog.Fatalf("panic: %v\n%s", p, string(debug.Stack()))
		}
	}()

	app := cli.NewApp()
	app.Name = "lbctrl"
	app.Usage = "packet-in load balancer controller"
	app.Action = action
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "Load configuration from `FILE`",
			Value: factory.LbDefaultConfigPath,
		},
		cli.StringFlag{
			Name:  "log-level, l",
			Usage: "Override the configured log level",
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.MainLog.Errorf("lbctrl run error: %v", err)
		os.Exit(1)
	}
}

func action(cliCtx *cli.Context) error {
	cfgPath, err := filepath.Abs(cliCtx.String("config"))
	if err != nil {
		return errors.Wrap(err, "config path")
	}
	cfg, err := factory.ReadConfig(cfgPath)
	if err != nil {
		return err
	}
	if lvl := cliCtx.String("log-level"); lvl != "" {
		if _, err = logrus.ParseLevel(lvl); err != nil {
			return errors.Errorf("invalid log level %q", lvl)
		}
		cfg.Logger.Enable = true
		cfg.Logger.Level = lvl
	}

	lb, err := service.NewLB(cfg)
	if err != nil {
		return err
	}
	return lb.Run()
}
