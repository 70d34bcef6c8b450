package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/littlefish12345/simphttpd"
)

const banner = `     _                 _     _   _            _
 ___(_)_ __ ___  _ __ | |__ | |_| |_ _ __   __| |
/ __| | '_ ' _ \| '_ \| '_ \| __| __| '_ \ / _' |
\__ \ | | | | | | |_) | | | | |_| |_| |_) | (_| |
|___/_|_| |_| |_| .__/|_| |_|\__|\__| .__/ \__,_|
                |_|                 |_|`

var bannerColor = color.New(color.FgCyan)

type rootCommand struct {
	logger     *logrus.Logger
	cmd        *cobra.Command
	configFile string
	logLevel   string
	logFormat  string
	noColor    bool
}

func newRootCommand(logger *logrus.Logger) *rootCommand {
	c := &rootCommand{logger: logger}
	c.cmd = &cobra.Command{
		Use:               "simphttpd",
		Short:             "a tiny HTTP/1.x static file and CGI server",
		Long:              bannerColor.Sprintf("\n%s", banner),
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
		RunE:              c.run,
	}
	c.cmd.Flags().SortFlags = false
	c.cmd.Flags().AddFlagSet(configFlagSet())
	c.cmd.PersistentFlags().StringVarP(&c.configFile, "config", "c", os.Getenv("SIMPHTTPD_CONFIG"), "YAML config `file`")
	c.cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	c.cmd.PersistentFlags().StringVar(&c.logFormat, "log-format", "text", "log format: text or json")
	c.cmd.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable colored output")
	return c
}

func (c *rootCommand) persistentPreRunE(cmd *cobra.Command, args []string) error {
	return setupLogger(c.logger, c.logLevel, c.logFormat, c.noColor)
}

func setupLogger(logger *logrus.Logger, level, format string, noColor bool) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)

	stderrTTY := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	switch format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   stderrTTY && !noColor,
			DisableColors: noColor,
			FullTimestamp: true,
		})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	if noColor {
		color.NoColor = true
		logger.SetOutput(colorable.NewNonColorable(os.Stderr))
	} else {
		logger.SetOutput(colorable.NewColorableStderr())
	}
	return nil
}

func (c *rootCommand) run(cmd *cobra.Command, args []string) error {
	conf, err := consolidateConfig(cmd.Flags(), c.configFile)
	if err != nil {
		return err
	}
	app, err := simphttpd.New(conf)
	if err != nil {
		return err
	}
	app.SetLogger(c.logger)
	registerHandlers(app)

	fmt.Fprintln(cmd.ErrOrStderr(), bannerColor.Sprint(banner))
	return app.Run(cmd.Context())
}
