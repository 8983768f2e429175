package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"biotune/backend/libs/logging"
	"biotune/backend/services/bridge-service/internal/config"
)

type options struct {
	configPath string
	serialPort string
	noSerial   bool
	logLevel   string
	logFormat  string
	help       bool
}

func newFlagSet(opts *options) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("bridge-service", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (default: $"+"CONFIG_FILE)")
	flagSet.StringVar(&opts.serialPort, "serial-port", "", "serial device, overrides serial.port")
	flagSet.BoolVar(&opts.noSerial, "no-serial", false, "run without a device; sessions start but nothing is ingested")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (default: $LOG_LEVEL or info)")
	flagSet.StringVar(&opts.logFormat, "log-format", "", "json or console (default: $LOG_FORMAT or json)")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")
	return flagSet
}

// parseFlags writes any error and the usage to stderr; the caller only
// decides the exit code.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	flagSet := newFlagSet(&opts)
	flagSet.SetOutput(stderr)

	err := flagSet.Parse(args)
	if err == nil && flagSet.NArg() > 0 {
		err = fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	if err != nil {
		fmt.Fprintln(stderr, "bridge-service:", err)
		fmt.Fprintln(stderr, "Usage of bridge-service:")
		flagSet.PrintDefaults()
		return opts, err
	}

	if opts.help {
		fmt.Fprintln(stderr, "bridge-service: serial sensor to remote store bridge")
		flagSet.PrintDefaults()
	}
	return opts, nil
}

func (o options) configOverrides() []func(*config.Config) {
	var overrides []func(*config.Config)
	if o.serialPort != "" {
		port := o.serialPort
		overrides = append(overrides, func(c *config.Config) { c.Serial.Port = port })
	}
	if o.noSerial {
		overrides = append(overrides, func(c *config.Config) { c.Serial.Disabled = true })
	}
	return overrides
}

func (o options) loggingOptions() logging.Options {
	opts := logging.OptionsFromEnv("bridge-service")
	if o.logLevel != "" {
		opts.Level = o.logLevel
	}
	if o.logFormat != "" {
		opts.Format = o.logFormat
	}
	return opts
}
