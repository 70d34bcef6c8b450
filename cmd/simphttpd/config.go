package main

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/littlefish12345/simphttpd"
)

func configFlagSet() *pflag.FlagSet {
	defaults := simphttpd.DefaultConfig()
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.String("host", defaults.Host, "IPv4 address to listen on, all interfaces when empty")
	flags.IntP("port", "p", defaults.Port, "first port to try")
	flags.Int("port-retries", defaults.PortRetries, "how many following ports to try when one fails")
	flags.StringP("root", "r", defaults.Root, "document root `dir`")
	flags.String("default-document", defaults.DefaultDocument, "file served for URLs ending in /")
	flags.Int("max-clients", defaults.MaxClients, "connections served at once")
	flags.Int("buffer-size", defaults.BufferSize, "per-request buffer size in bytes")
	flags.Int("max-params", defaults.MaxParams, "CGI parameters decoded per request")
	flags.String("interpreter", defaults.Interpreter, "program that runs external CGI scripts")
	flags.StringSlice("cgi-ext", defaults.CGIExtensions, "extensions routed to CGI")
	flags.Duration("read-timeout", defaults.ReadTimeout, "request read deadline")
	flags.Duration("write-timeout", defaults.WriteTimeout, "response write deadline")
	flags.Duration("process-timeout", defaults.ProcessTimeout, "external CGI process deadline")
	flags.Float64("accept-rate", defaults.AcceptRate, "accepted connections per second, 0 for unlimited")
	flags.BoolP("quiet", "q", defaults.DisableConsoleLog, "disable the access log")
	return flags
}

func changed[T any](flags *pflag.FlagSet, name string, get func(string) (T, error), dst *T) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := get(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// getFlagConfig picks up only the flags the user actually set.
func getFlagConfig(flags *pflag.FlagSet) (simphttpd.Config, error) {
	var conf simphttpd.Config
	err := errors.Join(
		changed(flags, "host", flags.GetString, &conf.Host),
		changed(flags, "port", flags.GetInt, &conf.Port),
		changed(flags, "port-retries", flags.GetInt, &conf.PortRetries),
		changed(flags, "root", flags.GetString, &conf.Root),
		changed(flags, "default-document", flags.GetString, &conf.DefaultDocument),
		changed(flags, "max-clients", flags.GetInt, &conf.MaxClients),
		changed(flags, "buffer-size", flags.GetInt, &conf.BufferSize),
		changed(flags, "max-params", flags.GetInt, &conf.MaxParams),
		changed(flags, "interpreter", flags.GetString, &conf.Interpreter),
		changed(flags, "cgi-ext", flags.GetStringSlice, &conf.CGIExtensions),
		changed(flags, "read-timeout", flags.GetDuration, &conf.ReadTimeout),
		changed(flags, "write-timeout", flags.GetDuration, &conf.WriteTimeout),
		changed(flags, "process-timeout", flags.GetDuration, &conf.ProcessTimeout),
		changed(flags, "accept-rate", flags.GetFloat64, &conf.AcceptRate),
		changed(flags, "quiet", flags.GetBool, &conf.DisableConsoleLog),
	)
	return conf, err
}

// consolidateConfig layers defaults, the config file, the environment and flags, in that order.
func consolidateConfig(flags *pflag.FlagSet, configFile string) (simphttpd.Config, error) {
	fileConf, err := simphttpd.LoadConfigFile(configFile)
	if err != nil {
		return simphttpd.Config{}, err
	}
	envConf, err := simphttpd.ReadEnvConfig()
	if err != nil {
		return simphttpd.Config{}, err
	}
	flagConf, err := getFlagConfig(flags)
	if err != nil {
		return simphttpd.Config{}, err
	}
	conf := simphttpd.DefaultConfig().Apply(fileConf).Apply(envConf).Apply(flagConf)
	return conf, conf.Validate()
}
