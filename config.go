package simphttpd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mstoykov/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is everything the server needs; zero fields mean "not set" when merging.
type Config struct {
	Host              string        `yaml:"host" json:"host" envconfig:"HOST"`
	Port              int           `yaml:"port" json:"port" envconfig:"PORT"`
	PortRetries       int           `yaml:"portRetries" json:"portRetries" envconfig:"PORT_RETRIES"`
	Root              string        `yaml:"root" json:"root" envconfig:"ROOT"`
	DefaultDocument   string        `yaml:"defaultDocument" json:"defaultDocument" envconfig:"DEFAULT_DOCUMENT"`
	MaxClients        int           `yaml:"maxClients" json:"maxClients" envconfig:"MAX_CLIENTS"`
	BufferSize        int           `yaml:"bufferSize" json:"bufferSize" envconfig:"BUFFER_SIZE"`
	MaxParams         int           `yaml:"maxParams" json:"maxParams" envconfig:"MAX_PARAMS"`
	Interpreter       string        `yaml:"interpreter" json:"interpreter" envconfig:"INTERPRETER"`
	CGIExtensions     []string      `yaml:"cgiExtensions" json:"cgiExtensions" envconfig:"CGI_EXTENSIONS"`
	ReadTimeout       time.Duration `yaml:"readTimeout" json:"readTimeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"writeTimeout" json:"writeTimeout" envconfig:"WRITE_TIMEOUT"`
	ProcessTimeout    time.Duration `yaml:"processTimeout" json:"processTimeout" envconfig:"PROCESS_TIMEOUT"`
	AcceptRate        float64       `yaml:"acceptRate" json:"acceptRate" envconfig:"ACCEPT_RATE"`
	DisableConsoleLog bool          `yaml:"disableConsoleLog" json:"disableConsoleLog" envconfig:"DISABLE_CONSOLE_LOG"`
}

const envPrefix = "SIMPHTTPD"

func DefaultConfig() Config { // built-in defaults
	return Config{
		Port:            8080,
		PortRetries:     10,
		Root:            "./htdocs",
		DefaultDocument: "index.html",
		MaxClients:      10,
		BufferSize:      4096,
		MaxParams:       16,
		Interpreter:     "python3",
		CGIExtensions:   []string{".py", ".cgi"},
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ProcessTimeout:  60 * time.Second,
	}
}

// Apply returns c overridden by every non-zero field of cfg.
func (c Config) Apply(cfg Config) Config {
	if cfg.Host != "" {
		c.Host = cfg.Host
	}
	if cfg.Port != 0 {
		c.Port = cfg.Port
	}
	if cfg.PortRetries != 0 {
		c.PortRetries = cfg.PortRetries
	}
	if cfg.Root != "" {
		c.Root = cfg.Root
	}
	if cfg.DefaultDocument != "" {
		c.DefaultDocument = cfg.DefaultDocument
	}
	if cfg.MaxClients != 0 {
		c.MaxClients = cfg.MaxClients
	}
	if cfg.BufferSize != 0 {
		c.BufferSize = cfg.BufferSize
	}
	if cfg.MaxParams != 0 {
		c.MaxParams = cfg.MaxParams
	}
	if cfg.Interpreter != "" {
		c.Interpreter = cfg.Interpreter
	}
	if len(cfg.CGIExtensions) != 0 {
		c.CGIExtensions = append([]string(nil), cfg.CGIExtensions...)
	}
	if cfg.ReadTimeout != 0 {
		c.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout != 0 {
		c.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.ProcessTimeout != 0 {
		c.ProcessTimeout = cfg.ProcessTimeout
	}
	if cfg.AcceptRate != 0 {
		c.AcceptRate = cfg.AcceptRate
	}
	if cfg.DisableConsoleLog {
		c.DisableConsoleLog = true
	}
	return c
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	var problem string
	switch {
	case c.Port < 0 || c.Port > 65535:
		problem = fmt.Sprintf("port %d out of range", c.Port)
	case c.PortRetries < 0:
		problem = "portRetries must not be negative"
	case c.Root == "":
		problem = "root must not be empty"
	case c.DefaultDocument == "":
		problem = "defaultDocument must not be empty"
	case c.MaxClients <= 0:
		problem = "maxClients must be positive"
	case c.BufferSize < minBufferSize:
		problem = fmt.Sprintf("bufferSize must be at least %d", minBufferSize)
	case c.MaxParams <= 0:
		problem = "maxParams must be positive"
	case c.Interpreter == "":
		problem = "interpreter must not be empty"
	case c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ProcessTimeout < 0:
		problem = "timeouts must not be negative"
	case c.AcceptRate < 0:
		problem = "acceptRate must not be negative"
	default:
		return nil
	}
	return newError(ConfigError, errors.New(problem))
}

func ReadEnvConfig() (conf Config, err error) { // reads SIMPHTTPD_* variables
	err = envconfig.Process(envPrefix, &conf)
	if err != nil {
		return Config{}, newError(ConfigError, err)
	}
	return conf, nil
}

// LoadConfigFile reads a YAML config file. A missing file is not an error.
func LoadConfigFile(path string) (Config, error) {
	var conf Config
	if path == "" {
		return conf, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return conf, nil
	}
	if err != nil {
		return conf, newError(ConfigError, err)
	}
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return Config{}, newError(ConfigError, fmt.Errorf("%s: %w", path, err))
	}
	return conf, nil
}
