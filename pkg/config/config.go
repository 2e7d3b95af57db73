// Package config loads the slgreetd configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sunlightlinux/slgreet/pkg/ipc"
	"github.com/sunlightlinux/slgreet/pkg/logging"
	"github.com/sunlightlinux/slgreet/pkg/vt"
)

// DefaultPath is read when no file is named explicitly.
const DefaultPath = "/etc/slgreet/config.yaml"

// Mockable for tests.
var defaultPath = DefaultPath

// Config is the daemon configuration.
type Config struct {
	Terminal   Terminal `yaml:"terminal"`
	Greeter    Greeter  `yaml:"greeter"`
	SocketPath string   `yaml:"socket_path"`
	PIDFile    string   `yaml:"pid_file"`
	Console    string   `yaml:"console"`
	Log        Log      `yaml:"log"`

	// InsecureTrustGreeter starts user sessions without checking the
	// password, relying on the greeter alone. Logins are refused when it
	// is off and no authenticator is available.
	InsecureTrustGreeter bool `yaml:"insecure_trust_greeter"`
}

// Terminal selects the VT the greeter runs on.
type Terminal struct {
	// VT is a number, "next" or "current".
	VT VTSpec `yaml:"vt"`
}

// Greeter describes the greeter process.
type Greeter struct {
	Command Command           `yaml:"command"`
	User    string            `yaml:"user"`
	Env     map[string]string `yaml:"env"`
}

// Log configures the daemon's own logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// VTSpec is the unparsed terminal selection. Bare numbers are accepted as
// well as strings.
type VTSpec string

func (s *VTSpec) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: vt must be a number, \"next\" or \"current\"", n.Line)
	}
	*s = VTSpec(n.Value)
	return nil
}

// Parse parses the selection.
func (s VTSpec) Parse() (vt.Spec, error) {
	return vt.ParseSpec(string(s))
}

// Command is a command line, given either as one string, which is run by
// the shell, or as a list of words.
type Command []string

func (c *Command) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == "" {
			*c = nil
		} else {
			*c = Command{n.Value}
		}
		return nil
	case yaml.SequenceNode:
		var words []string
		if err := n.Decode(&words); err != nil {
			return err
		}
		*c = words
		return nil
	default:
		return fmt.Errorf("line %d: command must be a string or a list of strings", n.Line)
	}
}

// Error describes an unusable configuration.
type Error struct {
	File    string
	Field   string
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.File != "" && e.Field != "":
		return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	default:
		return e.Message
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Terminal: Terminal{VT: "1"},
		Greeter: Greeter{
			Command: Command{"slgreetctl greeter"},
			User:    "greeter",
		},
		SocketPath: ipc.DefaultSocketPath,
		PIDFile:    "/run/slgreetd.pid",
		Console:    vt.DefaultConsole,
		Log: Log{
			Level:  "info",
			Format: string(logging.FormatText),
		},
	}
}

// Load reads the file at path over the defaults and validates the result.
// An empty path means DefaultPath, which may be absent; a named file must
// exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, os.ErrNotExist):
		return cfg, cfg.Validate()
	default:
		return nil, &Error{File: path, Message: err.Error()}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, &Error{File: path, Message: err.Error()}
	}

	if err := cfg.Validate(); err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			cerr.File = path
		}
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration, returning an *Error for the first
// problem found.
func (c *Config) Validate() error {
	if _, err := c.Terminal.VT.Parse(); err != nil {
		return &Error{Field: "terminal.vt", Message: err.Error()}
	}
	if len(c.Greeter.Command) == 0 {
		return &Error{Field: "greeter.command", Message: "must not be empty"}
	}
	if c.Greeter.User == "" {
		return &Error{Field: "greeter.user", Message: "must not be empty"}
	}
	if c.SocketPath == "" {
		return &Error{Field: "socket_path", Message: "must not be empty"}
	}
	if c.Console == "" {
		return &Error{Field: "console", Message: "must not be empty"}
	}
	switch c.Log.Level {
	case "debug", "info", "notice", "warn", "warning", "error":
	default:
		return &Error{Field: "log.level", Message: fmt.Sprintf("must be one of [debug, info, notice, warn, error], got %q", c.Log.Level)}
	}
	switch logging.Format(c.Log.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return &Error{Field: "log.format", Message: fmt.Sprintf("must be one of [text, json], got %q", c.Log.Format)}
	}
	return nil
}
