package log

import (
	"fmt"

	"github.com/spf13/pflag"
)

type Config struct {
	// Level is the minimum record level to log. Either 'debug', 'info', 'warn'
	// or 'error'.
	Level string `json:"level" yaml:"level"`

	// Subsystems enables debug logging on log records whose 'subsystem'
	// matches one of the given values (overrides `Level`).
	Subsystems []string `json:"subsystems" yaml:"subsystems"`

	// Encoding is the log record format. Either 'json' or 'console'.
	Encoding string `json:"encoding" yaml:"encoding"`

	// Output is where to write logs. Either 'stderr', 'stdout' or a file
	// path.
	Output string `json:"output" yaml:"output"`
}

func (c *Config) Validate() error {
	if c.Level == "" {
		return fmt.Errorf("missing level")
	}
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	if c.Encoding != "json" && c.Encoding != "console" {
		return fmt.Errorf("unsupported encoding: %s", c.Encoding)
	}
	if c.Output == "" {
		return fmt.Errorf("missing output")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.Level,
		"log.level",
		c.Level,
		`
Minimum log level to output.

The available levels are 'debug', 'info', 'warn' and 'error'.`,
	)
	fs.StringSliceVar(
		&c.Subsystems,
		"log.subsystems",
		c.Subsystems,
		`
Each log has a 'subsystem' field where the log occured.

'--log.subsystems' enables all log levels for those given subsystems. This
can be useful to debug a particular subsystem without having to enable all
debug logs.

Such as you can enable 'gossip' logs with '--log.subsystems gossip'.`,
	)
	fs.StringVar(
		&c.Encoding,
		"log.encoding",
		c.Encoding,
		`
Log record format.

Either 'json' for structured logs or 'console' for human readable logs.`,
	)
	fs.StringVar(
		&c.Output,
		"log.output",
		c.Output,
		`
Where to write logs.

Either 'stderr', 'stdout' or a file path.`,
	)
}
