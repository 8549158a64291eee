package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// File configures loading a YAML config file.
type File struct {
	// Path is the path of the YAML config file. If empty no file is loaded.
	Path string

	// ExpandEnv enables expanding environment variables in the config file.
	ExpandEnv bool
}

func (f *File) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&f.Path,
		"config.path",
		"",
		`
YAML config file path.

Values set in the config file override flags.`,
	)
	fs.BoolVar(
		&f.ExpandEnv,
		"config.expand-env",
		false,
		`
Whether to expand environment variables in the config file.

This will replace references to ${VAR} or $VAR with the corresponding
environment variable. The replacement is case-sensitive.

References to undefined variables will be replaced with an empty string. A
default value can be given using form ${VAR:default}.`,
	)
}

// Load loads the config file into conf. Does nothing if no path is
// configured.
func (f *File) Load(conf interface{}) error {
	if f.Path == "" {
		return nil
	}
	return Load(conf, f.Path, f.ExpandEnv)
}

// Load parses the YAML file at path into conf. Unknown fields are rejected.
func Load(conf interface{}, path string, expandEnv bool) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %s: %w", path, err)
	}

	if expandEnv {
		buf = []byte(os.Expand(string(buf), expandVar))
	}

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)

	if err := dec.Decode(conf); err != nil {
		return fmt.Errorf("parse config: %s: %w", path, err)
	}

	return nil
}

// expandVar returns the value of the environment variable s. s may include a
// default in the form 'VAR:default'.
func expandVar(s string) string {
	key, defaultValue, hasDefault := strings.Cut(s, ":")
	v, ok := os.LookupEnv(key)
	if !ok && hasDefault {
		return defaultValue
	}
	return v
}
