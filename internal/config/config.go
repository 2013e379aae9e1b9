// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package config loads the disassembler's defaults
// from a TOML file.
//
// A configuration file looks like this:
//
//	mode = 64
//	syntax = "att"
//	unsigned-immediates = false
//	color = "auto"
//	jobs = 4
//
// Every key is optional. Command-line flags override
// the values in the file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/BurntSushi/toml"

	"firefly-os.dev/tools/disasm/internal/x86"
	"firefly-os.dev/tools/disasm/printer"
)

// Color determines when listings are colourised.
type Color uint8

const (
	ColorAuto Color = iota
	ColorAlways
	ColorNever
)

func (c Color) String() string {
	switch c {
	case ColorAuto:
		return "auto"
	case ColorAlways:
		return "always"
	case ColorNever:
		return "never"
	}

	return fmt.Sprintf("Color(%d)", c)
}

// ParseColor parses a colour setting.
func ParseColor(s string) (Color, error) {
	switch s {
	case "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	}

	return 0, fmt.Errorf("invalid color %q: must be auto, always, or never", s)
}

// Config contains the disassembler's settings.
type Config struct {
	Mode               x86.Mode
	Syntax             printer.Syntax
	UnsignedImmediates bool
	Color              Color
	Jobs               int
}

// Default returns the configuration used when
// no file is present.
func Default() *Config {
	return &Config{
		Mode:   x86.Mode64,
		Syntax: printer.Intel,
		Color:  ColorAuto,
		Jobs:   runtime.GOMAXPROCS(0),
	}
}

// Options returns the printer options.
func (c *Config) Options() printer.Options {
	return printer.Options{
		Syntax:             c.Syntax,
		UnsignedImmediates: c.UnsignedImmediates,
	}
}

// file is the on-disk format.
type file struct {
	Mode               *int    `toml:"mode"`
	Syntax             *string `toml:"syntax"`
	UnsignedImmediates *bool   `toml:"unsigned-immediates"`
	Color              *string `toml:"color"`
	Jobs               *int    `toml:"jobs"`
}

// Parse applies the TOML configuration in data
// to c.
func (c *Config) Parse(data []byte) error {
	var f file
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return err
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown key %q", undecoded[0].String())
	}

	if f.Mode != nil {
		c.Mode, err = x86.ParseMode(strconv.Itoa(*f.Mode))
		if err != nil {
			return err
		}
	}

	if f.Syntax != nil {
		c.Syntax, err = printer.ParseSyntax(*f.Syntax)
		if err != nil {
			return err
		}
	}

	if f.UnsignedImmediates != nil {
		c.UnsignedImmediates = *f.UnsignedImmediates
	}

	if f.Color != nil {
		c.Color, err = ParseColor(*f.Color)
		if err != nil {
			return err
		}
	}

	if f.Jobs != nil {
		if *f.Jobs < 1 {
			return fmt.Errorf("invalid jobs %d: must be at least 1", *f.Jobs)
		}

		c.Jobs = *f.Jobs
	}

	return nil
}

// DefaultPath returns the path to the user's
// configuration file, or the empty string if
// there is no configuration directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(dir, "disasm", "config.toml")
}

// Load returns the configuration in the named
// file, on top of the defaults. If name is the
// default path and the file does not exist, the
// defaults are returned.
func Load(name string) (*Config, error) {
	c := Default()
	if name == "" {
		return c, nil
	}

	data, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) && name == DefaultPath() {
		return c, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read config: %v", err)
	}

	err = c.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %v", name, err)
	}

	return c, nil
}

// Flags registers the configuration flags on
// the flag set. The returned function must be
// called after the flags have been parsed. It
// loads the configuration file and applies any
// flags that were set explicitly.
func Flags(flags *flag.FlagSet) func() (*Config, error) {
	var path, mode, syntax, color string
	var unsigned bool
	var jobs int
	flags.StringVar(&path, "config", DefaultPath(), "The TOML configuration file.")
	flags.StringVar(&mode, "mode", "64", "The CPU mode (16, 32, or 64).")
	flags.StringVar(&syntax, "syntax", "intel", "The assembly syntax (intel, att, or masm).")
	flags.StringVar(&color, "color", "auto", "When to colourise output (auto, always, or never).")
	flags.BoolVar(&unsigned, "unsigned", false, "Print immediates as unsigned values.")
	flags.IntVar(&jobs, "j", 0, "The number of inputs to process concurrently.")

	return func() (*Config, error) {
		c, err := Load(path)
		if err != nil {
			return nil, err
		}

		set := make(map[string]bool)
		flags.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if set["mode"] {
			c.Mode, err = x86.ParseMode(mode)
			if err != nil {
				return nil, err
			}
		}

		if set["syntax"] {
			c.Syntax, err = printer.ParseSyntax(syntax)
			if err != nil {
				return nil, err
			}
		}

		if set["color"] {
			c.Color, err = ParseColor(color)
			if err != nil {
				return nil, err
			}
		}

		if set["unsigned"] {
			c.UnsignedImmediates = unsigned
		}

		if set["j"] {
			if jobs < 1 {
				return nil, fmt.Errorf("invalid -j %d: must be at least 1", jobs)
			}

			c.Jobs = jobs
		}

		return c, nil
	}
}
