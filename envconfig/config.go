package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/fluxlora/loraconv/logutil"
)

// Var returns an environment variable stripped of leading and trailing quotes or spaces
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

func Bool(k string) func() bool {
	return func() bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}

			return b
		}

		return false
	}
}

func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}

		return defaultValue
	}
}

func String(key string) func() string {
	return func() string {
		return Var(key)
	}
}

// LogLevel returns the log level for the application.
// Values are 0 or false INFO (Default), 1 or true DEBUG, 2 TRACE
func LogLevel() slog.Level {
	var verbosity uint
	if s := Var("LORACONV_DEBUG"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			if b {
				verbosity = 1
			}
		} else if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			verbosity = uint(n)
		} else {
			verbosity = 1
		}
	}

	return logutil.Level(verbosity)
}

// MappingExt returns the extension of the key mapping document written next to
// each converted container. Configurable via LORACONV_MAPPING_EXT. Default is ".json".
func MappingExt() string {
	ext := Var("LORACONV_MAPPING_EXT")
	if ext == "" {
		return ".json"
	}

	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return ext
}

var (
	// Strict fails a conversion on destination key collisions or unrecognized keys.
	Strict = Bool("LORACONV_STRICT")
	// Parallel is the number of files converted at once in directory mode.
	Parallel = Uint("LORACONV_PARALLEL", 1)
	// Rules is the path of a TOML rule file replacing the built-in rule table.
	Rules = String("LORACONV_RULES")
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"LORACONV_DEBUG":       {"LORACONV_DEBUG", LogLevel(), "Show additional debug information (e.g. LORACONV_DEBUG=1, 2 for per-key trace)"},
		"LORACONV_STRICT":      {"LORACONV_STRICT", Strict(), "Fail on destination key collisions and unrecognized keys"},
		"LORACONV_PARALLEL":    {"LORACONV_PARALLEL", Parallel(), "Maximum number of files converted at once in directory mode (default 1)"},
		"LORACONV_MAPPING_EXT": {"LORACONV_MAPPING_EXT", MappingExt(), "Extension of the key mapping document (default \".json\")"},
		"LORACONV_RULES":       {"LORACONV_RULES", Rules(), "TOML file with key rewrite rules replacing the built-in table"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
