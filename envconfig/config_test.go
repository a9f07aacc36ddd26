package envconfig

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxlora/loraconv/logutil"
)

func TestStrict(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected bool
	}{
		{"default", "", false},
		{"true", "true", true},
		{"one", "1", true},
		{"false", "false", false},
		{"quoted", "\"true\"", true},
		{"invalid", "invalid", true}, // Bool returns true for invalid values
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LORACONV_STRICT", tt.envValue)
			assert.Equal(t, tt.expected, Strict())
		})
	}
}

func TestParallel(t *testing.T) {
	cases := map[string]uint{
		"":     1,
		"4":    4,
		" 8 ":  8,
		"'2'":  2,
		"-1":   1,
		"many": 1,
	}

	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("LORACONV_PARALLEL", value)
			require.Equal(t, want, Parallel())
		})
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"0":     slog.LevelInfo,
		"1":     slog.LevelDebug,
		"true":  slog.LevelDebug,
		"2":     logutil.LevelTrace,
		"3":     logutil.LevelTrace,
		"yes":   slog.LevelDebug,
	}

	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("LORACONV_DEBUG", value)
			require.Equal(t, want, LogLevel())
		})
	}
}

func TestMappingExt(t *testing.T) {
	t.Setenv("LORACONV_MAPPING_EXT", "")
	assert.Equal(t, ".json", MappingExt())

	t.Setenv("LORACONV_MAPPING_EXT", "map.json")
	assert.Equal(t, ".map.json", MappingExt())

	t.Setenv("LORACONV_MAPPING_EXT", ".keys")
	assert.Equal(t, ".keys", MappingExt())
}

func TestValues(t *testing.T) {
	t.Setenv("LORACONV_RULES", " /etc/loraconv/rules.toml ")
	t.Setenv("LORACONV_PARALLEL", "3")

	vals := Values()
	assert.Equal(t, "/etc/loraconv/rules.toml", vals["LORACONV_RULES"])
	assert.Equal(t, "3", vals["LORACONV_PARALLEL"])
	assert.Len(t, vals, len(AsMap()))
}
