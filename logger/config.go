package logger

import (
	"os"
	"time"
)

const defaultTimestampFormat = time.RFC3339

// Config provides configuration for a logger.
type Config struct {
	Level      string           `json:"level"`
	Formatter  string           `json:"formatter"`
	OutputFile string           `json:"output_file"`
	TextFormat TextFormatConfig `json:"text_format"`
	JSONFormat JSONFormatConfig `json:"json_format"`
}

// TextFormatConfig configures the one-line text format. Colors are used
// on terminals only, unless forced.
type TextFormatConfig struct {
	ForceColors      bool   `json:"force_colors"`
	DisableColors    bool   `json:"disable_colors"`
	DisableTimestamp bool   `json:"disable_timestamp"`
	TimestampFormat  string `json:"timestamp_format"`
}

// JSONFormatConfig provides configuration for the JSON logger.
type JSONFormatConfig struct {
	DisableTimestamp bool   `json:"disable_timestamp"`
	TimestampFormat  string `json:"timestamp_format"`
}

// DefaultConfig returns a Config instance with default values.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Formatter: "text",
		TextFormat: TextFormatConfig{
			TimestampFormat: defaultTimestampFormat,
		},
		JSONFormat: JSONFormatConfig{
			TimestampFormat: defaultTimestampFormat,
		},
	}
}

// DebugConfig returns a Config instance with default values useful for testing/debugging.
func DebugConfig() Config {
	return Config{
		Level:     "debug",
		Formatter: "text",
		TextFormat: TextFormatConfig{
			ForceColors:     true,
			TimestampFormat: defaultTimestampFormat,
		},
	}
}

// Configure configures the logging level, formatter and output path.
func (l *Logger) Configure(conf Config) {
	l.SetLevel(conf.Level)

	if conf.Formatter == "json" {
		l.SetFormatter(newJSONFormatter(conf.JSONFormat))
	} else {
		l.SetFormatter(&lineFormatter{conf: conf.TextFormat})
	}

	if conf.OutputFile != "" {
		logFile, err := os.OpenFile(
			conf.OutputFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666,
		)
		if err != nil {
			l.Error("Can't open log output", "output", conf.OutputFile, "error", err)
		} else {
			l.SetOutput(logFile)
		}
	}
}
