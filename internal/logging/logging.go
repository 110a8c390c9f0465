// ABOUTME: Log setup for the heos binaries
// ABOUTME: Routes every go-log subsystem to stderr or a file at one level
package logging

import (
	"fmt"

	golog "github.com/ipfs/go-log/v2"
)

// Setup configures go-log. Logs go to file when it is set, otherwise to
// stderr.
func Setup(level, file string) error {
	lvl, err := golog.LevelFromString(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}

	cfg := golog.Config{
		Format: golog.ColorizedOutput,
		Level:  lvl,
		Stderr: file == "",
		File:   file,
	}
	if file != "" {
		cfg.Format = golog.PlaintextOutput
	}
	golog.SetupLogging(cfg)
	return nil
}

// SetLevel changes the level of every logger. Used on config reload.
func SetLevel(level string) error {
	lvl, err := golog.LevelFromString(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	golog.SetAllLoggers(lvl)
	return nil
}
