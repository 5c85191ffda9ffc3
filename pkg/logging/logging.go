// Package logging provides leveled log output for seismicrop.
// Messages go to the standard logger, optionally redirected to a rotating log file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
)

// Config holds log destination settings.
type Config struct {
	// Logfile is the path of the rotating log file. Empty means stderr.
	Logfile string `yaml:"logfile"`

	// MaxSize is the size in megabytes a log file may reach before rotation.
	MaxSize int `yaml:"maxSize"`

	// MaxAge is the number of days rotated log files are kept.
	MaxAge int `yaml:"maxAge"`

	// Verbose enables debug messages.
	Verbose bool `yaml:"verbose"`
}

var (
	mu      sync.RWMutex
	verbose bool
	rotator *lumberjack.Logger
)

// Setup directs log output according to the configuration.
// It can be called again to reconfigure; a previously opened log file is closed.
func Setup(c *Config) {
	mu.Lock()
	defer mu.Unlock()

	if rotator != nil {
		rotator.Close()
		rotator = nil
	}
	if c == nil {
		verbose = false
		log.SetOutput(os.Stderr)
		return
	}
	verbose = c.Verbose
	if c.Logfile == "" {
		log.SetOutput(os.Stderr)
		return
	}
	rotator = &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize, // megabytes
		MaxAge:   c.MaxAge,  // days
	}
	log.SetOutput(rotator)
}

// SetOutput sends log output to w. Mostly useful for tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// Shutdown closes the log file if one is open.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if rotator != nil {
		log.Printf(" INFO Closing log file...\n")
		rotator.Close()
		rotator = nil
	}
	log.SetOutput(os.Stderr)
}

// Verbose reports whether debug messages are written.
func Verbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// Debugf writes a message at DEBUG level when verbose output is on.
func Debugf(format string, args ...interface{}) {
	if !Verbose() {
		return
	}
	log.Printf(" DEBUG "+format, args...)
}

// Infof writes a message at INFO level.
func Infof(format string, args ...interface{}) {
	log.Printf(" INFO "+format, args...)
}

// Warningf writes a message at WARNING level.
func Warningf(format string, args ...interface{}) {
	log.Printf(" WARNING "+format, args...)
}

// Errorf writes a message at ERROR level and returns it as an error.
func Errorf(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	log.Printf(" ERROR %v", err)
	return err
}
