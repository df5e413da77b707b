package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// setupLogging configures the global logrus logger. format is "text" or
// "json"; an empty level keeps the current one.
func setupLogging(level, format string) error {
	logrus.SetOutput(os.Stderr)
	switch format {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	if level == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}
