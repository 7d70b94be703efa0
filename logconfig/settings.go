package logconfig

import (
	"strings"

	myLogger "github.com/sirupsen/logrus"
)

// This output format is used in the test (has terminal).
func ConfigDebugLogger() {
	myLogger.SetReportCaller(true)
	myLogger.SetLevel(myLogger.DebugLevel)
	myLogger.SetFormatter(&myLogger.TextFormatter{
		ForceColors:            true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

func ConfigInfoLogger() {
	myLogger.SetReportCaller(false)
	myLogger.SetLevel(myLogger.InfoLevel)
	myLogger.SetFormatter(&myLogger.TextFormatter{
		ForceColors:            true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

// This output format is used in production.
func ConfigProductionLogger() {
	myLogger.SetReportCaller(false)
	myLogger.SetLevel(myLogger.InfoLevel)
	myLogger.SetFormatter(&myLogger.JSONFormatter{})
}

// ConfigLogger applies the level and format read from the server config.
// format is one of "text", "json". Unknown levels fall back to info.
func ConfigLogger(level string, format string) {
	lvl, err := myLogger.ParseLevel(level)
	if err != nil {
		lvl = myLogger.InfoLevel
	}

	switch {
	case strings.EqualFold(format, "json"):
		ConfigProductionLogger()
		myLogger.SetReportCaller(lvl >= myLogger.DebugLevel)
	case lvl >= myLogger.DebugLevel:
		ConfigDebugLogger()
	default:
		ConfigInfoLogger()
	}
	myLogger.SetLevel(lvl)
}
