// Package obslog centralizes the structured logger construction shared by
// every stage of the pipeline and by the transport layer.
package obslog

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger configured from level/format strings, the way
// each server in the teacher's stack is configured from its logging
// section.
func New(level, format, output string) *logrus.Logger {
	log := logrus.New()

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	if strings.ToLower(format) == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	if strings.ToLower(output) == "stderr" {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(os.Stdout)
	}

	return log
}

// StageFields builds the common logrus.Fields every stage logs: the run
// identifier, the stage name, and its output hash.
func StageFields(runID, stage, hash string) logrus.Fields {
	return logrus.Fields{
		"run_id": runID,
		"stage":  stage,
		"hash":   hash,
	}
}
