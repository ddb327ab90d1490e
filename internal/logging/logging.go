package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var logg = newLogger(os.Stdout, logrus.InfoLevel)

func newLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(level)
	l.SetOutput(out)
	return l
}

// Setup reconfigures the shared logger. Unknown levels keep info.
func Setup(level string, out io.Writer) *logrus.Logger {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	if out == nil {
		out = os.Stdout
	}
	logg.SetLevel(parsed)
	logg.SetOutput(out)
	return logg
}

// For returns an entry tagged with the calling component, e.g. "service" or "pos".
func For(component string) *logrus.Entry {
	return logg.WithField("component", component)
}

func LogError(entry *logrus.Entry, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	entry.WithFields(fields).Error(err.Error())
}
