package pdf2md

import "github.com/sirupsen/logrus"

// log is the package logger. Libraries should not hijack the caller's
// logging setup, so this defaults to the standard logrus logger and can be
// replaced wholesale with SetLogger.
var log *logrus.Logger = logrus.StandardLogger()

// SetLogger replaces the logger used by the conversion pipeline.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}
