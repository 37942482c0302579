package log

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// EnableCaller annotates standard logger entries with file:line, relative to
// the working directory.
func EnableCaller() {
	basePath, _ := filepath.Abs(".")
	logger := logrus.StandardLogger()
	logger.SetReportCaller(true)
	formatter, isText := logger.Formatter.(*logrus.TextFormatter)
	if !isText {
		return
	}
	formatter.CallerPrettyfier = func(frame *runtime.Frame) (function string, file string) {
		file = frame.File + ":" + strconv.Itoa(frame.Line)
		if basePath != "" && strings.HasPrefix(file, basePath+string(filepath.Separator)) {
			file = file[len(basePath)+1:]
		}
		return "", " " + file
	}
}
