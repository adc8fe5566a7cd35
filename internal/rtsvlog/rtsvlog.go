// Package rtsvlog is the ambient leveled logger for the server, wired
// directly onto the teacher's ccLogger (spec §4.11 ADD), the same package
// cc-backend's internal/config and internal/memorystore use for every
// non-HTTP log line.
package rtsvlog

import (
	"fmt"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/titglob/rtsv/internal/record"
)

// Level is the closed verbosity enumeration for -log (spec §6.2).
type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelNames = [...]string{"crit", "err", "warn", "info", "debug"}

// String maps Level onto one of ccLogger's accepted level names.
func (l Level) String() string {
	if int(l) < 0 || int(l) >= len(levelNames) {
		return "info"
	}
	return levelNames[l]
}

// Init configures ccLogger's verbosity and timestamp behavior for the
// process (spec §4.11, §6.2's -log/-logdate flags).
func Init(level Level, withDate bool) {
	cclog.Init(level.String(), withDate)
}

func Debug(args ...any)                 { cclog.Debugf("%s", fmt.Sprint(args...)) }
func Debugf(format string, args ...any) { cclog.Debugf(format, args...) }
func Info(args ...any)                  { cclog.Info(fmt.Sprint(args...)) }
func Infof(format string, args ...any)  { cclog.Infof(format, args...) }
func Warn(args ...any)                  { cclog.Warn(fmt.Sprint(args...)) }
func Warnf(format string, args ...any)  { cclog.Warnf(format, args...) }
func Error(args ...any)                 { cclog.Errorf("%s", fmt.Sprint(args...)) }
func Errorf(format string, args ...any) { cclog.Errorf(format, args...) }

// Fatal logs at the highest severity and terminates the process, mirroring
// cclog.Fatal's use for setup-time failures (spec §4.11, §7).
func Fatal(args ...any) { cclog.Fatal(fmt.Sprint(args...)) }

// Fatalf is the formatted form of Fatal.
func Fatalf(format string, args ...any) { cclog.Fatalf(format, args...) }

// RecordError logs a rejected Record per §7's error taxonomy, tagged with
// its source_id, time, and cmd so a bad stream is diagnosable without a
// full packet dump.
func RecordError(err error, rec *record.Record) {
	cclog.Errorf("source=%d time=%d cmd=%s: %s", rec.SourceID, rec.Time, rec.Cmd, err.Error())
}
