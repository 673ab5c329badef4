package asn2srs

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// NewLogger returns the text logger used by the command, level parsed from
// level ("info" on parse failure).
func NewLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableLevelTruncation: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		l.WithField("level", level).Warn("unknown log level, fallback to info")
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// enter ...
func (r *Runner) enter(s Stage) { r.Log.WithField("stage", s).Debug("enter") }

// report prints the per-category summary of a run.
func (r *Runner) report(res Result) {
	log := r.Log.WithField("stage", res.Stage)
	if res.Err != nil {
		log.WithFields(logrus.Fields{"status": res.Status, "failed_at": res.FailedAt}).Error(res.Err.Error())
		return
	}
	changed := make(map[string]bool, len(res.Updated))
	for _, c := range res.Updated {
		changed[c] = true
	}
	for _, cat := range r.Config.Categories {
		state := "unchanged"
		if changed[cat.Name] {
			state = "updated"
		}
		log.Info(pad(" + "+cat.Name, 40) + state)
	}
	log.WithField("committed", res.Committed).Info(pad("time needed", 40) + res.Duration.String() + " [" + strconv.Itoa(len(res.Updated)) + " updated]")
}

// pad ...
func pad(in string, l int) string {
	for len(in) < l {
		in = in + " "
	}
	return in
}
