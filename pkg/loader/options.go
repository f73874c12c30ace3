package loader

import (
	"io"

	"github.com/sirupsen/logrus"
)

const defaultIterationCap = 25

// Suspender pauses save side-effect delivery for a bulk restore; the returned
// function resumes delivery and is safe to call more than once.
type Suspender interface {
	Suspend() func()
}

type Options struct {
	// IterationCap bounds the record-level retry chain. Defaults to 25.
	IterationCap int
	// IgnoreUnknownFields drops fields the schema does not declare instead
	// of failing the unit.
	IgnoreUnknownFields bool
	// Hook, when set, is suspended for the whole restore.
	Hook   Suspender
	Logger *logrus.Entry
}

func (o *Options) setDefaults() {
	if o.IterationCap <= 0 {
		o.IterationCap = defaultIterationCap
	}
	if o.Logger == nil {
		o.Logger = logrusNop()
	}
}

func logrusNop() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
