// Package versioner writes records into the backup repository as one
// fixture file per record, and mirrors live saves into it through the event
// bus.
package versioner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/gitversions/pkg/codec"
	"github.com/iota-uz/gitversions/pkg/schema"
	"github.com/iota-uz/gitversions/pkg/store"
	"github.com/iota-uz/gitversions/pkg/vcs"
)

type Versioner struct {
	reg     *schema.Registry
	dir     string
	format  string
	comp    string
	opts    codec.Options
	backend vcs.Backend
	log     *logrus.Entry
}

type Option func(*Versioner)

func WithFormat(format, compression string) Option {
	return func(v *Versioner) {
		v.format = format
		v.comp = compression
	}
}

func WithCodecOptions(opts codec.Options) Option {
	return func(v *Versioner) { v.opts = opts }
}

func WithBackend(b vcs.Backend) Option {
	return func(v *Versioner) { v.backend = b }
}

func WithLogger(log *logrus.Entry) Option {
	return func(v *Versioner) { v.log = log }
}

func New(reg *schema.Registry, dir string, opts ...Option) *Versioner {
	v := &Versioner{
		reg:     reg,
		dir:     dir,
		format:  "json",
		backend: vcs.NopBackend{},
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.log == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.PanicLevel)
		v.log = logrus.NewEntry(logger)
	}
	return v
}

// Write serializes one record into
// <dir>/<app>/<model>/<identity>.<format>[.<compression>].
func (v *Versioner) Write(rec *schema.Record) (string, error) {
	s, ok := v.reg.Get(rec.Schema)
	if !ok {
		return "", fmt.Errorf("unknown schema: %s", rec.Schema)
	}
	c, err := codec.Lookup(v.format)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(v.dir, strings.ToLower(s.App), strings.ToLower(s.Name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, codec.FileName(rec.Identity(s), v.format, v.comp))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	w, err := codec.NewCompressedWriter(f, v.comp)
	if err != nil {
		_ = f.Close()
		return "", err
	}
	if err := c.Encode(w, v.reg, []*schema.Record{rec}, v.opts); err != nil {
		_ = w.Close()
		_ = f.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

// HandleRecordSaved mirrors a live save into the backup repository. Attach
// subscribes it to the bus; bulk restore suspends the bus so loads do not
// version themselves recursively.
func (v *Versioner) HandleRecordSaved(e *store.RecordSaved) {
	if _, err := v.Write(e.Record); err != nil {
		v.log.WithError(err).WithField("schema", e.Record.Schema).Error("versioner: failed to write record")
	}
}

func (v *Versioner) Attach(bus interface{ Subscribe(handler interface{}) }) {
	bus.Subscribe(v.HandleRecordSaved)
}

func (v *Versioner) Commit(message string, push bool) error {
	return v.backend.Commit(message, push)
}
