package main

import (
	"context"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/gitversions/pkg/codec"
	"github.com/iota-uz/gitversions/pkg/composables"
	"github.com/iota-uz/gitversions/pkg/configuration"
	"github.com/iota-uz/gitversions/pkg/schema"
	"github.com/iota-uz/gitversions/pkg/vcs"
	"github.com/iota-uz/gitversions/pkg/versioner"
)

// app carries the wiring every subcommand needs: parsed configuration, the
// schema registry and a connection pool bound into the context.
type app struct {
	conf *configuration.Configuration
	reg  *schema.Registry
	pool *pgxpool.Pool
	log  *logrus.Entry
}

// openApp builds the shared wiring. dsn overrides the configured database
// when non-empty. The returned context carries the pool.
func openApp(ctx context.Context, dsn string) (context.Context, *app, error) {
	conf := configuration.Use()
	reg, err := schema.LoadFile(conf.SchemasPath)
	if err != nil {
		return ctx, nil, err
	}
	if dsn == "" {
		dsn = conf.Database.Opts
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return ctx, nil, err
	}
	return composables.WithPool(ctx, pool), &app{
		conf: conf,
		reg:  reg,
		pool: pool,
		log:  logrus.NewEntry(conf.Logger()),
	}, nil
}

func (a *app) close() {
	a.pool.Close()
	a.conf.Unload()
}

func (a *app) backend(remoteURL string) *vcs.GitBackend {
	url := remoteURL
	if url == "" {
		url = a.conf.Backup.RemoteURL
	}
	return vcs.NewGitBackend(vcs.GitConfig{
		Path:        a.conf.Backup.Dir,
		URL:         url,
		AuthorName:  a.conf.Backup.CommitName,
		AuthorEmail: a.conf.Backup.CommitEmail,
	})
}

func (a *app) versioner(format, compression string, opts codec.Options, backend vcs.Backend) *versioner.Versioner {
	return versioner.New(a.reg, a.conf.Backup.Dir,
		versioner.WithFormat(format, compression),
		versioner.WithCodecOptions(opts),
		versioner.WithBackend(backend),
		versioner.WithLogger(a.log),
	)
}

func (a *app) backupPath(parts ...string) string {
	return filepath.Join(append([]string{a.conf.Backup.Dir}, parts...)...)
}

func defaultCodecOptions(a *app) codec.Options {
	return codec.Options{
		Indent:                a.conf.Indent,
		UseNaturalForeignKeys: true,
		UseNaturalPrimaryKeys: true,
	}
}
