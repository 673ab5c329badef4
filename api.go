// Package asn2srs refreshes geoip / geosite rule-set artifacts: fetch, build,
// compile, reconcile and publish, in one sequential run.
package asn2srs

import (
	"context"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"

	"paepcke.de/asn2srs/asnfetch"
	"paepcke.de/asn2srs/config"
	"paepcke.de/asn2srs/domainlist"
	"paepcke.de/asn2srs/fetch"
	"paepcke.de/asn2srs/metrics"
	"paepcke.de/asn2srs/publish"
	"paepcke.de/asn2srs/reconcile"
	"paepcke.de/asn2srs/ruledoc"
	"paepcke.de/asn2srs/srscompile"
)

// PrefixSource resolves the prefixes of a geoip category.
type PrefixSource interface {
	Collect(ctx context.Context, q asnfetch.Query) ([]netip.Prefix, error)
}

// ListSource loads one remote domain list.
type ListSource interface {
	Load(ctx context.Context, src domainlist.Source) ([]string, error)
}

// Compiler turns a rule document into artifact bytes.
type Compiler interface {
	Compile(ctx context.Context, doc *ruledoc.Document) ([]byte, error)
}

// Publisher commits changed files.
type Publisher interface {
	Publish(ctx context.Context, changes []publish.Change) (bool, error)
}

// Runner executes pipeline runs against one configuration.
type Runner struct {
	Config     *config.Config
	Prefixes   PrefixSource
	Lists      ListSource
	Compiler   Compiler
	Reconciler *reconcile.Reconciler
	Publisher  Publisher          // nil disables publishing
	Metrics    *metrics.Collector // nil disables metrics
	Log        logrus.FieldLogger
}

// New wires the production components for cfg.
func New(cfg *config.Config, log logrus.FieldLogger) (*Runner, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	client := fetch.New(fetch.Options{Timeout: cfg.Timeout, UserAgent: cfg.UserAgent})
	prefixes, err := asnfetch.New(asnfetch.Options{
		Provider: cfg.Provider,
		BaseURL:  cfg.APIURL,
		Delay:    cfg.Delay,
		Client:   client,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	r := &Runner{
		Config:     cfg,
		Prefixes:   prefixes,
		Lists:      &domainlist.Loader{Client: client},
		Compiler:   srscompile.New(cfg.Compiler),
		Reconciler: &reconcile.Reconciler{Root: cfg.Workdir},
		Metrics:    metrics.New(),
		Log:        log,
	}
	if cfg.PublishEnabled() {
		p := publish.New(publish.ExecRunner{Dir: cfg.Workdir}, cfg.Publish.Remote, cfg.Publish.Branch, cfg.PushEnabled())
		p.Author = cfg.Publish.Author
		r.Publisher = p
	}
	return r, nil
}

// Run executes one full pipeline run and reports its typed result.
func (r *Runner) Run(ctx context.Context) Result {
	t0 := time.Now()
	res := r.run(ctx)
	res.Duration = time.Since(t0)

	if r.Metrics != nil {
		if res.Err != nil {
			r.Metrics.Failed(string(res.FailedAt))
		}
		r.Metrics.Finished(res.Duration, len(res.Updated), res.Status == Success)
		if err := r.Metrics.Push(ctx, r.Config.Metrics.Pushgateway, r.Config.Metrics.Job); err != nil {
			r.Log.WithError(err).Warn("unable to push metrics")
		}
	}
	r.report(res)
	return res
}
