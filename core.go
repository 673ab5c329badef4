package asn2srs

import (
	"context"

	"github.com/sirupsen/logrus"

	"paepcke.de/asn2srs/asnfetch"
	"paepcke.de/asn2srs/config"
	"paepcke.de/asn2srs/domainlist"
	"paepcke.de/asn2srs/publish"
	"paepcke.de/asn2srs/reconcile"
	"paepcke.de/asn2srs/ruledoc"
)

// fetched holds the raw upstream sets of one category.
type fetched struct {
	sets [][]string
}

// compiled ...
type compiled struct {
	doc      *ruledoc.Document
	artifact []byte
}

// run walks FETCHING -> BUILDING -> COMPILING -> RECONCILING -> PUBLISHING.
// Nothing is written before every category compiled and every artifact was
// compared.
func (r *Runner) run(ctx context.Context) Result {
	cats := r.Config.Categories

	// fetch
	r.enter(StageFetching)
	raw := make([]fetched, len(cats))
	for i, cat := range cats {
		sets, err := r.fetch(ctx, cat)
		if err != nil {
			return failed(StageFetching, cat.Name, err)
		}
		raw[i] = fetched{sets: sets}
	}

	// build
	r.enter(StageBuilding)
	builder := ruledoc.NewBuilder(r.Config.Names())
	docs := make([]*ruledoc.Document, len(cats))
	for i, cat := range cats {
		sets := append(raw[i].sets, cat.Static)
		var doc *ruledoc.Document
		var err error
		if cat.Kind == config.KindGeoSite {
			doc, err = builder.Domains(cat.Name, cat.Rule, sets...)
		} else {
			doc, err = builder.IPCIDR(cat.Name, sets...)
		}
		if err != nil {
			return failed(StageBuilding, cat.Name, err)
		}
		if r.Metrics != nil {
			r.Metrics.Entries(cat.Name, len(doc.Entries))
		}
		docs[i] = doc
	}

	// compile
	r.enter(StageCompiling)
	out := make([]compiled, len(cats))
	for i, cat := range cats {
		if err := ctx.Err(); err != nil {
			return failed(StageCompiling, cat.Name, err)
		}
		artifact, err := r.Compiler.Compile(ctx, docs[i])
		if err != nil {
			return failed(StageCompiling, cat.Name, err)
		}
		if r.Metrics != nil {
			r.Metrics.Artifact(cat.Name, len(artifact))
		}
		out[i] = compiled{doc: docs[i], artifact: artifact}
	}

	// reconcile: compare everything first, write only when no comparison failed
	r.enter(StageReconciling)
	var plan []pending
	for i, cat := range cats {
		p, err := r.compare(cat, out[i])
		if err != nil {
			return failed(StageReconciling, cat.Name, err)
		}
		plan = append(plan, p...)
	}
	var changes []publish.Change
	var updated []string
	for _, p := range plan {
		if err := r.Reconciler.Apply(p.res, p.data); err != nil {
			return failed(StageReconciling, p.category, err)
		}
		r.Log.WithFields(logrus.Fields{
			"category": p.category,
			"path":     p.res.Path,
			"hash":     p.res.NewHash,
		}).Info(p.res.Outcome.String())
		if p.res.Outcome != reconcile.Updated {
			continue
		}
		if len(updated) == 0 || updated[len(updated)-1] != p.category {
			updated = append(updated, p.category)
		}
		changes = append(changes, publish.Change{Category: p.category, Path: p.res.Path})
	}

	// publish
	res := Result{Status: Success, Stage: StageDone, Updated: updated}
	if r.Publisher == nil || len(changes) == 0 {
		return res
	}
	r.enter(StagePublishing)
	committed, err := r.Publisher.Publish(ctx, changes)
	if err != nil {
		fail := failed(StagePublishing, "", err)
		fail.Updated, fail.Committed = updated, committed
		return fail
	}
	res.Committed = committed
	return res
}

// fetch collects the upstream sets of cat.
func (r *Runner) fetch(ctx context.Context, cat config.Category) ([][]string, error) {
	log := r.Log.WithField("category", cat.Name)
	if cat.Kind == config.KindGeoSite {
		var sets [][]string
		for _, l := range cat.Lists {
			if r.Metrics != nil {
				r.Metrics.Query()
			}
			names, err := r.Lists.Load(ctx, domainlist.Source{URL: l.URL, Format: l.Format, Registrable: l.Registrable})
			if err != nil {
				return nil, err
			}
			log.WithField("url", l.URL).Debugf("%d name(s) loaded", len(names))
			sets = append(sets, names)
		}
		return sets, nil
	}

	if len(cat.ASNs) == 0 && cat.Search == "" {
		return nil, nil // static only
	}
	ip4, ip6 := r.Config.Families(cat)
	if r.Metrics != nil {
		r.Metrics.Query()
	}
	prefixes, err := r.Prefixes.Collect(ctx, asnfetch.Query{
		ASNs:              cat.Uint32s(),
		Search:            cat.Search,
		DescriptionFilter: cat.DescriptionFilter,
		IPv4:              ip4,
		IPv6:              ip6,
	})
	if err != nil {
		return nil, err
	}
	set := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		set = append(set, p.String())
	}
	log.Debugf("%d prefix(es) collected", len(set))
	return [][]string{set}, nil
}

// pending is one compared file waiting to be written.
type pending struct {
	category string
	res      reconcile.Result
	data     []byte
}

// compare checks the artifact (and the optional source document) of one
// category against the work tree without writing.
func (r *Runner) compare(cat config.Category, c compiled) ([]pending, error) {
	type file struct {
		path string
		data func() ([]byte, error)
	}
	files := []file{{cat.Output, func() ([]byte, error) { return c.artifact, nil }}}
	if cat.SourceOutput != "" {
		files = append(files, file{cat.SourceOutput, c.doc.Marshal})
	}
	out := make([]pending, 0, len(files))
	for _, f := range files {
		data, err := f.data()
		if err != nil {
			return nil, err
		}
		res, err := r.Reconciler.Compare(f.path, data)
		if err != nil {
			return nil, err
		}
		out = append(out, pending{category: cat.Name, res: res, data: data})
	}
	return out, nil
}
