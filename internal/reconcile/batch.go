package reconcile

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/po-extractor/internal/profiles"
)

// Document is one upstream output awaiting reconciliation.
type Document struct {
	ID       string
	Customer string
	Raw      string
}

// DocumentResult holds either the canonical records of one document or
// the error that stopped it.
type DocumentResult struct {
	ID       string           `json:"id"`
	Customer string           `json:"customer"`
	Records  []Record         `json:"records,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
	Error    *ErrorDescriptor `json:"error,omitempty"`
	Err      error            `json:"-"`
}

// ReconcileBatch reconciles documents concurrently, at most limit at a time
// (limit <= 0 means unbounded). A failing document never affects its
// siblings; results are returned in input order with distinct IDs.
func (r *Reconciler) ReconcileBatch(ctx context.Context, reg *profiles.Registry, docs []Document, limit int) []DocumentResult {
	start := time.Now()
	docs = UniqueIDs(docs)
	results := make([]DocumentResult, len(docs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, d := range docs {
		g.Go(func() error {
			results[i] = r.reconcileOne(ctx, reg, d)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	r.logger.Info("reconcile.batch.done",
		"documents", len(docs),
		"failed", failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return results
}

// UniqueIDs returns a copy of docs in which every ID is distinct: a blank ID
// becomes doc-N and a repeated one gets a " (2)", " (3)"... suffix.
func UniqueIDs(docs []Document) []Document {
	seen := make(map[string]struct{}, len(docs))
	out := make([]Document, len(docs))
	for i, d := range docs {
		base := d.ID
		if base == "" {
			base = fmt.Sprintf("doc-%d", i+1)
		}
		id := base
		for n := 2; ; n++ {
			if _, taken := seen[id]; !taken {
				break
			}
			id = fmt.Sprintf("%s (%d)", base, n)
		}
		seen[id] = struct{}{}
		d.ID = id
		out[i] = d
	}
	return out
}

func (r *Reconciler) reconcileOne(ctx context.Context, reg *profiles.Registry, d Document) DocumentResult {
	res := DocumentResult{ID: d.ID, Customer: d.Customer}
	fail := func(err error) DocumentResult {
		res.Err = err
		res.Error = Describe(err)
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	profile, err := reg.Lookup(d.Customer)
	if err != nil {
		return fail(err)
	}
	res.Customer = profile.Code

	outcomes, err := r.ReconcileDocument(d.Raw, profile)
	if err != nil {
		return fail(err)
	}
	res.Records = Records(outcomes)
	for _, o := range outcomes {
		res.Warnings = append(res.Warnings, o.Warnings...)
	}
	return res
}
