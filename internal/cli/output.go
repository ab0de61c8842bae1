package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/blackmichael/social-engage/internal/engagement"
)

// output renders command results as text or JSON.
type output struct {
	format string
	w      io.Writer
}

func newOutput(opts *RootOptions, w io.Writer) *output {
	return &output{format: opts.Format, w: w}
}

func (o *output) json(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *output) printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}

func (o *output) report(rep *engagement.Report) error {
	if o.format == "json" {
		return o.json(rep)
	}

	suffix := ""
	if rep.DryRun {
		suffix = " (dry run)"
	}
	o.printf("%s run for %s%s\n", rep.Flow, rep.Target.Name, suffix)
	for _, pr := range rep.Platforms {
		o.printf("%s fetched %d, considered %d\n", pr.Platform.Label(), pr.Fetched, pr.Considered)
		if pr.Skipped != "" {
			o.printf("  skipped: %s\n", pr.Skipped)
		}
		o.counts("follows", pr.Follows)
		o.counts("likes", pr.Likes)
		o.counts("reposts", pr.Reposts)
		o.counts("replies", pr.Replies)
		o.counts("posts", pr.Posts)
	}
	if rep.Amplified != nil {
		src := rep.Amplified.Source
		o.printf("amplified %s %s (%s)\n", src.Platform.Label(), src.ID, rep.Amplified.Classification.Topic)
	}
	for _, d := range rep.Deferred {
		o.printf("deferred %s %s\n", d.Platform.Label(), d.ID)
	}
	if ids := rep.PendingIDs(); len(ids) > 0 {
		o.printf("queued for retry in %s: %s\n", rep.StoreLocation, strings.Join(ids, ", "))
	}
	if rep.Pruned > 0 {
		o.printf("pruned %d old records\n", rep.Pruned)
	}
	return nil
}

func (o *output) counts(name string, c engagement.ActionCounts) {
	if c.Zero() {
		return
	}
	o.printf("  %-8s %d ok, %d simulated, %d pending, %d failed\n", name, c.Succeeded, c.Simulated, c.Pending, c.Failed)
}

func (o *output) flush(rep *engagement.FlushReport) error {
	if o.format == "json" {
		return o.json(rep)
	}
	if len(rep.Results) == 0 {
		o.printf("no pending actions\n")
		return nil
	}
	for _, r := range rep.Results {
		o.printf("%s %-12s %s", r.Platform.Label(), r.Outcome, r.ID)
		switch r.Outcome {
		case engagement.FlushRescheduled, engagement.FlushDeferred:
			if !r.NextAttemptAt.IsZero() {
				o.printf(" next %s", r.NextAttemptAt.Format(time.RFC3339))
			}
		case engagement.FlushSent:
			o.printf(" -> %s", r.Ref.ID)
		}
		if r.Error != "" {
			o.printf(" (%s)", r.Error)
		}
		o.printf("\n")
	}
	o.printf("%d remaining\n", rep.Remaining)
	return nil
}

func (o *output) monitor(rep *engagement.MonitorReport) error {
	if o.format == "json" {
		return o.json(rep)
	}
	o.printf("%s\n", strings.TrimPrefix(rep.Digest, "\n"))
	for _, p := range slices.Sorted(maps.Keys(rep.Errors)) {
		o.printf("%s skipped: %s\n", p.Label(), rep.Errors[p])
	}
	if rep.Notified {
		o.printf("digest sent to webhook\n")
	}
	return nil
}

func (o *output) publish(results []engagement.PublishResult) error {
	if o.format == "json" {
		return o.json(results)
	}
	for _, r := range results {
		switch {
		case r.PendingID != "":
			o.printf("%s queued for retry: %s\n", r.Platform.Label(), r.PendingID)
		case r.Error != "":
			o.printf("%s failed: %s\n", r.Platform.Label(), r.Error)
		case r.Ref.ID != "":
			o.printf("%s posted: %s\n", r.Platform.Label(), r.Ref.ID)
		default:
			o.printf("%s dry run\n", r.Platform.Label())
		}
	}
	return nil
}

func (o *output) status(rep *engagement.StatusReport) error {
	if o.format == "json" {
		return o.json(rep)
	}
	o.printf("store:   %s\n", rep.StoreLocation)
	o.printf("records: %d\n", rep.Records)
	for _, outcome := range slices.Sorted(maps.Keys(rep.Outcomes)) {
		o.printf("  %-10s %d\n", outcome, rep.Outcomes[outcome])
	}
	o.printf("pending: %d\n", len(rep.Pending))
	for _, pa := range rep.Pending {
		o.printf("  %s %s %s retries=%d next=%s\n", pa.Platform.Label(), pa.Kind, pa.ID, pa.Retries, pa.NextAttemptAt.Format(time.RFC3339))
	}
	o.printf("cursors: %d\n", len(rep.Cursors))
	for _, name := range rep.CursorNames() {
		c := rep.Cursors[name]
		o.printf("  %-10s %s\n", name, c.At.Format(time.RFC3339))
	}
	return nil
}
