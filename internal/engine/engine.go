// Package engine sequences the sync pipeline: catalog fetch, diff
// planning, per-note transform/resolve/write across a bounded worker
// pool, and manifest commits.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/willingning/minote-sync/internal/apperr"
	"github.com/willingning/minote-sync/internal/assets"
	"github.com/willingning/minote-sync/internal/catalog"
	"github.com/willingning/minote-sync/internal/checksum"
	"github.com/willingning/minote-sync/internal/gateway"
	"github.com/willingning/minote-sync/internal/manifest"
	"github.com/willingning/minote-sync/internal/models"
	"github.com/willingning/minote-sync/internal/planner"
	"github.com/willingning/minote-sync/internal/progress"
	"github.com/willingning/minote-sync/internal/storage"
	"github.com/willingning/minote-sync/internal/transform"
)

// Anomaly kinds the engine itself can report.
const (
	anomalyTransformFallback = "transform_fallback"
	anomalyPathFallback      = "path_fallback"
)

// Options are the static knobs of a run.
type Options struct {
	Concurrency      int
	AttachmentFanOut int
	DryRun           bool
	Rule             assets.Rule
}

// Engine is the sync orchestrator. It is the manifest's single writer;
// workers hand results back and never touch the store.
type Engine struct {
	gw       gateway.Client
	store    *manifest.Store
	root     *storage.Root
	resolver *assets.Resolver
	opts     Options
	logger   *slog.Logger
	broker   *progress.Broker
}

// New builds an engine. broker may be nil when nothing subscribes.
func New(gw gateway.Client, store *manifest.Store, root *storage.Root, opts Options, logger *slog.Logger, broker *progress.Broker) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Engine{
		gw:       gw,
		store:    store,
		root:     root,
		resolver: assets.NewResolver(gw, opts.Rule, opts.AttachmentFanOut, logger),
		opts:     opts,
		logger:   logger,
		broker:   broker,
	}
}

func (e *Engine) publish(stage, noteID, detail string) {
	if e.broker != nil {
		e.broker.Publish(progress.Event{Stage: stage, NoteID: noteID, Detail: detail})
	}
}

type noteResult struct {
	idx     int
	id      string
	title   string
	action  planner.Action
	skipped bool
	failed  bool
	err     error

	entry       models.ManifestEntry
	attFailures []models.AttachmentFailure
	anomalies   []models.Anomaly
}

// Run executes one full sync and returns its report. The report is
// always non-nil; a non-nil error alongside it means the run aborted
// (credential rejection or catalog fetch failure) with partial
// results.
func (e *Engine) Run(ctx context.Context) (*models.SyncReport, error) {
	report := &models.SyncReport{}

	e.publish(progress.StageFetching, "", "")
	folders, err := e.gw.ListFolders(ctx)
	if err != nil {
		return e.abort(report, fmt.Errorf("engine: list folders: %w", err))
	}
	summaries, err := e.gw.ListNotes(ctx)
	if err != nil {
		return e.abort(report, fmt.Errorf("engine: list notes: %w", err))
	}

	paths, anomalies := catalog.ResolvePaths(folders)
	notes, catAnoms := catalog.Build(summaries, paths)
	report.Anomalies = append(anomalies, catAnoms...)

	e.publish(progress.StageDiffing, "", "")
	entries, err := e.store.Load()
	if err != nil {
		return e.abort(report, fmt.Errorf("engine: load manifest: %w", err))
	}
	decisions := planner.Plan(notes, entries, e.root.Exists)

	current := make(map[string]struct{}, len(notes))
	for _, n := range notes {
		current[n.ID] = struct{}{}
	}
	report.Orphans, err = e.store.Orphans(current)
	if err != nil {
		return e.abort(report, fmt.Errorf("engine: manifest orphans: %w", err))
	}

	relPaths := notePaths(notes)

	e.publish(progress.StageProcessing, "", "")
	results := make([]noteResult, len(decisions))
	resultCh := make(chan noteResult)
	collectorDone := make(chan struct{})

	// Single-writer manifest discipline: only this goroutine commits.
	go func() {
		defer close(collectorDone)
		for r := range resultCh {
			if !r.skipped && !r.failed && !e.opts.DryRun {
				if err := e.store.Commit(r.entry); err != nil {
					r.failed = true
					r.err = err
					e.publish(progress.NoteFailed, r.id, err.Error())
				} else {
					e.publish(progress.NoteCommitted, r.id, r.entry.LocalPath)
				}
			}
			results[r.idx] = r
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, d := range decisions {
		i, d := i, d
		if d.Action == planner.ActionUnchanged {
			// No content fetch, no transform, no resolution.
			e.publish(progress.NoteSkipped, d.Note.ID, "")
			results[i] = noteResult{idx: i, id: d.Note.ID, title: d.Note.Title, skipped: true}
			continue
		}
		g.Go(func() error {
			r, fatal := e.processNote(gctx, d, relPaths[d.Note.ID])
			if fatal != nil {
				return fatal
			}
			r.idx = i
			select {
			case resultCh <- r:
			case <-gctx.Done():
				return gctx.Err()
			}
			return nil
		})
	}

	runErr := g.Wait()
	close(resultCh)
	<-collectorDone

	e.publish(progress.StageCommitting, "", "")
	for _, r := range results {
		switch {
		case r.id == "":
			// Pipeline abandoned before producing a result.
		case r.skipped:
			report.Skipped = append(report.Skipped, r.id)
		case r.failed:
			report.Failed = append(report.Failed, models.NoteFailure{NoteID: r.id, Title: r.title, Err: r.err.Error()})
		case r.action == planner.ActionNew:
			report.Created = append(report.Created, r.id)
		default:
			report.Updated = append(report.Updated, r.id)
		}
		report.FailedAttachments = append(report.FailedAttachments, r.attFailures...)
		report.Anomalies = append(report.Anomalies, r.anomalies...)
	}

	if runErr != nil {
		return e.abort(report, fmt.Errorf("engine: run aborted: %w", runErr))
	}
	e.publish(progress.StageDone, "", "")
	return report, nil
}

func (e *Engine) abort(report *models.SyncReport, err error) (*models.SyncReport, error) {
	e.publish(progress.StageAborted, "", err.Error())
	return report, err
}

// processNote runs one note through transform → resolve → write. The
// second return value is non-nil only for run-fatal conditions
// (credential rejection, cancellation); everything else is isolated
// into the result.
func (e *Engine) processNote(ctx context.Context, d planner.Decision, relPath string) (noteResult, error) {
	n := d.Note
	r := noteResult{id: n.ID, title: n.Title, action: d.Action}
	fail := func(err error) (noteResult, error) {
		r.failed = true
		r.err = err
		e.publish(progress.NoteFailed, n.ID, err.Error())
		return r, nil
	}

	e.publish(progress.NotePending, n.ID, "")
	content, err := e.gw.GetNoteContent(ctx, n.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrAuth) || ctx.Err() != nil {
			return r, err
		}
		return fail(fmt.Errorf("fetch content: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return r, err
	}
	e.publish(progress.NoteTransform, n.ID, "")
	md, err := transform.Transform(content.RawContent)
	if err != nil {
		// Recover locally: keep the raw content verbatim in a fence.
		md = transform.Fence(content.RawContent)
		r.anomalies = append(r.anomalies, models.Anomaly{
			Kind:    anomalyTransformFallback,
			Subject: n.ID,
			Detail:  err.Error(),
		})
	}

	if err := ctx.Err(); err != nil {
		return r, err
	}
	e.publish(progress.NoteResolving, n.ID, "")
	var w assets.Writer = e.root
	if e.opts.DryRun {
		w = discardWriter{}
	}
	res, err := e.resolver.Resolve(ctx, n.ID, path.Dir(relPath), content.AttachmentRefs, w)
	if err != nil {
		return r, err
	}
	r.attFailures = res.Failures

	// Attachments the note declares but never embeds inline (the
	// service's voice lists) are appended so no fetched asset is
	// orphaned.
	var appended []string
	for _, ref := range content.AttachmentRefs {
		tok := "{{asset:" + ref.ID + "}}"
		if strings.Contains(md, tok) {
			continue
		}
		if _, ok := res.Paths[ref.ID]; ok {
			appended = append(appended, tok)
		}
	}
	if len(appended) > 0 {
		md = strings.TrimRight(md, "\n") + "\n\n---\n\n## Recordings\n\n" + strings.Join(appended, "\n") + "\n"
	}
	final := transform.FinalizeEmbeds(md, res.Paths)

	if err := ctx.Err(); err != nil {
		return r, err
	}
	e.publish(progress.NoteWriting, n.ID, relPath)
	doc := renderDocument(n, final)
	if !e.opts.DryRun {
		written, err := e.writeNote(relPath, n.ID, doc)
		if err != nil {
			return fail(err)
		}
		if written != relPath {
			r.anomalies = append(r.anomalies, models.Anomaly{
				Kind:    anomalyPathFallback,
				Subject: n.ID,
				Detail:  fmt.Sprintf("path %q failed to write; used %q", relPath, written),
			})
			relPath = written
		}
	}

	hashParts := append([]string{checksum.Sum(doc)}, res.Hashes...)
	r.entry = models.ManifestEntry{
		NoteID:             n.ID,
		ContentHash:        checksum.SumParts(hashParts...),
		LocalPath:          relPath,
		AttachmentHashes:   res.Hashes,
		LastSyncedRevision: n.Revision,
	}
	return r, nil
}

// writeNote attempts the planned path and, on failure, retries once
// with a maximally conservative name before giving up.
func (e *Engine) writeNote(relPath, noteID string, doc []byte) (string, error) {
	if err := e.root.Write(relPath, doc); err == nil {
		return relPath, nil
	} else {
		e.logger.Warn("note write failed, retrying with fallback name",
			slog.String("note_id", noteID),
			slog.String("path", relPath),
			slog.String("error", err.Error()))
	}
	fallback := path.Join(path.Dir(relPath), "note-"+catalog.ShortID(noteID)+".md")
	if err := e.root.Write(fallback, doc); err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrFilesystem, err)
	}
	return fallback, nil
}

type discardWriter struct{}

func (discardWriter) Write(string, []byte) error { return nil }
