package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/willingning/minote-sync/internal/apperr"
	"github.com/willingning/minote-sync/internal/checksum"
	"github.com/willingning/minote-sync/internal/gateway"
	"github.com/willingning/minote-sync/internal/models"
)

// AssetsDir is the per-note subfolder attachments are written into.
const AssetsDir = "assets"

// Writer persists asset bytes at a path relative to the sync root.
// Satisfied by storage.Root; the engine substitutes a no-op in dry
// runs.
type Writer interface {
	Write(rel string, data []byte) error
}

// Result is the outcome of resolving one note's attachments.
type Result struct {
	// Paths maps reference id to the note-relative embed path
	// ("assets/<id>.<ext>") for every attachment that made it to disk.
	Paths map[string]string

	// Attachments describes each resolved asset, in reference order.
	Attachments []models.Attachment

	// Hashes are the content fingerprints of the written assets,
	// sorted for stable manifest comparison.
	Hashes []string

	// Failures lists attachments that could not be fetched or
	// written; the owning note is still synced with markers.
	Failures []models.AttachmentFailure
}

// Resolver downloads and classifies the attachments of a single note.
type Resolver struct {
	gw     gateway.Client
	rule   Rule
	fanOut int
	logger *slog.Logger
}

// NewResolver builds a resolver with a bounded download fan-out.
func NewResolver(gw gateway.Client, rule Rule, fanOut int, logger *slog.Logger) *Resolver {
	if fanOut < 1 {
		fanOut = 1
	}
	return &Resolver{gw: gw, rule: rule, fanOut: fanOut, logger: logger}
}

type fetched struct {
	att  models.Attachment
	data []byte
	err  error
}

// Resolve fetches every referenced attachment concurrently and writes
// the bytes under noteDir/assets. A failed attachment is recorded and
// skipped, never fatal; only authentication rejection or cancellation
// aborts.
func (r *Resolver) Resolve(ctx context.Context, noteID, noteDir string, refs []models.AttachmentRef, w Writer) (*Result, error) {
	// Deduplicate by reference id, first declaration wins.
	uniq := refs[:0:0]
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if _, dup := seen[ref.ID]; dup {
			continue
		}
		seen[ref.ID] = struct{}{}
		uniq = append(uniq, ref)
	}

	slots := make([]fetched, len(uniq))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fanOut)
	for i, ref := range uniq {
		i, ref := i, ref
		g.Go(func() error {
			att, data, err := r.fetchOne(gctx, ref)
			if err != nil && (errors.Is(err, apperr.ErrAuth) || gctx.Err() != nil) {
				return err
			}
			slots[i] = fetched{att: att, data: data, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Paths: make(map[string]string)}
	for i, f := range slots {
		if f.err != nil {
			r.logger.Warn("attachment fetch failed",
				slog.String("note_id", noteID),
				slog.String("attachment_id", uniq[i].ID),
				slog.String("error", f.err.Error()))
			res.Failures = append(res.Failures, models.AttachmentFailure{
				NoteID:       noteID,
				AttachmentID: uniq[i].ID,
				Err:          f.err.Error(),
			})
			continue
		}
		rel := path.Join(noteDir, f.att.LocalPath)
		if err := w.Write(rel, f.data); err != nil {
			res.Failures = append(res.Failures, models.AttachmentFailure{
				NoteID:       noteID,
				AttachmentID: f.att.ID,
				Err:          fmt.Errorf("assets: write %s: %w", rel, err).Error(),
			})
			continue
		}
		res.Paths[f.att.ID] = f.att.LocalPath
		res.Attachments = append(res.Attachments, f.att)
		res.Hashes = append(res.Hashes, checksum.Sum(f.data))
	}
	sort.Strings(res.Hashes)
	return res, nil
}

// fetchOne downloads a single attachment and settles its kind and
// extension. The id-shape classification only picks the download
// strategy and the fallback extension; the transfer response has the
// final word.
func (r *Resolver) fetchOne(ctx context.Context, ref models.AttachmentRef) (models.Attachment, []byte, error) {
	guess := r.rule.Classify(ref)
	payload, err := r.gw.GetAttachment(ctx, ref.ID, guess)
	if err != nil {
		if errors.Is(err, apperr.ErrAuth) || ctx.Err() != nil {
			return models.Attachment{}, nil, err
		}
		return models.Attachment{}, nil, fmt.Errorf("%w: %v", apperr.ErrAttachment, err)
	}
	kind, ext := resolveType(payload.ContentType, payload.Data, guess)
	att := models.Attachment{
		ID:           ref.ID,
		DeclaredKind: ref.DeclaredKind,
		ResolvedKind: kind,
		ContentType:  payload.ContentType,
		LocalPath:    path.Join(AssetsDir, ref.ID+ext),
	}
	return att, payload.Data, nil
}
