package assets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/willingning/minote-sync/internal/apperr"
	"github.com/willingning/minote-sync/internal/gateway"
	"github.com/willingning/minote-sync/internal/models"
	"github.com/willingning/minote-sync/internal/testutil"
)

type memWriter struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (w *memWriter) Write(rel string, data []byte) error {
	if w.err != nil {
		return w.err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files == nil {
		w.files = make(map[string][]byte)
	}
	w.files[rel] = data
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(gw gateway.Client) *Resolver {
	return NewResolver(gw, Rule{AudioIDMinLength: 30}, 4, testLogger())
}

func TestResolve_WritesAssetsAndHashes(t *testing.T) {
	gw := &testutil.FakeGateway{
		Attachments: map[string]*gateway.AttachmentPayload{
			"img1": {Data: []byte("pixels"), ContentType: "image/png"},
		},
	}
	w := &memWriter{}
	res, err := newTestResolver(gw).Resolve(context.Background(), "n1", "Notes", []models.AttachmentRef{
		{ID: "img1", DeclaredKind: models.KindImage},
	}, w)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Paths["img1"]; got != "assets/img1.png" {
		t.Errorf("path = %q", got)
	}
	if _, ok := w.files["Notes/assets/img1.png"]; !ok {
		t.Errorf("asset not written, files = %v", w.files)
	}
	if len(res.Hashes) != 1 {
		t.Errorf("hashes = %v", res.Hashes)
	}
}

func TestResolve_MislabeledAudioGetsAudioExtension(t *testing.T) {
	id := strings.Repeat("a", 40)
	gw := &testutil.FakeGateway{
		Attachments: map[string]*gateway.AttachmentPayload{
			id: {Data: []byte("sound"), ContentType: "audio/mp4"},
		},
	}
	w := &memWriter{}
	res, err := newTestResolver(gw).Resolve(context.Background(), "n1", "Notes", []models.AttachmentRef{
		{ID: id, DeclaredKind: models.KindImage},
	}, w)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Paths[id]; got != "assets/"+id+".m4a" {
		t.Errorf("path = %q", got)
	}
	if res.Attachments[0].ResolvedKind != models.KindAudio {
		t.Errorf("resolved kind = %v", res.Attachments[0].ResolvedKind)
	}
}

func TestResolve_DeduplicatesRefs(t *testing.T) {
	gw := &testutil.FakeGateway{}
	w := &memWriter{}
	refs := []models.AttachmentRef{
		{ID: "a", DeclaredKind: models.KindImage},
		{ID: "a", DeclaredKind: models.KindAudio},
	}
	res, err := newTestResolver(gw).Resolve(context.Background(), "n1", "Notes", refs, w)
	if err != nil {
		t.Fatal(err)
	}
	if gw.AttachmentCalls["a"] != 1 {
		t.Errorf("fetch count = %d", gw.AttachmentCalls["a"])
	}
	if len(res.Attachments) != 1 {
		t.Errorf("attachments = %d", len(res.Attachments))
	}
}

func TestResolve_FailureRecordedNotFatal(t *testing.T) {
	gw := &testutil.FakeGateway{
		AttachmentErr: map[string]error{"bad": errors.New("gone")},
	}
	w := &memWriter{}
	res, err := newTestResolver(gw).Resolve(context.Background(), "n1", "Notes", []models.AttachmentRef{
		{ID: "bad", DeclaredKind: models.KindImage},
		{ID: "good", DeclaredKind: models.KindImage},
	}, w)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failures) != 1 || res.Failures[0].AttachmentID != "bad" {
		t.Errorf("failures = %+v", res.Failures)
	}
	if _, ok := res.Paths["good"]; !ok {
		t.Error("healthy attachment should still resolve")
	}
}

func TestResolve_AuthIsFatal(t *testing.T) {
	gw := &testutil.FakeGateway{
		AttachmentErr: map[string]error{"a": apperr.ErrAuth},
	}
	_, err := newTestResolver(gw).Resolve(context.Background(), "n1", "Notes", []models.AttachmentRef{
		{ID: "a", DeclaredKind: models.KindImage},
	}, &memWriter{})
	if !errors.Is(err, apperr.ErrAuth) {
		t.Errorf("err = %v, want ErrAuth", err)
	}
}

func TestResolve_WriteFailureRecorded(t *testing.T) {
	gw := &testutil.FakeGateway{}
	w := &memWriter{err: errors.New("disk full")}
	res, err := newTestResolver(gw).Resolve(context.Background(), "n1", "Notes", []models.AttachmentRef{
		{ID: "a", DeclaredKind: models.KindImage},
	}, w)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failures) != 1 {
		t.Errorf("failures = %+v", res.Failures)
	}
}
