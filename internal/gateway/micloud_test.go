package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/willingning/minote-sync/internal/apperr"
	"github.com/willingning/minote-sync/internal/models"
)

func newTestClient(srv *httptest.Server) *MiCloud {
	return NewMiCloud(srv.URL, "serviceToken=test", 5*time.Second, Backoff{MaxAttempts: 1, Base: time.Millisecond, Max: time.Millisecond})
}

func TestListNotes_Pagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/note/full/page/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Cookie") != "serviceToken=test" {
			t.Error("cookie header missing")
		}
		switch r.URL.Query().Get("syncTag") {
		case "":
			fmt.Fprint(w, `{"data":{
				"folders":[{"id":10,"subject":"Work","parentId":0}],
				"entries":[{"id":1,"folderId":10,"snippet":"first line\nrest","tag":101,"createDate":1700000000000,"modifyDate":1700000001000}],
				"syncTag":"page2"}}`)
		case "page2":
			fmt.Fprint(w, `{"data":{
				"folders":[{"id":10,"subject":"Work","parentId":0}],
				"entries":[{"id":2,"folderId":0,"extraInfo":"{\"title\":\"Titled\"}","snippet":"ignored","tag":202,"createDate":1700000002000,"modifyDate":1700000003000}],
				"syncTag":"page2"}}`)
		default:
			t.Errorf("unexpected syncTag %q", r.URL.Query().Get("syncTag"))
		}
	}))
	defer srv.Close()

	c := newTestClient(srv)
	notes, err := c.ListNotes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 2 {
		t.Fatalf("notes = %d, want 2 across pages", len(notes))
	}
	if notes[0].ID != "1" || notes[0].Title != "first line" || notes[0].FolderID != "10" || notes[0].Revision != "101" {
		t.Errorf("note[0] = %+v", notes[0])
	}
	if notes[1].Title != "Titled" || notes[1].FolderID != "" {
		t.Errorf("note[1] = %+v", notes[1])
	}

	folders, err := c.ListFolders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(folders) != 1 || folders[0].ID != "10" || folders[0].Name != "Work" || folders[0].ParentID != "" {
		t.Errorf("folders = %+v", folders)
	}
}

func TestListNotes_AuthRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListNotes(context.Background())
	if !errors.Is(err, apperr.ErrAuth) {
		t.Errorf("err = %v, want ErrAuth", err)
	}
}

func TestListNotes_RetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"data":{"entries":[{"id":1,"tag":1}],"syncTag":""}}`)
	}))
	defer srv.Close()

	notes, err := newTestClient(srv).ListNotes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Errorf("notes = %d", len(notes))
	}
	if calls != 2 {
		t.Errorf("calls = %d", calls)
	}
}

func TestGetNoteContent_GathersAllRefSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/note/note/n1/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":{"entry":{
			"content":"hello <img fileid=\"img1\" /> world",
			"extraInfo":"{\"voice_list\":[{\"fileId\":\"voice1\"}]}",
			"setting":"{\"data\":[{\"fileId\":\"img1\"},{\"fileId\":\"extra1\"}]}"}}}`)
	}))
	defer srv.Close()

	content, err := newTestClient(srv).GetNoteContent(context.Background(), "n1")
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]models.AttachmentKind{}
	for _, r := range content.AttachmentRefs {
		got[r.ID] = r.DeclaredKind
	}
	if len(got) != 3 {
		t.Fatalf("refs = %+v", content.AttachmentRefs)
	}
	if got["img1"] != models.KindImage {
		t.Errorf("img1 kind = %v", got["img1"])
	}
	if got["voice1"] != models.KindAudio {
		t.Errorf("voice1 kind = %v", got["voice1"])
	}
	if got["extra1"] != models.KindUnknown {
		t.Errorf("extra1 kind = %v", got["extra1"])
	}
}

func TestGetAttachment_TriesTypesUntilPlausible(t *testing.T) {
	big := bytes.Repeat([]byte("a"), 2000)
	var tried []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tp := r.URL.Query().Get("type")
		tried = append(tried, tp)
		if tp == "note_voice" {
			w.Header().Set("Content-Type", "audio/mp4")
			w.Write(big)
			return
		}
		// Small HTML error page with status 200.
		fmt.Fprint(w, "<html>not found</html>")
	}))
	defer srv.Close()

	payload, err := newTestClient(srv).GetAttachment(context.Background(), "a1", models.KindAudio)
	if err != nil {
		t.Fatal(err)
	}
	if payload.ContentType != "audio/mp4" || len(payload.Data) != 2000 {
		t.Errorf("payload = %q %d bytes", payload.ContentType, len(payload.Data))
	}
	if len(tried) != 1 || tried[0] != "note_voice" {
		t.Errorf("tried = %v, want audio hint first", tried)
	}
}

func TestGetAttachment_ExhaustsTypes(t *testing.T) {
	var tried []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tried = append(tried, r.URL.Query().Get("type"))
		fmt.Fprint(w, "nope")
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetAttachment(context.Background(), "a1", models.KindImage)
	if err == nil {
		t.Fatal("want error after exhausting endpoint types")
	}
	want := []string{"note_img", "file", "note_voice", "note_audio"}
	if len(tried) != len(want) {
		t.Fatalf("tried = %v", tried)
	}
	for i := range want {
		if tried[i] != want[i] {
			t.Errorf("tried[%d] = %s, want %s", i, tried[i], want[i])
		}
	}
}

func TestGetAttachment_AuthAbortsTypeLoop(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetAttachment(context.Background(), "a1", models.KindImage)
	if !errors.Is(err, apperr.ErrAuth) {
		t.Errorf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want no further types after auth rejection", calls)
	}
}
