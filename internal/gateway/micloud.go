package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/willingning/minote-sync/internal/apperr"
	"github.com/willingning/minote-sync/internal/models"
	"github.com/willingning/minote-sync/internal/transform"
)

const (
	listPageLimit = 200

	// The service answers some bad attachment requests with a small
	// HTML error page and status 200; anything below this size is
	// treated as one.
	minAssetBytes = 1000
)

// Endpoint types tried when downloading an attachment. Recordings hide
// behind different types than images, so the order depends on the
// classifier's hint.
var (
	imageTypeOrder = []string{"note_img", "file", "note_voice", "note_audio"}
	audioTypeOrder = []string{"note_voice", "note_audio", "file", "note_img"}
)

// MiCloud is the HTTP client for the Xiaomi cloud note service. A
// single paginated listing feeds both ListFolders and ListNotes, so
// the first of the two triggers the fetch and the other reuses it.
type MiCloud struct {
	baseURL string
	cookie  string
	client  *http.Client
	backoff Backoff

	mu      sync.Mutex
	loaded  bool
	folders []models.Folder
	notes   []models.NoteSummary
}

// NewMiCloud builds a client for baseURL authenticated by cookie.
func NewMiCloud(baseURL, cookie string, timeout time.Duration, backoff Backoff) *MiCloud {
	return &MiCloud{
		baseURL: strings.TrimRight(baseURL, "/"),
		cookie:  cookie,
		client:  &http.Client{Timeout: timeout},
		backoff: backoff,
	}
}

func (c *MiCloud) headers(req *http.Request) {
	req.Header.Set("Cookie", c.cookie)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Referer", c.baseURL+"/note/h5")
	req.Header.Set("Origin", c.baseURL)
}

// get performs one retried GET and returns body and content type.
func (c *MiCloud) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	var body []byte
	var ctype string
	err := Retry(ctx, c.backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("gateway: build request: %w", err)
		}
		c.headers(req)
		resp, err := c.client.Do(req)
		if err != nil {
			return transient(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: status %d", apperr.ErrAuth, resp.StatusCode)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			return transient(fmt.Errorf("status %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("%w: status %d", apperr.ErrNetwork, resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return transient(err)
		}
		ctype = resp.Header.Get("Content-Type")
		return nil
	})
	return body, ctype, err
}

func (c *MiCloud) getJSON(ctx context.Context, rawURL string, out any) error {
	body, _, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("gateway: decode %s: %w", rawURL, err)
	}
	return nil
}

func ts() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

type listPage struct {
	Data struct {
		Folders []struct {
			ID       json.Number `json:"id"`
			Subject  string      `json:"subject"`
			ParentID json.Number `json:"parentId"`
		} `json:"folders"`
		Entries []struct {
			ID         json.Number `json:"id"`
			FolderID   json.Number `json:"folderId"`
			Snippet    string      `json:"snippet"`
			ExtraInfo  string      `json:"extraInfo"`
			Tag        json.Number `json:"tag"`
			CreateDate int64       `json:"createDate"`
			ModifyDate int64       `json:"modifyDate"`
		} `json:"entries"`
		SyncTag string `json:"syncTag"`
	} `json:"data"`
}

// ensureListing pages through the full note listing once, following
// syncTag continuations, and caches folders and summaries.
func (c *MiCloud) ensureListing(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	seenFolder := make(map[string]struct{})
	syncTag := ""
	for {
		u := c.baseURL + "/note/full/page/?limit=" + strconv.Itoa(listPageLimit) + "&ts=" + ts()
		if syncTag != "" {
			u += "&syncTag=" + url.QueryEscape(syncTag)
		}
		var page listPage
		if err := c.getJSON(ctx, u, &page); err != nil {
			return err
		}

		for _, f := range page.Data.Folders {
			id := f.ID.String()
			if _, dup := seenFolder[id]; dup {
				continue
			}
			seenFolder[id] = struct{}{}
			parent := f.ParentID.String()
			if parent == "0" {
				parent = ""
			}
			c.folders = append(c.folders, models.Folder{ID: id, Name: f.Subject, ParentID: parent})
		}
		for _, e := range page.Data.Entries {
			folderID := e.FolderID.String()
			if folderID == "0" {
				folderID = ""
			}
			revision := e.Tag.String()
			if revision == "" {
				revision = strconv.FormatInt(e.ModifyDate, 10)
			}
			c.notes = append(c.notes, models.NoteSummary{
				ID:        e.ID.String(),
				FolderID:  folderID,
				Title:     entryTitle(e.ExtraInfo, e.Snippet),
				Revision:  revision,
				CreatedAt: time.UnixMilli(e.CreateDate),
				UpdatedAt: time.UnixMilli(e.ModifyDate),
			})
		}

		if page.Data.SyncTag == "" || page.Data.SyncTag == syncTag {
			break
		}
		syncTag = page.Data.SyncTag
	}
	c.loaded = true
	return nil
}

// entryTitle prefers the extraInfo title, then the first snippet line.
func entryTitle(extraInfo, snippet string) string {
	if extraInfo != "" {
		var extra struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal([]byte(extraInfo), &extra); err == nil && extra.Title != "" {
			return extra.Title
		}
	}
	line := snippet
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// ListFolders returns the remote folder collection.
func (c *MiCloud) ListFolders(ctx context.Context) ([]models.Folder, error) {
	if err := c.ensureListing(ctx); err != nil {
		return nil, err
	}
	return c.folders, nil
}

// ListNotes returns summaries for every remote note.
func (c *MiCloud) ListNotes(ctx context.Context) ([]models.NoteSummary, error) {
	if err := c.ensureListing(ctx); err != nil {
		return nil, err
	}
	return c.notes, nil
}

type noteDetail struct {
	Data struct {
		Entry struct {
			Content   string `json:"content"`
			Setting   string `json:"setting"`
			ExtraInfo string `json:"extraInfo"`
		} `json:"entry"`
	} `json:"data"`
}

// GetNoteContent fetches a note's full body and gathers its attachment
// references: embeds found in the content, the voice list from
// extraInfo, and any resources declared in the setting blob.
func (c *MiCloud) GetNoteContent(ctx context.Context, id string) (*models.NoteContent, error) {
	var detail noteDetail
	u := c.baseURL + "/note/note/" + url.PathEscape(id) + "/?ts=" + ts()
	if err := c.getJSON(ctx, u, &detail); err != nil {
		return nil, err
	}

	entry := detail.Data.Entry
	refs := transform.ExtractRefs(entry.Content)
	seen := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		seen[r.ID] = struct{}{}
	}
	add := func(id string, kind models.AttachmentKind) {
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		refs = append(refs, models.AttachmentRef{ID: id, DeclaredKind: kind})
	}

	for _, vid := range voiceIDs(entry.ExtraInfo) {
		add(vid, models.KindAudio)
	}
	for _, rid := range settingIDs(entry.Setting) {
		add(rid, models.KindUnknown)
	}

	return &models.NoteContent{RawContent: entry.Content, AttachmentRefs: refs}, nil
}

func voiceIDs(extraInfo string) []string {
	if extraInfo == "" {
		return nil
	}
	var extra struct {
		VoiceList []struct {
			FileID string `json:"fileId"`
		} `json:"voice_list"`
		AudioList []struct {
			FileID string `json:"fileId"`
		} `json:"audio_list"`
	}
	if err := json.Unmarshal([]byte(extraInfo), &extra); err != nil {
		return nil
	}
	var ids []string
	for _, v := range extra.VoiceList {
		ids = append(ids, v.FileID)
	}
	for _, v := range extra.AudioList {
		ids = append(ids, v.FileID)
	}
	return ids
}

func settingIDs(setting string) []string {
	if setting == "" {
		return nil
	}
	var s struct {
		Data []struct {
			FileID string `json:"fileId"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(setting), &s); err != nil {
		return nil
	}
	var ids []string
	for _, d := range s.Data {
		ids = append(ids, d.FileID)
	}
	return ids
}

// GetAttachment downloads one asset, trying the service's endpoint
// types in hint order until one yields a plausible body.
func (c *MiCloud) GetAttachment(ctx context.Context, id string, kindHint models.AttachmentKind) (*AttachmentPayload, error) {
	order := imageTypeOrder
	if kindHint == models.KindAudio {
		order = audioTypeOrder
	}

	var lastErr error
	for _, tp := range order {
		u := c.baseURL + "/file/full?type=" + tp + "&fileid=" + url.QueryEscape(id)
		body, ctype, err := c.get(ctx, u)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, apperr.ErrAuth) {
				return nil, err
			}
			lastErr = err
			continue
		}
		if len(body) < minAssetBytes {
			lastErr = fmt.Errorf("gateway: type %s returned %d bytes", tp, len(body))
			continue
		}
		return &AttachmentPayload{Data: body, ContentType: ctype}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no endpoint type served %s", apperr.ErrNetwork, id)
	}
	return nil, lastErr
}

var _ Client = (*MiCloud)(nil)
