package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"murmur/internal/config"
	"murmur/internal/entry"
	"murmur/internal/jobs"
	"murmur/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

type fakeAI struct{}

func (fakeAI) Transcribe(ctx context.Context, audioURI string) (string, error) {
	return "plan the trip next week", nil
}

func (fakeAI) Summarize(ctx context.Context, transcript string) (entry.Summary, error) {
	return entry.Summary{Title: "Trip planning", Bullets: []string{"Book flights", "Reserve hotel"}}, nil
}

func (fakeAI) SuggestTags(ctx context.Context, transcript, summary string) ([]string, error) {
	return []string{"travel"}, nil
}

func (fakeAI) Health(ctx context.Context) (bool, string, error) {
	return true, "fake-ai", nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dsn := fmt.Sprintf("file:httptest%d?mode=memory&cache=shared", dbSeq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(
		&workspace.Workspace{}, &entry.Entry{}, &entry.Tag{}, &entry.EntryTag{}, &jobs.AiJob{},
	))

	wsSvc := &workspace.Service{DB: gdb}
	defaultWS, err := wsSvc.EnsureDefault(context.Background())
	require.NoError(t, err)

	ai := fakeAI{}
	queue := &jobs.Queue{DB: gdb}
	store := &entry.Store{DB: gdb}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	worker := jobs.NewWorker(queue, store, ai, log, 3)

	r := NewRouter(config.Config{}, Deps{
		DB:        gdb,
		JWT:       workspace.NewJWT("test-secret"),
		Queue:     queue,
		Worker:    worker,
		AI:        ai,
		DefaultWS: defaultWS.ID,
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, token string, payload any) *stdhttp.Response {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := stdhttp.NewRequest(stdhttp.MethodPost, url, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := stdhttp.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func getJSON(t *testing.T, url, token string, out any) int {
	t.Helper()
	req, err := stdhttp.NewRequest(stdhttp.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := stdhttp.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == stdhttp.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestCreateEntryRunsPipelineEndToEnd(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/entries", "", map[string]any{
		"audio_uri":    "/audio/note.m4a",
		"duration_sec": 12,
	})
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode)

	var created struct {
		ID       string `json:"id"`
		AIStatus string `json:"ai_status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "queued", created.AIStatus)

	var got struct {
		AIStatus   string  `json:"ai_status"`
		Transcript *string `json:"transcript"`
		Summary    *struct {
			Title   string   `json:"title"`
			Bullets []string `json:"bullets"`
		} `json:"summary"`
		Tags []string `json:"tags"`
	}
	require.Eventually(t, func() bool {
		code := getJSON(t, srv.URL+"/entries/"+created.ID, "", &got)
		return code == stdhttp.StatusOK && got.AIStatus == "summarized"
	}, 5*time.Second, 20*time.Millisecond)

	require.NotNil(t, got.Transcript)
	assert.Equal(t, "plan the trip next week", *got.Transcript)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "Trip planning", got.Summary.Title)
	assert.Equal(t, []string{"Book flights", "Reserve hotel"}, got.Summary.Bullets)
	assert.Equal(t, []string{"travel"}, got.Tags)
}

func TestWorkspaceIsolationOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	// one entry in the default workspace
	resp := postJSON(t, srv.URL+"/entries", "", map[string]any{"audio_uri": "/a.m4a"})
	resp.Body.Close()
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode)

	// a registered workspace sees none of it
	resp = postJSON(t, srv.URL+"/workspaces/register", "", map[string]any{
		"name": "team-a", "secret": "hunter22xyz",
	})
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode)
	var tok struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	resp.Body.Close()

	var mine []json.RawMessage
	code := getJSON(t, srv.URL+"/entries", tok.Token, &mine)
	require.Equal(t, stdhttp.StatusOK, code)
	assert.Empty(t, mine)

	var theirs []json.RawMessage
	code = getJSON(t, srv.URL+"/entries", "", &theirs)
	require.Equal(t, stdhttp.StatusOK, code)
	assert.Len(t, theirs, 1)
}

func TestRetryEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/entries", "", map[string]any{"audio_uri": "/a.m4a"})
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	var got struct {
		AIStatus string `json:"ai_status"`
	}
	require.Eventually(t, func() bool {
		code := getJSON(t, srv.URL+"/entries/"+created.ID, "", &got)
		return code == stdhttp.StatusOK && got.AIStatus == "summarized"
	}, 5*time.Second, 20*time.Millisecond)

	// pipeline is idle, so retry enqueues a fresh summarize run
	resp = postJSON(t, srv.URL+"/entries/"+created.ID+"/retry", "", map[string]any{})
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	var retried struct {
		Enqueued bool `json:"enqueued"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&retried))
	resp.Body.Close()
	assert.True(t, retried.Enqueued)

	require.Eventually(t, func() bool {
		code := getJSON(t, srv.URL+"/entries/"+created.ID, "", &got)
		return code == stdhttp.StatusOK && got.AIStatus == "summarized"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var got struct {
		OK        bool   `json:"ok"`
		AIOK      bool   `json:"ai_ok"`
		AIService string `json:"ai_service"`
	}
	code := getJSON(t, srv.URL+"/health", "", &got)
	require.Equal(t, stdhttp.StatusOK, code)
	assert.True(t, got.OK)
	assert.True(t, got.AIOK)
	assert.Equal(t, "fake-ai", got.AIService)
}

func TestGetUnknownEntry(t *testing.T) {
	srv := newTestServer(t)
	code := getJSON(t, srv.URL+"/entries/does-not-exist", "", nil)
	assert.Equal(t, stdhttp.StatusNotFound, code)
}
