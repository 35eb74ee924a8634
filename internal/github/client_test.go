package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rendis/catalog/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory issues comments API.
type fakeAPI struct {
	mu       sync.Mutex
	comments []Comment
	nextID   int64
	requests []string
}

var botUser = User{Login: DefaultBotLogin, Type: "Bot"}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/catalog/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))

		switch r.Method {
		case http.MethodGet:
			page, _ := strconv.Atoi(r.URL.Query().Get("page"))
			per, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
			start := (page - 1) * per
			end := start + per
			if start > len(f.comments) {
				start = len(f.comments)
			}
			if end > len(f.comments) {
				end = len(f.comments)
			}
			_ = json.NewEncoder(w).Encode(f.comments[start:end])
		case http.MethodPost:
			var in map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			f.nextID++
			c := Comment{ID: f.nextID, Body: in["body"], User: botUser,
				HTMLURL: fmt.Sprintf("https://github.com/acme/catalog/pull/7#issuecomment-%d", f.nextID)}
			f.comments = append(f.comments, c)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(c)
		}
	})
	mux.HandleFunc("/repos/acme/catalog/issues/comments/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		id, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/repos/acme/catalog/issues/comments/"), 10, 64)
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		for i := range f.comments {
			if f.comments[i].ID == id {
				f.comments[i].Body = in["body"]
				_ = json.NewEncoder(w).Encode(f.comments[i])
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})
	return mux
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{APIURL: srv.URL + "/", Token: "tok", Repository: "acme/catalog"})
	require.NoError(t, err)
	return c
}

func TestNewClient_Config(t *testing.T) {
	_, err := NewClient(Config{Repository: "acme/catalog"})
	assert.True(t, schema.HasCode(err, schema.ErrCodeConfig))

	for _, repo := range []string{"", "acme", "acme/", "/catalog", "a/b/c"} {
		_, err := NewClient(Config{Token: "t", Repository: repo})
		assert.True(t, schema.HasCode(err, schema.ErrCodeConfig), repo)
	}

	c, err := NewClient(Config{Token: "t", Repository: "acme/catalog"})
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, c.cfg.APIURL)
}

func TestUpsert_CreatesThenUpdates(t *testing.T) {
	api := &fakeAPI{comments: []Comment{{ID: 100, Body: "unrelated"}}, nextID: 100}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	first, created, err := c.Upsert(ctx, 7, "<!-- m -->", "<!-- m -->\nv1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(101), first.ID)

	second, created, err := c.Upsert(ctx, 7, "<!-- m -->", "<!-- m -->\nv2")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "<!-- m -->\nv2", second.Body)

	require.Len(t, api.comments, 2)
	assert.Equal(t, []string{
		"GET /repos/acme/catalog/issues/7/comments",
		"POST /repos/acme/catalog/issues/7/comments",
		"GET /repos/acme/catalog/issues/7/comments",
		"PATCH /repos/acme/catalog/issues/comments/101",
	}, api.requests)
}

func TestUpsert_IgnoresMarkerFromOtherAuthors(t *testing.T) {
	api := &fakeAPI{comments: []Comment{
		{ID: 7, Body: "<!-- m -->\nlooks good to me", User: User{Login: "attacker", Type: "User"}},
		{ID: 8, Body: "quoting <!-- m --> here", User: botUser},
	}, nextID: 100}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv)

	got, created, err := c.Upsert(context.Background(), 7, "<!-- m -->", "<!-- m -->\nresult")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(101), got.ID)
	assert.Equal(t, "<!-- m -->\nlooks good to me", api.comments[0].Body)
	assert.Equal(t, "quoting <!-- m --> here", api.comments[1].Body)
	assert.NotContains(t, api.requests, "PATCH /repos/acme/catalog/issues/comments/7")
}

func TestUpsert_CustomBotLogin(t *testing.T) {
	api := &fakeAPI{comments: []Comment{
		{ID: 5, Body: "<!-- m -->\nold", User: User{Login: "Catalog-Bot", Type: "Bot"}},
	}, nextID: 100}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	c, err := NewClient(Config{APIURL: srv.URL, Token: "tok", Repository: "acme/catalog", BotLogin: "catalog-bot"})
	require.NoError(t, err)

	got, created, err := c.Upsert(context.Background(), 7, "<!-- m -->", "<!-- m -->\nnew")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(5), got.ID)
}

func TestListComments_Paginates(t *testing.T) {
	api := &fakeAPI{}
	for i := 0; i < perPage+5; i++ {
		api.comments = append(api.comments, Comment{ID: int64(i + 1), Body: "c"})
	}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	comments, err := newTestClient(t, srv).ListComments(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, comments, perPage+5)
	assert.Len(t, api.requests, 2)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Resource not accessible by integration","documentation_url":"https://docs"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).CreateComment(context.Background(), 7, "x")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeGitHub))
	assert.Contains(t, err.Error(), "403 Resource not accessible by integration")
}

func TestPost(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv)

	url, err := c.Post(context.Background(), 7, "<!-- m -->", "<!-- m -->")
	require.NoError(t, err)
	assert.Contains(t, url, "issuecomment-1")

	_, err = c.Post(context.Background(), 0, "m", "b")
	assert.Error(t, err)
}

func TestPrintPoster(t *testing.T) {
	var buf bytes.Buffer
	url, err := PrintPoster{W: &buf}.Post(context.Background(), 0, "m", "hello")
	require.NoError(t, err)
	assert.Empty(t, url)
	assert.Equal(t, "hello", buf.String())
}
