package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVideoID(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?list=PL123&v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ?t=42", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"  dQw4w9WgXcQ  ", "dQw4w9WgXcQ"},
		{"rick astley never gonna give you up", ""},
		{"https://example.com/watch?v=dQw4w9WgXcQ", ""},
		{"tooShort", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractVideoID(tc.input), tc.input)
	}
}

func TestSearchWrappedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cats", r.URL.Query().Get("q"))
		w.Write([]byte(`{"items":[
			{"url":"/watch?v=aaaaaaaaaaa","title":"First","uploaderName":"alice"},
			{"videoId":"bbbbbbbbbbb","title":"Second","author":"bob"},
			{"title":"no id, skipped"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient([]string{srv.URL}, "")
	got, err := c.Search(context.Background(), "cats")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "aaaaaaaaaaa", got[0].ID)
	assert.Equal(t, "First", got[0].Title)
	assert.Equal(t, "alice", got[0].Author)
	assert.Equal(t, "https://img.youtube.com/vi/aaaaaaaaaaa/mqdefault.jpg", got[0].Thumbnail)
	assert.Equal(t, "bbbbbbbbbbb", got[1].ID)
	assert.Equal(t, "bob", got[1].Author)
}

func TestSearchBareArrayShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"videoId":"ccccccccccc","title":"Bare"}]`))
	}))
	defer srv.Close()

	c := NewClient([]string{srv.URL}, "")
	got, err := c.Search(context.Background(), "dogs")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ccccccccccc", got[0].ID)
}

func TestSearchCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"videoId":"aaaaaaaaaa1","title":"1"},{"videoId":"aaaaaaaaaa2","title":"2"},
			{"videoId":"aaaaaaaaaa3","title":"3"},{"videoId":"aaaaaaaaaa4","title":"4"},
			{"videoId":"aaaaaaaaaa5","title":"5"},{"videoId":"aaaaaaaaaa6","title":"6"},
			{"videoId":"aaaaaaaaaa7","title":"7"},{"videoId":"aaaaaaaaaa8","title":"8"}
		]`))
	}))
	defer srv.Close()

	c := NewClient([]string{srv.URL}, "")
	got, err := c.Search(context.Background(), "lots")
	require.NoError(t, err)
	assert.Len(t, got, maxResults)
}

func TestSearchFallsThroughInstances(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"videoId":"ddddddddddd","title":"Rescue"}]}`))
	}))
	defer good.Close()

	c := NewClient([]string{bad.URL, good.URL}, "")
	got, err := c.Search(context.Background(), "x")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ddddddddddd", got[0].ID)
}

func TestSearchAllInstancesDown(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	c := NewClient([]string{bad.URL}, "")
	_, err := c.Search(context.Background(), "x")
	assert.Error(t, err)
}

func TestFetchInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("url"), "dQw4w9WgXcQ")
		w.Write([]byte(`{"title":"Never Gonna Give You Up","author_name":"Rick Astley"}`))
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL)
	v := c.FetchInfo(context.Background(), "dQw4w9WgXcQ")
	assert.Equal(t, "dQw4w9WgXcQ", v.ID)
	assert.Equal(t, "Never Gonna Give You Up", v.Title)
	assert.Equal(t, "Rick Astley", v.Author)
	assert.Equal(t, "https://img.youtube.com/vi/dQw4w9WgXcQ/mqdefault.jpg", v.Thumbnail)
}

func TestFetchInfoDegradesToPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"404 Not Found"}`))
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL)
	v := c.FetchInfo(context.Background(), "dQw4w9WgXcQ")
	assert.Equal(t, "Video dQw4w9WgXcQ", v.Title)
	assert.Empty(t, v.Author)

	srv.Close()
	v = c.FetchInfo(context.Background(), "dQw4w9WgXcQ")
	assert.Equal(t, "Video dQw4w9WgXcQ", v.Title, "unreachable service degrades too")
}

func TestResolveLinkYieldsSingleCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title":"Direct Hit","author_name":"a"}`))
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL)
	got, err := c.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Direct Hit", got[0].Title)
}
