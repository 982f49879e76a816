package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, feedXML, now.Format(http.TimeFormat))
	})
	mux.HandleFunc("/blog/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head>
			<link rel="alternate" type="text/html" href="/other">
			<link rel="alternate" type="application/rss+xml" href="../feed.xml">
		</head><body>hello</body></html>`)
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>No feed</title></head></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t)

	t.Run("feed url", func(t *testing.T) {
		d, err := c.Discover(context.Background(), srv.URL+"/feed.xml")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/feed.xml", d.URL)
		assert.Equal(t, "Example", d.Title)
		assert.Equal(t, 3, d.Items)
	})

	t.Run("page with alternate link", func(t *testing.T) {
		d, err := c.Discover(context.Background(), srv.URL+"/blog/")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/feed.xml", d.URL)
	})

	t.Run("page without feed", func(t *testing.T) {
		_, err := c.Discover(context.Background(), srv.URL+"/plain")
		assert.ErrorIs(t, err, ErrNoFeed)
	})
}
