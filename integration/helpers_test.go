package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"messageboard/app"
	"messageboard/config"
	"messageboard/models"
)

// board is one running application over a fresh SQLite file.
type board struct {
	app *app.App
	srv *httptest.Server
}

func startBoard(t *testing.T) *board {
	t.Helper()
	cfg := config.Config{
		HTTPAddr:         "127.0.0.1:0",
		ShutdownTimeout:  time.Second,
		StoreDriver:      config.DriverSQLite,
		SQLitePath:       filepath.Join(t.TempDir(), "board.db"),
		MaxMessageLength: 1000,
		OIDCMaxAttempts:  1,
	}
	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return &board{app: a, srv: srv}
}

// createMessage stores a record directly and deletes it at teardown.
func (b *board) createMessage(t *testing.T, text string) models.Message {
	t.Helper()
	ctx := context.Background()
	msg := models.Message{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, b.app.Repository().InsertMessage(ctx, msg))
	t.Cleanup(func() { _ = b.app.Repository().DeleteMessage(ctx, msg.ID) })
	return msg
}

// visit fetches path and returns the text a reader would see on the page.
func (b *board) visit(t *testing.T, path string) string {
	t.Helper()
	resp, err := http.Get(b.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc, err := html.Parse(resp.Body)
	require.NoError(t, err)
	return pageText(doc)
}

func pageText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "head") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
