package simphttpd

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingFs records how often the document root is touched.
type countingFs struct {
	afero.Fs
	opens atomic.Int64
}

func (fs *countingFs) Open(name string) (afero.File, error) {
	fs.opens.Add(1)
	return fs.Fs.Open(name)
}

func (fs *countingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	fs.opens.Add(1)
	return fs.Fs.OpenFile(name, flag, perm)
}

func (fs *countingFs) Stat(name string) (os.FileInfo, error) {
	fs.opens.Add(1)
	return fs.Fs.Stat(name)
}

func newTestApp(t *testing.T, fs afero.Fs, tweak func(*Config)) (*App, *test.Hook) {
	t.Helper()
	conf := DefaultConfig()
	conf.Root = "/srv"
	conf.ReadTimeout = 5 * time.Second
	conf.WriteTimeout = 5 * time.Second
	conf.ProcessTimeout = 10 * time.Second
	if tweak != nil {
		tweak(&conf)
	}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	app, err := New(conf)
	require.NoError(t, err)
	app.SetLogger(logger)
	app.SetFs(fs)
	return app, hook
}

func memFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

// openConn hands one end of an in-memory pipe to a worker, the way Serve does after accept.
// The returned channel is closed once the worker has torn the connection down.
func openConn(t *testing.T, app *App) (net.Conn, <-chan struct{}) {
	t.Helper()
	server, client := net.Pipe()
	require.NoError(t, app.admission.acquire(context.Background()))
	app.inFlight.Add(1)
	app.workers.Add(1)
	go app.serveConn(context.Background(), server)

	done := make(chan struct{})
	go func() {
		app.workers.Wait()
		close(done)
	}()
	return client, done
}

func waitDone(t *testing.T, done <-chan struct{}, within time.Duration) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(within):
		t.Fatalf("connection still open after %s", within)
	}
}

// serveOne runs one connection lifecycle over an in-memory pipe and returns what the client received.
func serveOne(t *testing.T, app *App, raw string) string {
	t.Helper()
	client, done := openConn(t, app)

	if raw != "" {
		go func() {
			_, _ = client.Write([]byte(raw))
		}()
	}
	require.NoError(t, client.SetReadDeadline(time.Now().Add(10*time.Second)))
	out, err := io.ReadAll(client)
	require.NoError(t, err)
	client.Close()
	waitDone(t, done, 10*time.Second)
	return string(out)
}

func hasMessage(hook *test.Hook, msg string) bool {
	for _, entry := range hook.AllEntries() {
		if entry.Message == msg {
			return true
		}
	}
	return false
}

func TestServeStaticFile(t *testing.T) {
	t.Parallel()
	fs := memFs(t, map[string]string{"/srv/index.html": "<h1>hi</h1>"})
	app, hook := newTestApp(t, fs, nil)

	out := serveOne(t, app, "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 200 OK\r\nConnection: close\r\nContent-Type: text/html\r\nContent-Length: 11\r\n\r\n<h1>hi</h1>", out)
	assert.True(t, hasMessage(hook, "GET / 200 OK"))
	assert.Equal(t, Stats{InFlight: 0, Served: 1}, app.Stats())
}

func TestServeStaticFileInChunks(t *testing.T) {
	t.Parallel()
	content := strings.Repeat("0123456789abcdef", 1024)
	fs := memFs(t, map[string]string{"/srv/data.bin": content})
	app, _ := newTestApp(t, fs, func(c *Config) { c.BufferSize = minBufferSize })

	out := serveOne(t, app, "GET /data.bin HTTP/1.0\r\n\r\n")
	head, body, ok := strings.Cut(out, "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, head, "Content-Type: application/octet-stream")
	assert.Contains(t, head, "Content-Length: 16384")
	assert.Equal(t, content, body)
}

func TestServeStaticNotFound(t *testing.T) {
	t.Parallel()
	fs := memFs(t, map[string]string{"/srv/sub/a.txt": "a"})
	app, hook := newTestApp(t, fs, nil)

	for _, url := range []string{"/missing.html", "/sub", "/sub/"} {
		out := serveOne(t, app, "GET "+url+" HTTP/1.1\r\n\r\n")
		assert.True(t, strings.HasPrefix(out, "HTTP/1.1 404 Not Found\r\n"), url)
		assert.Contains(t, out, "Content-Type: text/html", url)
	}
	assert.True(t, hasMessage(hook, "process request error"))
}

func TestRejectsTraversalBeforeFilesystem(t *testing.T) {
	t.Parallel()
	fs := &countingFs{Fs: memFs(t, map[string]string{"/etc/passwd": "root"})}
	app, _ := newTestApp(t, fs, nil)
	opensBefore := fs.opens.Load()

	for _, url := range []string{"/../etc/passwd", "/a/../../etc/passwd", "/x.cgi?f=..", "?a=1"} {
		out := serveOne(t, app, "GET "+url+" HTTP/1.1\r\n\r\n")
		assert.True(t, strings.HasPrefix(out, "HTTP/1.1 403 Forbidden\r\n"), url)
	}
	out := serveOne(t, app, "GET  HTTP/1.1\r\n\r\n")
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 403 Forbidden\r\n"))
	assert.Equal(t, opensBefore, fs.opens.Load())
}

func TestRejectsProtocolErrors(t *testing.T) {
	t.Parallel()
	app, _ := newTestApp(t, afero.NewMemMapFs(), nil)
	tests := map[string]string{
		"GET / HTTP/2.0\r\n\r\n":      "HTTP/1.1 400 Bad Request\r\n",
		"GET / SPDY\r\n\r\n":          "HTTP/1.1 400 Bad Request\r\n",
		"DELETE / HTTP/1.1\r\n\r\n":   "HTTP/1.1 501 Not Implemented\r\n",
		"get / HTTP/1.1\r\n\r\n":      "HTTP/1.1 501 Not Implemented\r\n",
		"garbage\r\n\r\n":             "HTTP/1.1 400 Bad Request\r\n",
		"GET /index.html\r\n\r\n":     "HTTP/1.1 400 Bad Request\r\n",
	}
	for raw, want := range tests {
		out := serveOne(t, app, raw)
		assert.True(t, strings.HasPrefix(out, want), "%q got %q", raw, out)
	}
}

func TestRoute(t *testing.T) {
	t.Parallel()
	app, _ := newTestApp(t, afero.NewMemMapFs(), func(c *Config) { c.Root = "./htdocs" })
	tests := []struct {
		url, path, query string
		file             string
		cgi              bool
	}{
		{"/", "/", "", "htdocs/index.html", false},
		{"/docs/", "/docs/", "", "htdocs/docs/index.html", false},
		{"/style.css?v=2", "/style.css", "v=2", "htdocs/style.css", false},
		{"/add.cgi?a=1&b=2", "/add.cgi", "a=1&b=2", "htdocs/add.cgi", true},
		{"/bin/run.py", "/bin/run.py", "", "htdocs/bin/run.py", true},
		{"/RUN.PY", "/RUN.PY", "", "htdocs/RUN.PY", true},
		{"/x.cgi.html", "/x.cgi.html", "", "htdocs/x.cgi.html", false},
		{"/form.py?", "/form.py", "", "htdocs/form.py", true},
	}
	for _, tc := range tests {
		request := newRequest(1024)
		require.NoError(t, request.readFrom(strings.NewReader("GET "+tc.url+" HTTP/1.1\r\n\r\n")))
		require.NoError(t, request.parse())
		got, err := app.route(request)
		require.NoError(t, err, tc.url)
		assert.Equal(t, filepath.FromSlash(tc.file), got.path, tc.url)
		assert.Equal(t, tc.cgi, got.cgi, tc.url)
		assert.Equal(t, tc.path, request.Path(), tc.url)
		assert.Equal(t, tc.query, request.Query(), tc.url)
		assert.Equal(t, MethodGet, request.MethodCode())
	}
}

func TestRouteErrors(t *testing.T) {
	t.Parallel()
	app, _ := newTestApp(t, afero.NewMemMapFs(), nil)
	tests := map[string]ErrorKind{
		"GET /../x HTTP/1.1\r\n\r\n": Forbidden,
		"GET / HTTP/0.9\r\n\r\n":     BadVersion,
		"HEAD / HTTP/1.1\r\n\r\n":    NotImplemented,
	}
	for raw, kind := range tests {
		request := newRequest(1024)
		require.NoError(t, request.readFrom(strings.NewReader(raw)))
		require.NoError(t, request.parse())
		_, err := app.route(request)
		assert.True(t, errors.Is(err, kind), raw)
	}
}

func TestResolvePath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, filepath.FromSlash("htdocs/index.html"), resolvePath("./htdocs", "index.html", "/"))
	assert.Equal(t, filepath.FromSlash("htdocs/a/home.htm"), resolvePath("htdocs", "home.htm", "/a/"))
	assert.Equal(t, filepath.FromSlash("/srv/www/x.css"), resolvePath("/srv/www", "index.html", "/x.css"))
}

func TestReadErrorSendsNothing(t *testing.T) {
	t.Parallel()
	app, hook := newTestApp(t, afero.NewMemMapFs(), nil)
	client, done := openConn(t, app)
	client.Close()
	waitDone(t, done, 10*time.Second)
	assert.True(t, hasMessage(hook, "read request error"))
	assert.Equal(t, int64(0), app.Stats().InFlight)
}

func kindLogged(hook *test.Hook, kind ErrorKind) bool {
	for _, entry := range hook.AllEntries() {
		if entry.Data["kind"] == kind.Error() {
			return true
		}
	}
	return false
}

func TestReadTimeoutDropsSlowClient(t *testing.T) {
	t.Parallel()
	app, hook := newTestApp(t, afero.NewMemMapFs(), func(c *Config) { c.ReadTimeout = 200 * time.Millisecond })
	client, done := openConn(t, app)
	defer client.Close()

	start := time.Now()
	_, err := client.Write([]byte("GET / HTTP/1.1\r\nHost: slow\r\n"))
	require.NoError(t, err)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(10*time.Second)))
	out, err := io.ReadAll(client)
	require.NoError(t, err)

	waitDone(t, done, 5*time.Second)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Empty(t, out)
	assert.True(t, kindLogged(hook, ReadError))
	assert.Equal(t, int64(0), app.Stats().InFlight)
}

func TestWriteTimeoutDropsStalledReader(t *testing.T) {
	t.Parallel()
	fs := memFs(t, map[string]string{"/srv/index.html": "hello"})
	app, hook := newTestApp(t, fs, func(c *Config) { c.WriteTimeout = 200 * time.Millisecond })
	client, done := openConn(t, app)
	defer client.Close()

	start := time.Now()
	_, err := client.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	// the client never reads, so the response head cannot be delivered
	waitDone(t, done, 5*time.Second)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.True(t, kindLogged(hook, SendError))
	assert.True(t, hasMessage(hook, "send response error"))
}

func TestTruncatedBodyIsLogged(t *testing.T) {
	t.Parallel()
	app, hook := newTestApp(t, afero.NewMemMapFs(), func(c *Config) { c.BufferSize = minBufferSize })
	app.Register(func(client *Client, request *Request) error {
		return client.Reply(200, "text/plain", request.Body())
	}, "/len.cgi")

	head := "POST /len.cgi HTTP/1.1\r\nContent-Length: 1000\r\n\r\n"
	body := "a=" + strings.Repeat("x", minBufferSize-len(head)-2)
	out := serveOne(t, app, head+body)
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n"+body))
	assert.True(t, hasMessage(hook, "request buffer too small"))
}
