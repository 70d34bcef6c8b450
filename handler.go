package simphttpd

import (
	"bytes"
	"context"
	"errors"
	"net"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type target struct {
	path string
	cgi  bool
}

func peerAddress(addr net.Addr) (string, int) {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String(), tcp.Port
	}
	if addr == nil {
		return "", 0
	}
	return addr.String(), 0
}

func (app *App) newClient(conn net.Conn) *Client {
	ip, port := peerAddress(conn.RemoteAddr())
	return &Client{
		conn:         conn,
		IP:           ip,
		Port:         port,
		logger:       app.logger.WithFields(logrus.Fields{"client": ip, "port": port}),
		readTimeout:  app.config.ReadTimeout,
		writeTimeout: app.config.WriteTimeout,
	}
}

func (client *Client) Logger() logrus.FieldLogger { // connection scoped logger
	return client.logger
}

func (client *Client) armRead() {
	if client.readTimeout > 0 {
		_ = client.conn.SetReadDeadline(time.Now().Add(client.readTimeout))
	}
}

func (client *Client) armWrite() {
	if client.writeTimeout > 0 {
		_ = client.conn.SetWriteDeadline(time.Now().Add(client.writeTimeout))
	}
}

// serveConn owns conn for its whole life. Teardown runs on every path, panics included.
func (app *App) serveConn(ctx context.Context, conn net.Conn) {
	client := app.newClient(conn)
	stopInterrupt := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer func() {
		if r := recover(); r != nil {
			client.logger.WithField("panic", r).Error("connection handler panic")
		}
		stopInterrupt()
		conn.Close()
		client.logger.Debug("close request")
		app.served.Add(1)
		app.inFlight.Add(-1)
		app.admission.release()
		app.workers.Done()
	}()

	client.logger.Debug("new client")
	if err := app.handle(ctx, client, newRequest(app.config.BufferSize)); err != nil {
		app.fail(client, err)
	}
	if !app.config.DisableConsoleLog && client.method != "" {
		client.logger.Infof("%s %s %d %s", client.method, client.url, client.status, StatusText(client.status))
	}
}

func (app *App) handle(ctx context.Context, client *Client, request *Request) error {
	client.armRead()
	if err := request.readFrom(client.conn); err != nil {
		return err
	}
	if request.Truncated() {
		client.logger.WithFields(logrus.Fields{
			"bufferSize":    cap(request.buf),
			"contentLength": request.announcedLength,
			"received":      request.contentLength,
		}).Warn("request buffer too small")
	}
	if err := request.parse(); err != nil {
		return err
	}
	client.method, client.url = request.Method(), request.URL()

	t, err := app.route(request)
	if err != nil {
		return err
	}
	if t.cgi {
		return app.dispatchCGI(ctx, client, request, t.path)
	}
	return app.serveFile(client, request, t.path)
}

// route validates the request line, splits off the query and resolves the target path.
// Nothing here touches the filesystem.
func (app *App) route(request *Request) (target, error) {
	url := request.buf[request.url.from:request.url.to]
	if len(url) == 0 || bytes.Contains(url, []byte("..")) {
		return target{}, newError(Forbidden, errors.New(string(url)))
	}

	switch version := request.Version(); version {
	case "HTTP/1.0", "HTTP/1.1":
	default:
		return target{}, newError(BadVersion, errors.New(version))
	}

	switch method := request.Method(); method {
	case "GET":
		request.methodCode = MethodGet
	case "POST":
		request.methodCode = MethodPost
	default:
		return target{}, newError(NotImplemented, errors.New(method))
	}

	request.path = request.url
	request.query = span{request.url.to, request.url.to}
	if q := bytes.IndexByte(url, '?'); q >= 0 {
		request.path.to = request.url.from + q
		request.query = span{request.url.from + q + 1, request.url.to}
	}
	if request.path.empty() {
		return target{}, newError(Forbidden, errors.New("empty path"))
	}

	urlPath := request.Path()
	return target{
		path: resolvePath(app.config.Root, app.config.DefaultDocument, urlPath),
		cgi:  slices.Contains(app.config.CGIExtensions, strings.ToLower(filepath.Ext(urlPath))),
	}, nil
}

func resolvePath(root, defaultDocument, urlPath string) string {
	if strings.HasSuffix(urlPath, "/") {
		urlPath += defaultDocument
	}
	return filepath.Join(root, filepath.FromSlash(urlPath))
}

func (app *App) fail(client *Client, err error) {
	var herr *Error
	if !errors.As(err, &herr) {
		client.logger.WithError(err).Error("process request error")
		return
	}

	entry := client.logger.WithField("kind", herr.Kind.Error())
	if herr.Err != nil {
		entry = entry.WithError(herr.Err)
	}
	switch herr.Kind {
	case ReadError, BodyReadError:
		entry.Warn("read request error")
	case MalformedRequestError:
		entry.Warn("parse request error")
	case SendError:
		entry.Warn("send response error")
	default:
		entry.Error("process request error")
	}

	status := herr.Kind.Status()
	if status == 0 || client.written > 0 {
		return
	}
	if err := client.sendStatusPage(status); err != nil {
		client.logger.WithError(err).Debug("status page not sent")
	}
}
