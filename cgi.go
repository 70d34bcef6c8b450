package simphttpd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// dispatchCGI decodes the parameters, then runs a registered handler or the interpreter on path.
func (app *App) dispatchCGI(ctx context.Context, client *Client, request *Request, path string) error {
	source := request.query
	if request.methodCode == MethodPost && len(request.Body()) > 0 {
		source = span{request.bodyFrom, request.bodyFrom + len(request.Body())}
	}
	params, truncated, err := decodeParams(request.buf, source, app.config.MaxParams)
	if err != nil {
		return err
	}
	request.params = params
	request.paramsTruncated = truncated
	if truncated {
		client.logger.WithField("maxParams", app.config.MaxParams).Warn("cgi params truncated")
	}

	if function, ok := app.cgi.lookup(request.Path()); ok {
		return runRegistered(client, request, function)
	}
	return app.runProcess(ctx, client, request, path)
}

func runRegistered(client *Client, request *Request, function CGIFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(CgiHandlerError, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := function(client, request); err != nil {
		return newError(CgiHandlerError, err)
	}
	client.logger.Debugf("cgi process ok: %s", request.Path())
	return nil
}

// runProcess runs "<interpreter> <path> name=value ..." without a shell and relays its stdout.
// The script and everything it starts are killed once ProcessTimeout passes or ctx is done.
func (app *App) runProcess(ctx context.Context, client *Client, request *Request, path string) error {
	args := make([]string, 0, len(request.params)+1)
	args = append(args, path)
	for _, p := range request.Params() {
		args = append(args, p.Name+"="+p.Value)
	}

	if app.config.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.config.ProcessTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, app.config.Interpreter, args...)
	isolateProcess(cmd)
	cmd.WaitDelay = processWaitDelay
	stderr := &cappedBuffer{limit: maxStderrCapture}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return newError(ProcessSpawnError, err)
	}
	if err := cmd.Start(); err != nil {
		return newError(ProcessSpawnError, err)
	}
	defer func() {
		if err := cmd.Wait(); err != nil {
			client.logger.WithError(err).WithField("stderr", stderr.String()).Warn("cgi process exited with error")
		}
	}()
	// a grandchild may keep the pipe open after the script is killed
	stopClose := context.AfterFunc(ctx, func() {
		stdout.Close()
	})
	defer stopClose()

	response := BuildBasicResponse()
	buf := request.transferBuffer()
	if err := client.writeHead(response, buf); err != nil {
		abort(cmd, stdout)
		return err
	}
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, werr := client.Write(buf[:n]); werr != nil {
				abort(cmd, stdout)
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			abort(cmd, stdout)
			if ctx.Err() != nil {
				return fmt.Errorf("cgi process %s: %w", path, ctx.Err())
			}
			return fmt.Errorf("read cgi output: %w", err)
		}
	}
}

func abort(cmd *exec.Cmd, stdout io.Closer) {
	stdout.Close()
	_ = killProcess(cmd)
}

// cappedBuffer keeps the first limit bytes written to it and drops the rest.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		b.buf.Write(p[:min(room, len(p))])
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
