package simphttpd

import (
	"fmt"
	"time"
)

const (
	listenBacklog      = 5
	minBufferSize      = 256
	maxStderrCapture   = 4096
	processWaitDelay   = time.Second
	protocolVersion    = "HTTP/1.1"
	headerTerminator   = "\r\n\r\n"
	contentLengthField = "Content-Length"
)

// ErrorKind classifies every failure a connection can run into.
type ErrorKind int

const (
	ReadError ErrorKind = iota + 1
	BodyReadError
	MalformedRequestError
	Forbidden
	BadVersion
	NotImplemented
	FileNotFound
	SendError
	CgiHandlerError
	ProcessSpawnError
	BufferTooSmall
	ParamDecodeError
	AcceptError
	ConfigError
)

func (k ErrorKind) Error() string {
	switch k {
	case ReadError:
		return "recv http header failed"
	case BodyReadError:
		return "recv http body failed"
	case MalformedRequestError:
		return "malformed request line"
	case Forbidden:
		return "url is not valid"
	case BadVersion:
		return "http version error"
	case NotImplemented:
		return "http method error"
	case FileNotFound:
		return "get file failed"
	case SendError:
		return "http send error"
	case CgiHandlerError:
		return "cgi process error"
	case ProcessSpawnError:
		return "failed to run cgi process"
	case BufferTooSmall:
		return "response buffer too small"
	case ParamDecodeError:
		return "cgi param decode failed"
	case AcceptError:
		return "accept error"
	case ConfigError:
		return "invalid config"
	default:
		return fmt.Sprintf("unknown error kind: %d", int(k))
	}
}

// Status is the status page sent to the client for this kind, 0 if none is sent.
func (k ErrorKind) Status() int {
	switch k {
	case MalformedRequestError, BadVersion, CgiHandlerError, ParamDecodeError:
		return 400
	case Forbidden:
		return 403
	case FileNotFound:
		return 404
	case NotImplemented:
		return 501
	default:
		return 0
	}
}

// Error carries an ErrorKind plus the cause that produced it.
type Error struct {
	Kind ErrorKind
	Err  error
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.Error() + ": " + e.Err.Error()
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare ErrorKind, so errors.Is(err, ReadError) works on wrapped errors.
func (e *Error) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}
