package simphttpd

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type Method int // request method as classified by the router

const (
	MethodUnknown Method = iota
	MethodGet
	MethodPost
)

type PropertyKey int // response header fields the server emits

const (
	PropertyNone PropertyKey = iota
	ContentType
	ContentLength
	Connection
)

var propertyNames = [...]string{
	ContentType:   "Content-Type",
	ContentLength: "Content-Length",
	Connection:    "Connection",
}

func (k PropertyKey) String() string {
	if k <= PropertyNone || int(k) >= len(propertyNames) {
		return ""
	}
	return propertyNames[k]
}

const responsePropertyMax = 3

type property struct {
	key   PropertyKey
	value string
}

type Response struct { // status line plus at most responsePropertyMax properties
	Version    string
	Status     int
	Reason     string
	properties [responsePropertyMax]property
}

type span struct { // [from, to) window into a request buffer
	from, to int
}

func (s span) empty() bool {
	return s.to <= s.from
}

// Param is a decoded name=value pair, both sides pointing into the buffer it was decoded from.
type Param struct {
	name, value span
}

type Pair struct { // owned copy of a Param
	Name  string
	Value string
}

// Request holds the raw bytes of one request and the spans derived from them.
// All spans are only valid while buf is not reused as a transfer buffer.
type Request struct {
	buf []byte

	method  span
	url     span
	version span
	path    span
	query   span

	bodyFrom        int
	contentLength   int
	announcedLength int
	truncated       bool

	methodCode      Method
	params          []Param
	paramsTruncated bool
}

type Client struct { // one accepted connection
	conn         net.Conn
	IP           string
	Port         int
	logger       logrus.FieldLogger
	readTimeout  time.Duration
	writeTimeout time.Duration

	method  string
	url     string
	status  int
	written int64
}

// CGIFunc serves a registered CGI path. It writes its whole response to the client itself;
// a returned error makes the server answer 400 if nothing was written yet.
type CGIFunc func(client *Client, request *Request) error

type cgiEntry struct {
	path     string
	function CGIFunc
}

type cgiTable []cgiEntry // looked up by exact path, first registration wins

type Stats struct {
	InFlight int64
	Served   uint64
}

type App struct { // one root directory and one CGI table
	config    Config
	fs        afero.Fs
	cgi       cgiTable
	logger    logrus.FieldLogger
	admission *admission

	workers  sync.WaitGroup
	inFlight atomic.Int64
	served   atomic.Uint64
}
