package simphttpd

import (
	"bytes"
	"errors"
	"io"
	"strconv"
)

func newRequest(bufferSize int) *Request {
	return &Request{
		buf:      make([]byte, 0, bufferSize),
		bodyFrom: -1,
	}
}

func (request *Request) text(s span) string {
	if s.empty() {
		return ""
	}
	return string(request.buf[s.from:s.to])
}

func (request *Request) Method() string  { return request.text(request.method) }
func (request *Request) URL() string     { return request.text(request.url) }
func (request *Request) Path() string    { return request.text(request.path) }
func (request *Request) Query() string   { return request.text(request.query) }
func (request *Request) Version() string { return request.text(request.version) }

func (request *Request) MethodCode() Method { return request.methodCode } // set by the router

// Body returns the received body bytes, at most ContentLength of them.
func (request *Request) Body() []byte {
	if request.bodyFrom < 0 {
		return nil
	}
	end := min(request.bodyFrom+request.contentLength, len(request.buf))
	return request.buf[request.bodyFrom:end]
}

// ContentLength is the declared body length after clamping to the buffer.
func (request *Request) ContentLength() int { return request.contentLength }

// Truncated reports whether the header block or the declared body did not fit the buffer.
func (request *Request) Truncated() bool { return request.truncated }

// ParamsTruncated reports whether decoding stopped at the parameter limit.
func (request *Request) ParamsTruncated() bool { return request.paramsTruncated }

// Params copies the decoded parameters out of the request buffer.
func (request *Request) Params() []Pair {
	pairs := make([]Pair, len(request.params))
	for i, p := range request.params {
		pairs[i] = Pair{Name: request.text(p.name), Value: request.text(p.value)}
	}
	return pairs
}

// Param returns the value of the first parameter called name.
func (request *Request) Param(name string) (string, bool) {
	for _, p := range request.params {
		if string(request.buf[p.name.from:p.name.to]) == name {
			return request.text(p.value), true
		}
	}
	return "", false
}

// transferBuffer hands out the whole request buffer for streaming. Every span is invalid afterwards.
func (request *Request) transferBuffer() []byte {
	return request.buf[:cap(request.buf)]
}

// readFrom reads at most one buffer worth of request: the header block, then the declared body.
func (request *Request) readFrom(conn io.Reader) error {
	buf := request.buf[:cap(request.buf)]
	n := 0
	headerEnd := -1
	for n < len(buf) {
		k, err := conn.Read(buf[n:])
		from := max(0, n-len(headerTerminator)+1)
		n += k
		if i := bytes.Index(buf[from:n], []byte(headerTerminator)); i >= 0 {
			headerEnd = from + i
			break
		}
		if err != nil {
			if n == 0 || !errors.Is(err, io.EOF) {
				request.buf = buf[:n]
				return newError(ReadError, err)
			}
			break
		}
	}
	request.buf = buf[:n]
	if n == 0 {
		return newError(ReadError, io.ErrUnexpectedEOF)
	}
	if headerEnd < 0 {
		request.truncated = n == len(buf)
		return nil
	}

	request.bodyFrom = headerEnd + len(headerTerminator)
	declared := headerContentLength(buf[:headerEnd])
	request.announcedLength = declared
	if room := len(buf) - request.bodyFrom; declared > room {
		declared = room
		request.truncated = true
	}
	request.contentLength = declared

	remain := declared - (n - request.bodyFrom)
	if remain <= 0 {
		return nil
	}
	k, err := io.ReadFull(conn, buf[n:n+remain])
	request.buf = buf[:n+k]
	if err != nil {
		return newError(BodyReadError, err)
	}
	return nil
}

// headerContentLength finds Content-Length among the header lines. Absent or non-numeric is zero.
func headerContentLength(header []byte) int {
	lines := bytes.Split(header, []byte("\r\n"))
	for _, line := range lines[1:] {
		name, value, ok := bytes.Cut(line, []byte(":"))
		if !ok || !bytes.EqualFold(bytes.TrimSpace(name), []byte(contentLengthField)) {
			continue
		}
		length, err := strconv.Atoi(string(bytes.TrimSpace(value)))
		if err != nil || length < 0 {
			return 0
		}
		return length
	}
	return 0
}

// parse splits the request line into method, URL and version spans without touching the buffer.
func (request *Request) parse() error {
	line := request.buf
	if request.bodyFrom >= 0 {
		line = request.buf[:request.bodyFrom]
	}

	sp := bytes.IndexByte(line, ' ')
	if sp < 0 {
		return newError(MalformedRequestError, errors.New("no method"))
	}
	request.method = span{0, sp}

	from := sp + 1
	sp = bytes.IndexByte(line[from:], ' ')
	if sp < 0 {
		return newError(MalformedRequestError, errors.New("no url"))
	}
	request.url = span{from, from + sp}

	from += sp + 1
	crlf := bytes.Index(line[from:], []byte("\r\n"))
	if crlf < 0 {
		return newError(MalformedRequestError, errors.New("no version"))
	}
	request.version = span{from, from + crlf}
	return nil
}

type decodeState int

const (
	awaitingName decodeState = iota
	awaitingValue
	idle
)

// decodeParams runs the name/value state machine over buf[s.from:s.to].
// It stops once limit pairs are decoded and reports whether input was left over.
func decodeParams(buf []byte, s span, limit int) (params []Param, truncated bool, err error) {
	state := awaitingName
	var cur Param
	inValue := false

	closePair := func(end int) bool {
		if len(params) >= limit {
			return false
		}
		cur.value.to = end
		params = append(params, cur)
		cur = Param{}
		inValue = false
		return true
	}

	for i := s.from; i < s.to; i++ {
		switch c := buf[i]; {
		case c == '=' && !inValue:
			if state == awaitingName {
				return nil, false, newError(ParamDecodeError, errors.New("value without name"))
			}
			cur.name.to = i
			cur.value.from = i + 1
			inValue = true
			state = awaitingValue
		case c == '&':
			if state == awaitingName {
				continue
			}
			if !inValue {
				return nil, false, newError(ParamDecodeError, errors.New("name without value"))
			}
			if !closePair(i) {
				return params, true, nil
			}
			state = awaitingName
		default:
			if state == awaitingName {
				cur.name.from = i
			}
			state = idle
		}
	}

	if state == awaitingName {
		return params, false, nil
	}
	if !inValue {
		return nil, false, newError(ParamDecodeError, errors.New("name without value"))
	}
	if !closePair(s.to) {
		return params, true, nil
	}
	return params, false, nil
}

// DecodeParams decodes "a=1&b=two" into ordered pairs, keeping at most limit of them.
func DecodeParams(text string, limit int) ([]Pair, bool, error) {
	request := &Request{buf: []byte(text)}
	params, truncated, err := decodeParams(request.buf, span{0, len(text)}, limit)
	if err != nil {
		return nil, false, err
	}
	request.params = params
	return request.Params(), truncated, nil
}
