package simphttpd

import (
	"fmt"
	"strconv"
)

var statusReasons = map[int]string{
	200: "OK",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	501: "Not Implemented",
}

func StatusText(code int) string {
	return statusReasons[code]
}

var statusPages = map[int]string{
	400: buildPage("Bad Request", "Bad request"),
	403: buildPage("Forbidden", "Not allow access this content"),
	404: buildPage("Not Found", "File not found"),
	501: buildPage("Not Implemented", "Not implemented"),
}

func buildPage(title, heading string) string {
	return `<html><head><meta charset="UTF-8"><title>` + title + `</title></head><body><h1>` + heading + `</h1></body></html>`
}

func NewResponse() *Response { // empty response, no status line yet
	return &Response{}
}

func BuildBasicResponse() *Response { // bare 200 head with no properties
	response := NewResponse()
	response.SetStart(protocolVersion, 200, StatusText(200))
	return response
}

// BuildDefaultResponse returns the canned page for status and a head describing it.
func BuildDefaultResponse(status int) (*Response, []byte) {
	page, ok := statusPages[status]
	if !ok {
		page = buildPage(StatusText(status), StatusText(status))
	}
	response := NewResponse()
	response.SetStart(protocolVersion, status, StatusText(status))
	response.SetProperty(ContentType, "text/html")
	response.SetProperty(ContentLength, strconv.Itoa(len(page)))
	response.SetProperty(Connection, "close")
	return response, []byte(page)
}

func (response *Response) SetStart(version string, status int, reason string) {
	response.Version = version
	response.Status = status
	response.Reason = reason
}

// SetProperty stores value under key, overwriting an earlier value in place.
// It returns false, and changes nothing, when key is invalid or no slot is left.
func (response *Response) SetProperty(key PropertyKey, value string) bool {
	if key.String() == "" {
		return false
	}
	free := -1
	for i := range response.properties {
		p := &response.properties[i]
		if p.key == key {
			p.value = value
			return true
		}
		if p.key == PropertyNone && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return false
	}
	response.properties[free] = property{key: key, value: value}
	return true
}

func (response *Response) Property(key PropertyKey) (string, bool) {
	for _, p := range response.properties {
		if p.key == key && key != PropertyNone {
			return p.value, true
		}
	}
	return "", false
}

// Len is the serialized size of the status line, the properties and the blank line.
func (response *Response) Len() int {
	size := len(response.Version) + 1 + len(strconv.Itoa(response.Status)) + 1 + len(response.Reason) + 2
	for _, p := range response.properties {
		if p.key != PropertyNone {
			size += len(p.key.String()) + 2 + len(p.value) + 2
		}
	}
	return size + 2
}

// Serialize writes the response head into buf. Nothing is written when it does not fit.
func (response *Response) Serialize(buf []byte) (int, error) {
	if size := response.Len(); size > len(buf) {
		return 0, newError(BufferTooSmall, fmt.Errorf("need %d bytes, have %d", size, len(buf)))
	}
	out := buf[:0]
	out = append(out, response.Version...)
	out = append(out, ' ')
	out = strconv.AppendInt(out, int64(response.Status), 10)
	out = append(out, ' ')
	out = append(out, response.Reason...)
	out = append(out, "\r\n"...)
	for _, p := range response.properties {
		if p.key == PropertyNone {
			continue
		}
		out = append(out, p.key.String()...)
		out = append(out, ": "...)
		out = append(out, p.value...)
		out = append(out, "\r\n"...)
	}
	out = append(out, "\r\n"...)
	return len(out), nil
}

// Write sends raw bytes to the client under the configured write deadline.
func (client *Client) Write(p []byte) (int, error) {
	client.armWrite()
	n, err := client.conn.Write(p)
	client.written += int64(n)
	if err != nil {
		return n, newError(SendError, err)
	}
	return n, nil
}

// Reply sends a whole response: status line, the three properties, then body.
func (client *Client) Reply(status int, contentType string, body []byte) error {
	response := NewResponse()
	response.SetStart(protocolVersion, status, StatusText(status))
	response.SetProperty(ContentType, contentType)
	response.SetProperty(ContentLength, strconv.Itoa(len(body)))
	response.SetProperty(Connection, "close")
	if err := client.writeHead(response, make([]byte, response.Len())); err != nil {
		return err
	}
	_, err := client.Write(body)
	return err
}

// writeHead serializes response into buf and sends it.
func (client *Client) writeHead(response *Response, buf []byte) error {
	n, err := response.Serialize(buf)
	if err != nil {
		return err
	}
	client.status = response.Status
	_, err = client.Write(buf[:n])
	return err
}

func (client *Client) sendStatusPage(status int) error {
	response, page := BuildDefaultResponse(status)
	if err := client.writeHead(response, make([]byte, response.Len())); err != nil {
		return err
	}
	_, err := client.Write(page)
	return err
}
