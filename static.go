package simphttpd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

// serveFile sends path with a 200 head, then streams it through the request buffer.
func (app *App) serveFile(client *Client, request *Request, path string) error {
	file, err := app.fs.Open(path)
	if err != nil {
		return newError(FileNotFound, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return newError(FileNotFound, err)
	}
	if info.IsDir() {
		return newError(FileNotFound, fmt.Errorf("%s is a directory", path))
	}

	response := BuildBasicResponse()
	response.SetProperty(Connection, "close")
	response.SetProperty(ContentType, ContentTypeOf(path))
	response.SetProperty(ContentLength, strconv.FormatInt(info.Size(), 10))

	buf := request.transferBuffer()
	if err := client.writeHead(response, buf); err != nil {
		return err
	}
	for {
		n, err := file.Read(buf)
		if n > 0 {
			if _, werr := client.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
	}
}
