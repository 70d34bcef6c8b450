package simphttpd

import (
	"path/filepath"
	"strings"
)

const defaultContentType = "application/octet-stream"

var mimeTable = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".txt":  "text/plain",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".bmp":  "image/bmp",
	".png":  "image/png",
	".gif":  "image/gif",
	".ico":  "image/x-icon",
	".svg":  "image/svg+xml",
	".js":   "application/x-javascript",
	".json": "application/json",
}

func ContentTypeOf(path string) string {
	if contentType, ok := mimeTable[strings.ToLower(filepath.Ext(path))]; ok {
		return contentType
	}
	return defaultContentType
}
