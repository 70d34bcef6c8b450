package main

import (
	"errors"
	"strconv"
	"strings"

	"github.com/littlefish12345/simphttpd"
)

func registerHandlers(app *simphttpd.App) {
	app.Register(cgiAdd, "/add.cgi")
	app.Register(cgiEcho, "/echo.cgi")
}

func cgiAdd(client *simphttpd.Client, request *simphttpd.Request) error { // answers a+b
	a, err := numberParam(request, "a")
	if err != nil {
		return err
	}
	b, err := numberParam(request, "b")
	if err != nil {
		return err
	}
	return client.Reply(200, "text/plain", []byte(strconv.FormatInt(a+b, 10)))
}

func numberParam(request *simphttpd.Request, name string) (int64, error) {
	v, ok := request.Param(name)
	if !ok {
		return 0, errors.New("missing parameter " + name)
	}
	return strconv.ParseInt(v, 10, 64)
}

// cgiEcho writes every parameter back, one name=value per line.
func cgiEcho(client *simphttpd.Client, request *simphttpd.Request) error {
	if request.ParamsTruncated() {
		client.Logger().Warn("echo is missing parameters past the limit")
	}
	var body strings.Builder
	for _, p := range request.Params() {
		body.WriteString(p.Name)
		body.WriteByte('=')
		body.WriteString(p.Value)
		body.WriteByte('\n')
	}
	return client.Reply(200, "text/plain", []byte(body.String()))
}
