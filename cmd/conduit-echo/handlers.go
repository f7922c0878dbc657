// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"net/http"

	"github.com/z5labs/conduit/httpconn"
	"github.com/z5labs/conduit/o11y"
	"github.com/z5labs/conduit/request"
	"github.com/z5labs/conduit/websocket"
)

// Greeting is the body accepted by the greet endpoint.
type Greeting struct {
	Name string `json:"name" required:"true" minLength:"1"`
}

func echoHTTP(ctx context.Context, req *request.HTTP) error {
	body, err := req.ReceiveBody(ctx)
	if err != nil {
		return err
	}

	var opts []httpconn.Option
	if ct, ok := req.HeaderString("content-type"); ok {
		opts = append(opts, httpconn.ContentType(ct))
	}
	return req.SendResponse(ctx, http.StatusOK, body, opts...)
}

func greet(ctx context.Context, req *request.HTTP) error {
	_, g, err := request.ReceiveHTTPClass[Greeting](ctx, req)
	if err != nil {
		return err
	}
	req.AddRequestSpanAttrs(ctx, o11y.Attributes{"name": g.Name}, "greeting")

	return req.SendResponse(ctx, http.StatusOK, map[string]any{
		"message": "hello, " + g.Name,
		"subject": req.Auth().Subject,
	})
}

func echoWebsocket(ctx context.Context, req *request.Websocket) (websocket.Result, error) {
	err := req.Accept(ctx)
	if err != nil {
		return websocket.Result{}, err
	}

	for msg, err := range req.All(ctx) {
		if err != nil {
			return websocket.Result{}, err
		}

		err = req.SendMessage(ctx, msg)
		if err != nil {
			return websocket.Result{}, err
		}
	}
	return websocket.Result{}, nil
}
