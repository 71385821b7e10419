package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/ardanlabs/ledger/foundation/validate"
	"github.com/ardanlabs/ledger/foundation/web"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

type peerReq struct {
	Host string `json:"host" validate:"required"`
}

func Test_App(t *testing.T) {
	shutdown := make(chan os.Signal, 1)

	var order []string
	mw := func(name string) web.Middleware {
		return func(handler web.Handler) web.Handler {
			return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				order = append(order, name)
				return handler(ctx, w, r)
			}
		}
	}

	app := web.NewApp(shutdown, mw("outer"), nil, mw("inner"))

	app.Handle(http.MethodGet, "v1", "/echo/:id", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		v, err := web.GetValues(ctx)
		if err != nil {
			return err
		}
		resp := map[string]string{"id": web.Param(r, "id"), "trace": v.TraceID}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}, mw("route"))

	app.Handle(http.MethodPost, "v1", "/peers", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var req peerReq
		if err := web.Decode(r, &req); err != nil {
			if validate.IsFieldErrors(err) {
				return web.Respond(ctx, w, validate.GetFieldErrors(err).Fields(), http.StatusBadRequest)
			}
			return web.Respond(ctx, w, err.Error(), http.StatusBadRequest)
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	})

	app.Handle(http.MethodGet, "v1", "/fail", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.NewShutdownError("integrity issue")
	})

	t.Log("Given the need to route requests through the web app.")
	{
		t.Logf("\tTest 0:\tWhen calling a route with middleware.")
		{
			r := httptest.NewRequest(http.MethodGet, "/v1/echo/42", nil)
			w := httptest.NewRecorder()
			app.ServeHTTP(w, r)

			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest 0:\tShould get a 200, got %d.", failed, w.Code)
			}

			var resp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould decode the response: %v", failed, err)
			}
			if resp["id"] != "42" || resp["trace"] == "" {
				t.Fatalf("\t%s\tTest 0:\tShould see the param and trace id, got %v.", failed, resp)
			}
			t.Logf("\t%s\tTest 0:\tShould see the param and trace id.", success)

			if strings.Join(order, ",") != "outer,inner,route" {
				t.Fatalf("\t%s\tTest 0:\tShould run middleware in order, got %v.", failed, order)
			}
			t.Logf("\t%s\tTest 0:\tShould run middleware in order.", success)
		}

		t.Logf("\tTest 1:\tWhen posting a body missing a required field.")
		{
			r := httptest.NewRequest(http.MethodPost, "/v1/peers", strings.NewReader(`{"host":""}`))
			w := httptest.NewRecorder()
			app.ServeHTTP(w, r)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest 1:\tShould get a 400, got %d.", failed, w.Code)
			}

			var fields map[string]string
			if err := json.NewDecoder(w.Body).Decode(&fields); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould decode the field errors: %v", failed, err)
			}
			if _, exists := fields["host"]; !exists {
				t.Fatalf("\t%s\tTest 1:\tShould report the host field, got %v.", failed, fields)
			}
			t.Logf("\t%s\tTest 1:\tShould report the host field.", success)
		}

		t.Logf("\tTest 2:\tWhen a handler returns an error.")
		{
			r := httptest.NewRequest(http.MethodGet, "/v1/fail", nil)
			w := httptest.NewRecorder()
			app.ServeHTTP(w, r)

			select {
			case <-shutdown:
				t.Logf("\t%s\tTest 2:\tShould signal a shutdown.", success)
			default:
				t.Fatalf("\t%s\tTest 2:\tShould signal a shutdown.", failed)
			}
		}
	}
}

func Test_IsShutdown(t *testing.T) {
	err := web.NewShutdownError("boom")
	if !web.IsShutdown(errors.Join(errors.New("wrapped"), err)) {
		t.Fatalf("Should detect a joined shutdown error.")
	}
	if web.IsShutdown(errors.New("boom")) {
		t.Fatalf("Should not detect a plain error.")
	}
}
