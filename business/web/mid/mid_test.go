package mid_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/ardanlabs/ledger/business/web/errs"
	"github.com/ardanlabs/ledger/business/web/mid"
	"github.com/ardanlabs/ledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
	"github.com/ardanlabs/ledger/foundation/web"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func newApp(rateLimit float64, burst int) *web.App {
	log := zap.NewNop().Sugar()

	app := web.NewApp(
		make(chan os.Signal, 1),
		mid.Logger(log),
		mid.Errors(log),
		mid.Metrics(),
		mid.RateLimit(rateLimit, burst),
		mid.Panics(),
	)

	app.Handle(http.MethodGet, "v1", "/pending", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return errs.FromLedger(mempool.ErrAlreadyPending)
	})

	app.Handle(http.MethodGet, "v1", "/panic", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		panic("boom")
	})

	app.Handle(http.MethodGet, "v1", "/peer", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var pr peer.Peer
		if err := web.Decode(r, &pr); err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		return web.Respond(ctx, w, nil, http.StatusOK)
	})

	app.Handle(http.MethodGet, "v1", "/internal", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return errors.New("disk full")
	})

	return app
}

func Test_Errors(t *testing.T) {
	app := newApp(0, 0)

	type table struct {
		name   string
		path   string
		body   string
		status int
		msg    string
		field  string
	}

	tt := []table{
		{name: "trusted", path: "/v1/pending", status: http.StatusConflict, msg: mempool.ErrAlreadyPending.Error()},
		{name: "panic", path: "/v1/panic", status: http.StatusInternalServerError, msg: http.StatusText(http.StatusInternalServerError)},
		{name: "internal", path: "/v1/internal", status: http.StatusInternalServerError, msg: http.StatusText(http.StatusInternalServerError)},
		{name: "validation", path: "/v1/peer", body: `{"host":""}`, status: http.StatusBadRequest, msg: "data validation error", field: "host"},
		{name: "malformed", path: "/v1/peer", body: `{"host":`, status: http.StatusBadRequest},
	}

	t.Log("Given the need to turn handler errors into responses.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen calling %s.", testID, tst.path)
				{
					w := httptest.NewRecorder()
					app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tst.path, strings.NewReader(tst.body)))

					if w.Code != tst.status {
						t.Fatalf("\t%s\tTest %d:\tShould get status %d, got %d.", failed, testID, tst.status, w.Code)
					}

					var resp errs.Response
					if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould decode the response: %v", failed, testID, err)
					}
					if tst.msg != "" && resp.Error != tst.msg {
						t.Fatalf("\t%s\tTest %d:\tShould get %q, got %q.", failed, testID, tst.msg, resp.Error)
					}
					if _, exists := resp.Fields[tst.field]; tst.field != "" && !exists {
						t.Fatalf("\t%s\tTest %d:\tShould get a message for field %q, got %v.", failed, testID, tst.field, resp.Fields)
					}
					t.Logf("\t%s\tTest %d:\tShould get status %d.", success, testID, tst.status)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_RateLimit(t *testing.T) {
	app := newApp(0.001, 1)

	t.Log("Given the need to limit the request rate.")
	{
		t.Logf("\tTest 0:\tWhen the bucket holds a single token.")
		{
			w := httptest.NewRecorder()
			app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/pending", nil))
			if w.Code != http.StatusConflict {
				t.Fatalf("\t%s\tTest 0:\tShould let the first request through, got %d.", failed, w.Code)
			}

			w = httptest.NewRecorder()
			app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/pending", nil))
			if w.Code != http.StatusTooManyRequests {
				t.Fatalf("\t%s\tTest 0:\tShould reject the second request, got %d.", failed, w.Code)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the second request.", success)
		}
	}
}
