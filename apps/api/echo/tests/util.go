package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	. "github.com/trezcool/studyrelay/apps/api/echo"
	"github.com/trezcool/studyrelay/core"
	"github.com/trezcool/studyrelay/core/reqauth"
	"github.com/trezcool/studyrelay/core/welcome"
	"github.com/trezcool/studyrelay/fs"
	"github.com/trezcool/studyrelay/services/email"
	"github.com/trezcool/studyrelay/services/logger"
	"github.com/trezcool/studyrelay/storage/database/inmem"
	"github.com/trezcool/studyrelay/tests"
)

const testBearer = "s2s-bearer-token"

var (
	errUnauthorized = httpErr{Error: "unauthorized"}
	errServer       = httpErr{Error: "Internal Server Error"}
)

type (
	httpErr struct {
		Error string `json:"error"`
	}

	httpTest struct {
		name     string
		method   string
		path     string
		body     []byte
		header   http.Header
		wantCode int
		wantData []byte
	}

	env struct {
		app     *Server
		conf    *core.Config
		store   reqauth.NonceStore
		mailSvc *emailsvc.ConsoleServiceMock
		signer  *reqauth.Signer
	}

	option func(e *env)

	// brokenStore fails every call with err.
	brokenStore struct {
		err error
	}
)

func (s brokenStore) Probe(context.Context) error { return s.err }

func (s brokenStore) Seen(context.Context, string, time.Time) (bool, error) { return false, s.err }

func (s brokenStore) Reserve(context.Context, reqauth.NonceRecord, time.Time) (reqauth.ReserveStatus, error) {
	return reqauth.StoreUnavailable, s.err
}

func withSecret(secret string) option {
	return func(e *env) { e.conf.Auth.HMACSecret = secret }
}

func withStore(store reqauth.NonceStore) option {
	return func(e *env) { e.store = store }
}

func withConf(fn func(conf *core.Config)) option {
	return func(e *env) { fn(e.conf) }
}

func setup(t *testing.T, opts ...option) *env {
	t.Helper()

	conf := core.NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.Auth.HMACSecret = testutil.TestSecret
	conf.Auth.BearerToken = testBearer
	conf.Server.RateLimit = 0

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open(): %v", err)
	}
	e := &env{conf: conf, store: inmemdb.NewNonceRepository(db)}
	for _, opt := range opts {
		opt(e)
	}

	logger := logsvc.NewNopLogger()
	core.ParseEmailTemplates(appfs.FS, conf.FrontendBaseURL, true, logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	e.mailSvc = emailsvc.NewConsoleServiceMock(conf, logger)
	auth := reqauth.NewAuthenticator(
		reqauth.Config{
			Secret:      conf.Auth.HMACSecret,
			BearerToken: conf.Auth.BearerToken,
			Tolerance:   conf.Auth.Tolerance,
			NonceTTL:    conf.Auth.NonceTTL,
		},
		e.store,
		logger,
	)
	e.app = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Authenticator:  auth,
		WelcomeSvc:     welcome.NewService(e.mailSvc, validate),
		Translator:     translator,
		DisableReqLogs: true,
	})
	e.signer = reqauth.NewSigner(testutil.TestSecret, testBearer)
	return e
}

// serve runs req through the app and returns the recorded response.
func (e *env) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.app.ServeHTTP(rec, req)
	return rec
}

func newRequest(method, path string, header http.Header, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	return req
}

// signedHeader signs body with the env signer and returns the resulting headers.
func (e *env) signedHeader(body []byte) http.Header {
	h := make(http.Header)
	e.signer.Sign(body).Apply(h)
	return h
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
