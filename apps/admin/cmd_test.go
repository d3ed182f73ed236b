package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/term"

	"github.com/trezcool/studyrelay/core"
	"github.com/trezcool/studyrelay/core/reqauth"
	"github.com/trezcool/studyrelay/services/logger"
	"github.com/trezcool/studyrelay/storage"
	"github.com/trezcool/studyrelay/storage/database/inmem"
	"github.com/trezcool/studyrelay/tests"
)

const testBearer = "s2s-bearer-token"

var testNow = time.Unix(1700000000, 0)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	conf := core.NewConfig()
	conf.Auth.HMACSecret = testutil.TestSecret
	conf.Auth.BearerToken = testBearer

	out := new(bytes.Buffer)
	cl := newCommandLine(conf, logsvc.NewNopLogger())
	cl.out = out

	nowFunc = func() time.Time { return testNow }
	t.Cleanup(func() { nowFunc = time.Now })
	return cl, out
}

func run(cl *commandLine, args ...string) error {
	return cl.app().Run(append([]string{"admin"}, args...))
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func checkErr(t *testing.T, tt cliTest, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.ErrorIs(t, err, tt.wantErr)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), tt.wantErrStr)
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cl, _ := setup(t)

	openDBFunc = func(*core.Config) (*sqlx.DB, error) {
		return sqlx.Open("postgres", "postgres://localhost/unused?sslmode=disable")
	}
	var ran []string
	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, strings.Join(append([]string{command}, args...), " "))
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: `"lol": no such command`},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, run(cl, tt.args...))
		})
	}
	assert.Equal(t, []string{"up", "up-to 1", "down", "status"}, ran)
}

// assertSeen checks which nonces are still held, looking from before any of them expires.
func assertSeen(t *testing.T, repo reqauth.NonceStore, want map[string]bool) {
	t.Helper()
	for nonce, wantSeen := range want {
		seen, err := repo.Seen(context.Background(), nonce, testNow.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, wantSeen, seen, nonce)
	}
}

func Test_commandLine_purgeNonces(t *testing.T) {
	cl, out := setup(t)

	db, err := inmemdb.Open()
	require.NoError(t, err)
	repo := inmemdb.NewNonceRepository(db)
	for i, nonce := range []string{"a", "b", "c"} {
		rec := reqauth.NonceRecord{Nonce: nonce, ExpiresAt: testNow.Add(time.Duration(i) * time.Hour)}
		_, err = repo.Reserve(context.Background(), rec, testNow.Add(-time.Hour))
		require.NoError(t, err)
	}
	openStoreFunc = func(context.Context, *core.Config, storage.Options) (storage.NonceStore, func() error, error) {
		return repo, func() error { return nil }, nil
	}

	// default cutoff: now
	require.NoError(t, run(cl, "purgenonces"))
	assert.Equal(t, "purged 1 expired nonce(s)\n", out.String())
	assertSeen(t, repo, map[string]bool{"a": false, "b": true, "c": true})

	out.Reset()
	require.NoError(t, run(cl, "purgenonces", "-before", testNow.Add(2*time.Hour).Format(time.RFC3339)))
	assert.Equal(t, "purged 2 expired nonce(s)\n", out.String())
	assertSeen(t, repo, map[string]bool{"a": false, "b": false, "c": false})

	assert.Error(t, run(cl, "purgenonces", "-before", "yesterday"))
}

func Test_commandLine_sign(t *testing.T) {
	cl, out := setup(t)

	bodyFile := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(bodyFile, []byte(`{"a":1}`), 0o600))

	tests := []cliTest{
		{name: "no body file", args: []string{"sign"}, wantErrStr: `Required flag "body-file" not set`},
		{name: "missing body file", args: []string{"sign", "-body-file", bodyFile + ".missing"}, wantErrStr: "reading body file"},
		{name: "sign", args: []string{"sign", "-body-file", bodyFile, "-nonce", "n1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			checkErr(t, tt, run(cl, tt.args...))
		})
	}
	assert.Equal(t, strings.Join([]string{
		"X-Timestamp: 1700000000",
		"X-Nonce: n1",
		"X-Signature: d3a186878bd7db67354943ad91ba40075871f22f572b7dbefe2824dc2e0a782e",
		"Authorization: Bearer " + testBearer,
		"",
	}, "\n"), out.String())
}

func Test_commandLine_sign_promptsSecret(t *testing.T) {
	cl, out := setup(t)
	cl.conf.Auth.HMACSecret = ""

	bodyFile := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(bodyFile, []byte(`{"a":1}`), 0o600))
	tty, err := os.CreateTemp(t.TempDir(), "tty")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = tty.Close()
		readPasswordFunc = term.ReadPassword
		openTTYFunc = func() (*os.File, error) { return os.Open("/dev/tty") }
	})

	tests := []struct {
		cliTest
		secret  string
		noTTY   bool
		wantTTY bool
	}{
		{
			cliTest: cliTest{name: "weak secret", args: []string{"-body-file", bodyFile}, wantErrStr: "weak_secret"},
			secret:  "short",
		},
		{
			cliTest: cliTest{name: "body from file: prompt on stdin", args: []string{"-body-file", bodyFile}},
			secret:  testutil.TestSecret,
		},
		{
			cliTest: cliTest{name: "body from stdin: prompt on tty", args: []string{"-body-file", "-"}},
			secret:  testutil.TestSecret,
			wantTTY: true,
		},
		{
			cliTest: cliTest{name: "body from stdin: no tty", args: []string{"-body-file", "-"}, wantErrStr: "no terminal to prompt"},
			noTTY:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotFD int
			readPasswordFunc = func(fd int) ([]byte, error) {
				gotFD = fd
				return []byte(tt.secret), nil
			}
			openTTYFunc = func() (*os.File, error) {
				if tt.noTTY {
					return nil, errors.New("open /dev/tty: no such device or address")
				}
				// reopen: secret() closes what it gets
				return os.Open(tty.Name())
			}
			out.Reset()
			cl.in = strings.NewReader(`{"a":1}`)

			args := append([]string{"sign", "-nonce", "n1", "-timestamp", "1700000000"}, tt.args...)
			err := run(cl, args...)
			checkErr(t, tt.cliTest, err)
			if err != nil {
				return
			}
			if tt.wantTTY {
				assert.NotEqual(t, int(os.Stdin.Fd()), gotFD)
			} else {
				assert.Equal(t, int(os.Stdin.Fd()), gotFD)
			}
			assert.Contains(t, out.String(), "X-Signature: d3a186878bd7db67354943ad91ba40075871f22f572b7dbefe2824dc2e0a782e\n")
		})
	}
}

func Test_commandLine_genSecret(t *testing.T) {
	cl, out := setup(t)

	require.NoError(t, run(cl, "gensecret"))
	secret := strings.TrimSpace(out.String())
	assert.Len(t, secret, 2*reqauth.MinSecretLen)
	assert.NoError(t, reqauth.ValidateSecret(secret))

	assert.Error(t, run(cl, "gensecret", "-bytes", "16"))
}

func Test_commandLine_sendWelcome(t *testing.T) {
	cl, out := setup(t)

	db, err := inmemdb.Open()
	require.NoError(t, err)
	auth := reqauth.NewAuthenticator(
		reqauth.Config{Secret: testutil.TestSecret, BearerToken: testBearer, Now: func() time.Time { return testNow }},
		inmemdb.NewNonceRepository(db),
		logsvc.NewNopLogger(),
	)
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		gotBody = buf.String()
		if r.URL.Path != welcomePath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := auth.Authenticate(r.Context(), reqauth.RequestFromHTTP(r, buf.Bytes())); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"queued"}`))
	}))
	defer srv.Close()

	tests := []cliTest{
		{name: "missing name", args: []string{"sendwelcome", "-url", srv.URL, "-email", "jane@example.com"}, wantErrStr: `Required flag "name" not set`},
		{name: "accepted", args: []string{"sendwelcome", "-url", srv.URL + "/", "-email", "jane@example.com", "-name", "Jane"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			checkErr(t, tt, run(cl, tt.args...))
		})
	}
	assert.Equal(t, "202 Accepted {\"status\":\"queued\"}\n", out.String())
	assert.JSONEq(t, `{"email":"jane@example.com","name":"Jane","locale":""}`, gotBody)

	cl.conf.Auth.BearerToken = "wrong"
	out.Reset()
	err = run(cl, "sendwelcome", "-url", srv.URL, "-email", "jane@example.com", "-name", "Jane")
	assert.EqualError(t, err, "request failed with status 401")
}
