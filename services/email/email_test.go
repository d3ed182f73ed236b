package emailsvc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studyrelay/core"
	"github.com/trezcool/studyrelay/services/logger"
)

func newMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:      []mail.Address{{Name: "Jane", Address: "jane@example.com"}},
		Subject: "Hello",
		BodyStr: "plain body",
	}
}

func TestConsoleService_Format(t *testing.T) {
	conf := core.NewConfig()
	svc := NewConsoleService(conf, logsvc.NewNopLogger())
	var out bytes.Buffer
	svc.out = &out

	msg := newMessage()
	require.NoError(t, msg.Attach(strings.NewReader("a,b\n1,2\n"), "data.csv", "text/csv"))
	require.NoError(t, svc.sendMessage(msg))

	body := out.String()
	assert.Contains(t, body, "Subject: ["+conf.AppName+"] Hello\r\n")
	assert.Contains(t, body, `To: "Jane" <jane@example.com>`)
	assert.Contains(t, body, "Content-Type: multipart/mixed; boundary=")
	assert.Contains(t, body, "plain body")
	assert.Contains(t, body, "attachment; filename=data.csv")
	assert.NotContains(t, body, "CC:")
}

func TestConsoleServiceMock_SentMessages(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewConfig(), logsvc.NewNopLogger())

	noRecipient := newMessage()
	noRecipient.To = nil
	svc.SendMessages(newMessage(), noRecipient)

	sent := svc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "plain body", sent[0].TextContent)
}

func TestSendgridService_Send(t *testing.T) {
	var (
		gotAuth string
		gotBody map[string]interface{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		if r.URL.Path != sendgridEndpoint {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	conf := core.NewConfig()
	conf.SendgridApiKey = "sg-key"
	svc := NewSendgridService(conf, logsvc.NewNopLogger())
	svc.host = srv.URL

	require.NoError(t, svc.sendMessage(newMessage()))
	assert.Equal(t, "Bearer sg-key", gotAuth)

	contents, ok := gotBody["content"].([]interface{})
	require.True(t, ok)
	require.Len(t, contents, 1, "no html part without html content")
	assert.Equal(t, "text/plain", contents[0].(map[string]interface{})["type"])

	personalizations := gotBody["personalizations"].([]interface{})
	p := personalizations[0].(map[string]interface{})
	assert.Equal(t, "["+conf.AppName+"] Hello", p["subject"])
}

func TestSendgridService_SendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	svc := NewSendgridService(core.NewConfig(), logsvc.NewNopLogger())
	svc.host = srv.URL

	err := svc.sendMessage(newMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
