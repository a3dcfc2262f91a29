package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	n, err := Parse(" SMS ")
	require.NoError(t, err)
	assert.Equal(t, SMS, n)

	_, err = Parse("pigeon")
	assert.ErrorIs(t, err, ErrUnsupported)

	assert.Equal(t, []Name{WhatsApp, SMS, Chat}, ParseList("whatsapp, sms,fax,chat"))
}

func TestRegistrySendUnsupportedIsPermanent(t *testing.T) {
	r := NewRegistry()
	r.Register(SMS, AdapterFunc(func(ctx context.Context, env Envelope) (string, error) {
		return "SM1", nil
	}))

	id, err := r.Send(context.Background(), SMS, Envelope{Destination: "+15550001"})
	require.NoError(t, err)
	assert.Equal(t, "SM1", id)

	_, err = r.Send(context.Background(), Voice, Envelope{})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestIsPermanent(t *testing.T) {
	assert.False(t, IsPermanent(errors.New("boom")))
	assert.True(t, IsPermanent(fmt.Errorf("wrapped: %w", Permanent(errors.New("bad number")))))
	assert.Nil(t, Permanent(nil))
}

func TestSMSGateway(t *testing.T) {
	var got url.Values
	status := http.StatusCreated
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "/Accounts/AC1/Messages.json", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		got, _ = url.ParseQuery(string(b))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"sid":"SM123","message":"nope"}`))
	}))
	defer srv.Close()

	g := NewSMSGateway(SMSOptions{BaseURL: srv.URL + "/", AccountSID: "AC1", AuthToken: "secret", From: "+15550000"}, srv.Client())

	t.Run("success", func(t *testing.T) {
		id, err := g.Send(context.Background(), Envelope{Destination: "+15551234", Body: "hi", Attachments: []string{"https://x/a.png"}})
		require.NoError(t, err)
		assert.Equal(t, "SM123", id)
		assert.Equal(t, "+15550000", got.Get("From"))
		assert.Equal(t, "+15551234", got.Get("To"))
		assert.Equal(t, "hi", got.Get("Body"))
		assert.Equal(t, []string{"https://x/a.png"}, got["MediaUrl"])
	})

	t.Run("server error is transient", func(t *testing.T) {
		status = http.StatusInternalServerError
		_, err := g.Send(context.Background(), Envelope{Destination: "+15551234", Body: "hi"})
		require.Error(t, err)
		assert.False(t, IsPermanent(err))
	})

	t.Run("rate limit is transient", func(t *testing.T) {
		status = http.StatusTooManyRequests
		_, err := g.Send(context.Background(), Envelope{Destination: "+15551234", Body: "hi"})
		require.Error(t, err)
		assert.False(t, IsPermanent(err))
	})

	t.Run("client error is permanent", func(t *testing.T) {
		status = http.StatusBadRequest
		_, err := g.Send(context.Background(), Envelope{Destination: "+15551234", Body: "hi"})
		require.Error(t, err)
		assert.True(t, IsPermanent(err))
	})

	t.Run("whatsapp prefix", func(t *testing.T) {
		status = http.StatusCreated
		wa := NewSMSGateway(SMSOptions{BaseURL: srv.URL, AccountSID: "AC1", AuthToken: "secret", From: "+15550000", AddressPrefix: "whatsapp:"}, srv.Client())
		_, err := wa.Send(context.Background(), Envelope{Destination: "+15551234", Body: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "whatsapp:+15551234", got.Get("To"))
		assert.Equal(t, "whatsapp:+15550000", got.Get("From"))
	})
}

func TestEmailRelay(t *testing.T) {
	var sent []byte
	var rcpt []string
	fail := error(nil)
	relay := NewEmailRelay(SMTPOptions{Addr: "mail.local:25", From: "assistant@nudge.test"},
		func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			sent, rcpt = msg, to
			return fail
		})

	id, err := relay.Send(context.Background(), Envelope{
		Destination: "ada@example.com",
		Subject:     "Morning check-in",
		Body:        "line one\nline two",
		Attachments: []string{"https://files/plan.pdf"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "<") && strings.HasSuffix(id, "@nudge>"))
	assert.Equal(t, []string{"ada@example.com"}, rcpt)
	body := string(sent)
	assert.Contains(t, body, "Subject: Morning check-in\r\n")
	assert.Contains(t, body, "line one\r\nline two")
	assert.Contains(t, body, "- https://files/plan.pdf")

	_, err = relay.Send(context.Background(), Envelope{Destination: "not-an-address"})
	assert.True(t, IsPermanent(err))

	fail = &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
	_, err = relay.Send(context.Background(), Envelope{Destination: "ada@example.com", Body: "x"})
	assert.True(t, IsPermanent(err))

	fail = &textproto.Error{Code: 451, Msg: "try again later"}
	_, err = relay.Send(context.Background(), Envelope{Destination: "ada@example.com", Body: "x"})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestChatInboxRequiresOwner(t *testing.T) {
	c := &ChatInbox{}
	_, err := c.Send(context.Background(), Envelope{Body: "hello"})
	assert.True(t, IsPermanent(err))
}
