package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/agentpulse/pkg/types"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"(555) 123-4567":   "15551234567",
		"+1 555 123 4567":  "15551234567",
		"1234567890":       "1234567890",
		"+44 20 7946 0958": "442079460958",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}

func TestWhatsAppNotifier_SendsToEachRecipient(t *testing.T) {
	var mu sync.Mutex
	var got []whatsAppMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/phone-1/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var msg whatsAppMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
		if msg.To == "15550000000" {
			http.Error(w, "bad number", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewWhatsAppNotifier(WhatsAppConfig{
		APIURL:            srv.URL,
		Token:             "tok",
		PhoneID:           "phone-1",
		Recipients:        []string{"555-123-4567", "5550000000"},
		MessagesPerSecond: 100,
	}, nil)
	require.NoError(t, err)

	err = n.Notify(context.Background(), Digest{})
	require.Error(t, err, "second recipient fails")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "15551234567", got[0].To)
	assert.Equal(t, "whatsapp", got[0].MessagingProduct)
	assert.Contains(t, got[0].Text.Body, "Feed Update")
}

func TestNewWhatsAppNotifier_RequiresCredentials(t *testing.T) {
	_, err := NewWhatsAppNotifier(WhatsAppConfig{}, nil)
	assert.Error(t, err)
}

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	closed   bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *fakeConn) FlushTimeout(time.Duration) error { return nil }

func (c *fakeConn) Close() { c.closed = true }

func TestNATSPublisher_Subjects(t *testing.T) {
	conn := &fakeConn{}
	p := newNATSPublisher(conn, "", nil)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, InteractionEvent(types.Interaction{AgentID: "a", PostID: "p", Kind: types.ActionReply})))
	require.NoError(t, p.Publish(ctx, SweepEvent(time.Now(), 1, 0)))
	require.NoError(t, p.Notify(ctx, Digest{Replies: 1}))
	p.Close()

	assert.Equal(t, []string{"feed.interactions", "feed.sweeps", "feed.digest"}, conn.subjects)
	assert.True(t, conn.closed)

	var evt Event
	require.NoError(t, json.Unmarshal(conn.payloads[0], &evt))
	assert.Equal(t, types.ActionReply, evt.Kind)
}

type recordingSink struct {
	events  []Event
	digests []Digest
	err     error
}

func (r *recordingSink) Publish(_ context.Context, evt Event) error {
	r.events = append(r.events, evt)
	return r.err
}

func (r *recordingSink) Notify(_ context.Context, d Digest) error {
	r.digests = append(r.digests, d)
	return r.err
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingSink{}
	bad := &recordingSink{err: errors.New("down")}
	f := NewFanout(nil)
	assert.True(t, f.Empty())

	f.AddPublisher(bad)
	f.AddPublisher(ok)
	f.AddNotifier(ok)
	f.AddNotifier(bad)
	assert.False(t, f.Empty())

	err := f.Publish(context.Background(), SweepEvent(time.Now(), 0, 0))
	assert.ErrorContains(t, err, "down")
	assert.Len(t, ok.events, 1)

	err = f.Notify(context.Background(), Digest{})
	assert.Error(t, err)
	assert.Len(t, ok.digests, 1)
	assert.Len(t, bad.digests, 1)
}
