package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermoguard/internal/models"
)

var lowAlert = models.Notification{
	Title: "Low temperature alert",
	Body:  "Current temperature is 15.0°C, below the minimum of 19.0°C.",
	Data: map[string]any{
		"key":       "temperature:low",
		"metric":    "temperature",
		"direction": "low",
		"value":     15.0,
		"threshold": 19.0,
	},
}

type stubSink struct {
	name   string
	err    error
	calls  int
	closed bool
}

func (s *stubSink) Name() string { return s.name }
func (s *stubSink) Schedule(ctx context.Context, n models.Notification) error {
	s.calls++
	return s.err
}
func (s *stubSink) Close() error { s.closed = true; return nil }

func TestFanout(t *testing.T) {
	ok := &stubSink{name: "ok"}
	bad := &stubSink{name: "bad", err: errors.New("down")}

	f := NewFanout(bad, ok)
	assert.NoError(t, f.Schedule(context.Background(), lowAlert), "one successful sink is enough")
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, bad.calls)

	allBad := NewFanout(bad, &stubSink{name: "worse", err: errors.New("also down")})
	err := allBad.Schedule(context.Background(), lowAlert)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Contains(t, err.Error(), "worse: also down")

	require.NoError(t, f.Close())
	assert.True(t, ok.closed)
	assert.ErrorIs(t, f.Schedule(context.Background(), lowAlert), ErrDispatcherClosed)

	assert.Error(t, NewFanout().Schedule(context.Background(), lowAlert))
}

func TestLogSink(t *testing.T) {
	var buf safeBuffer
	sink := NewLogSink(zerolog.New(&buf))
	require.NoError(t, sink.Schedule(context.Background(), lowAlert))
	assert.Contains(t, buf.String(), "Low temperature alert")
	assert.Contains(t, buf.String(), "below the minimum")
}

func TestSlackSink(t *testing.T) {
	var got SlackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewSlackSink(srv.URL, "#alerts")
	require.NoError(t, err)
	require.NoError(t, sink.Schedule(context.Background(), lowAlert))

	assert.Equal(t, "#alerts", got.Channel)
	require.Len(t, got.Attachments, 1)
	att := got.Attachments[0]
	assert.Equal(t, "Low temperature alert", att.Title)
	assert.Equal(t, "#1E90FF", att.Color)
	assert.Equal(t, "15.0", att.Fields[0].Value)
	assert.Equal(t, "19.0", att.Fields[1].Value)
}

func TestSlackSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sink, err := NewSlackSink(srv.URL, "")
	require.NoError(t, err)
	assert.Error(t, sink.Schedule(context.Background(), lowAlert))

	_, err = NewSlackSink("", "")
	assert.Error(t, err)
}

// fakeToken is a completed mqtt.Token.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakePublisher struct {
	topic   string
	qos     byte
	payload []byte
	err     error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.topic = topic
	p.qos = qos
	p.payload, _ = payload.([]byte)
	return newFakeToken(p.err)
}

func TestMQTTSink(t *testing.T) {
	pub := &fakePublisher{}
	sink, err := NewMQTTSink(pub, "thermoguard/alerts", 1)
	require.NoError(t, err)
	require.NoError(t, sink.Schedule(context.Background(), lowAlert))

	assert.Equal(t, "thermoguard/alerts", pub.topic)
	assert.Equal(t, byte(1), pub.qos)

	var evt models.AlertEvent
	require.NoError(t, json.Unmarshal(pub.payload, &evt))
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, lowAlert.Title, evt.Title)
	assert.Equal(t, "temperature:low", evt.Data["key"])

	pub.err = errors.New("not connected")
	assert.Error(t, sink.Schedule(context.Background(), lowAlert))

	_, err = NewMQTTSink(pub, "", 0)
	assert.Error(t, err)
}

type safeBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
