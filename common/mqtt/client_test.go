package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-ews/common/config"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// fakePaho records subscriptions the way a broker session would.
type fakePaho struct {
	mu           sync.Mutex
	routes       map[string]mqtt.MessageHandler
	subscribeErr error
	published    []string
}

func newFakePaho() *fakePaho { return &fakePaho{routes: map[string]mqtt.MessageHandler{}} }

func (f *fakePaho) IsConnected() bool      { return true }
func (f *fakePaho) IsConnectionOpen() bool { return true }
func (f *fakePaho) Connect() mqtt.Token    { return doneToken{} }
func (f *fakePaho) Disconnect(uint)        {}
func (f *fakePaho) Publish(topic string, _ byte, _ bool, _ interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, topic)
	return doneToken{}
}
func (f *fakePaho) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return doneToken{err: f.subscribeErr}
	}
	f.routes[topic] = cb
	return doneToken{}
}
func (f *fakePaho) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return doneToken{}
}
func (f *fakePaho) Unsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.routes, t)
	}
	return doneToken{}
}
func (f *fakePaho) AddRoute(string, mqtt.MessageHandler)    {}
func (f *fakePaho) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

// dropSession simulates a clean-session reconnect.
func (f *fakePaho) dropSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = map[string]mqtt.MessageHandler{}
}

func (f *fakePaho) deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	cb, ok := f.routes[topic]
	f.mu.Unlock()
	if ok {
		cb(f, fakeMessage{topic: topic, payload: payload})
	}
	return ok
}

func TestClient_ResubscribesAfterReconnect(t *testing.T) {
	paho := newFakePaho()
	c := newClient(paho, zap.NewNop())

	var got []string
	require.NoError(t, c.Subscribe("ews/+/observations", 1, func(topic string, payload []byte) error {
		got = append(got, string(payload))
		return nil
	}))
	require.True(t, paho.deliver("ews/+/observations", []byte("one")))

	paho.dropSession()
	assert.False(t, paho.deliver("ews/+/observations", []byte("lost")))

	c.resubscribe()
	require.True(t, paho.deliver("ews/+/observations", []byte("two")))
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestClient_UnsubscribeForgetsTopic(t *testing.T) {
	paho := newFakePaho()
	c := newClient(paho, zap.NewNop())
	require.NoError(t, c.Subscribe("a", 0, func(string, []byte) error { return nil }))

	require.NoError(t, c.Unsubscribe("a"))
	c.resubscribe()

	assert.False(t, paho.deliver("a", nil))
}

func TestClient_SubscribeError(t *testing.T) {
	paho := newFakePaho()
	paho.subscribeErr = errors.New("not authorized")
	c := newClient(paho, zap.NewNop())

	err := c.Subscribe("a", 0, func(string, []byte) error { return nil })
	require.Error(t, err)

	// a failed subscription is not replayed on reconnect
	paho.subscribeErr = nil
	c.resubscribe()
	assert.False(t, paho.deliver("a", nil))
}

func TestClient_HandlerErrorIsSwallowed(t *testing.T) {
	paho := newFakePaho()
	c := newClient(paho, zap.NewNop())
	require.NoError(t, c.Subscribe("a", 0, func(string, []byte) error { return errors.New("bad payload") }))

	assert.NotPanics(t, func() { paho.deliver("a", []byte("x")) })
}

func TestClient_Publish(t *testing.T) {
	paho := newFakePaho()
	c := newClient(paho, zap.NewNop())

	require.NoError(t, c.Publish("ews/t1/alerts/AlertOpened", 1, false, []byte("{}")))
	assert.Equal(t, []string{"ews/t1/alerts/AlertOpened"}, paho.published)
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(&config.MQTTConfig{ClientID: "ews"}, zap.NewNop())
	assert.Error(t, err)
}
