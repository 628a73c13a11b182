package mqtt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"weatherstream/internal/broker"
	"weatherstream/internal/weather"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeClient overrides the parts of mqtt.Client the package uses.
type fakeClient struct {
	mqtt.Client

	mu          sync.Mutex
	connected   bool
	publishErrs []error
	published   [][]byte
	disconnects int
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if len(c.publishErrs) > 0 {
		err = c.publishErrs[0]
		c.publishErrs = c.publishErrs[1:]
	}
	if err == nil {
		c.published = append(c.published, payload.([]byte))
	}
	return newToken(err)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.connected = false
}

type fakeMessage struct {
	mqtt.Message
	id    uint16
	topic string
	body  []byte
	acked atomic.Bool
}

func (m *fakeMessage) MessageID() uint16 { return m.id }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) Payload() []byte   { return m.body }
func (m *fakeMessage) Ack()              { m.acked.Store(true) }

func connected(client *fakeClient) *conn {
	c := newConn(nil)
	c.client = client
	c.setConnected(true)
	return c
}

func testReading(t *testing.T) weather.Reading {
	t.Helper()
	r, err := weather.NewReading(
		weather.Location{Name: "Lisbon", Lat: 38.72, Lon: -9.14},
		weather.Observation{TemperatureCelsius: 18, Humidity: 60, Pressure: 1019, WindSpeed: 4.1},
	)
	if err != nil {
		t.Fatalf("NewReading: %v", err)
	}
	return r
}

func TestPublisher_RetriesUntilAcked(t *testing.T) {
	client := &fakeClient{connected: true, publishErrs: []error{errors.New("boom"), errors.New("boom")}}
	p := newPublisher(connected(client), Options{MaxAttempts: 3, PublishTimeout: time.Second})
	p.backoff = time.Millisecond

	out := p.Publish(context.Background(), "raw_data", testReading(t))
	if !out.OK() {
		t.Fatalf("Publish = %v, want delivered", out)
	}
	if len(client.published) != 1 {
		t.Fatalf("published %d, want 1", len(client.published))
	}
	if _, err := weather.Decode(client.published[0]); err != nil {
		t.Errorf("payload does not decode: %v", err)
	}
}

func TestPublisher_ExhaustedAttemptsAreRetriable(t *testing.T) {
	boom := errors.New("boom")
	client := &fakeClient{connected: true, publishErrs: []error{boom, boom, boom, boom}}
	p := newPublisher(connected(client), Options{MaxAttempts: 3, PublishTimeout: time.Second})
	p.backoff = time.Millisecond

	out := p.Publish(context.Background(), "raw_data", testReading(t))
	if out.Status != weather.StatusRetriable || !errors.Is(out.Err, boom) {
		t.Fatalf("Publish = %v, want retriable boom", out)
	}
	if len(client.publishErrs) != 1 {
		t.Errorf("made %d attempts, want 3", 4-len(client.publishErrs))
	}
}

func TestPublisher_NotConnected(t *testing.T) {
	client := &fakeClient{}
	p := newPublisher(connected(client), Options{MaxAttempts: 2})
	p.backoff = time.Millisecond

	out := p.Publish(context.Background(), "raw_data", testReading(t))
	if out.Status != weather.StatusRetriable {
		t.Fatalf("Publish = %v, want retriable", out)
	}
	if len(client.published) != 0 {
		t.Errorf("published %d while disconnected", len(client.published))
	}
}

func TestPublisher_Close(t *testing.T) {
	client := &fakeClient{connected: true}
	p := newPublisher(connected(client), Options{})

	_ = p.Close()
	_ = p.Close()
	if client.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", client.disconnects)
	}
	out := p.Publish(context.Background(), "raw_data", testReading(t))
	if out.Status != weather.StatusFatal || !errors.Is(out.Err, broker.ErrClosed) {
		t.Errorf("Publish after Close = %v, want fatal ErrClosed", out)
	}
}

func TestSubscriber_SharedFilter(t *testing.T) {
	tests := []struct {
		group string
		want  string
	}{
		{group: "weather-consumer-group", want: "$share/weather-consumer-group/raw_data"},
		{group: "", want: "raw_data"},
	}
	for _, tt := range tests {
		s := newSubscriber(connected(&fakeClient{}), "raw_data", tt.group)
		if s.filter != tt.want {
			t.Errorf("group %q: filter = %q, want %q", tt.group, s.filter, tt.want)
		}
	}
}

func TestSubscriber_AckAfterHandOff(t *testing.T) {
	s := newSubscriber(connected(&fakeClient{connected: true}), "raw_data", "g")
	m := &fakeMessage{id: 7, topic: "raw_data", body: []byte(`{"city":"x"}`)}

	done := make(chan struct{})
	go func() {
		s.handle(nil, m)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if m.acked.Load() {
		t.Fatal("message acked before Next took it")
	}

	got, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	<-done
	if !m.acked.Load() {
		t.Error("message not acked after hand-off")
	}
	if got.ID != "7" || got.Topic != "raw_data" || string(got.Value) != `{"city":"x"}` {
		t.Errorf("msg = %+v", got)
	}
}

func TestSubscriber_CloseReleasesPendingWithoutAck(t *testing.T) {
	client := &fakeClient{connected: true}
	s := newSubscriber(connected(client), "raw_data", "g")
	m := &fakeMessage{id: 1, topic: "raw_data"}

	done := make(chan struct{})
	go func() {
		s.handle(nil, m)
		close(done)
	}()

	_ = s.Close()
	_ = s.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler still blocked after Close")
	}
	if m.acked.Load() {
		t.Error("undelivered message was acked")
	}
	if client.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", client.disconnects)
	}
	if _, err := s.Next(context.Background()); !errors.Is(err, broker.ErrClosed) {
		t.Errorf("Next after Close = %v, want ErrClosed", err)
	}
}

func TestSubscriber_NextHonorsContext(t *testing.T) {
	s := newSubscriber(connected(&fakeClient{connected: true}), "raw_data", "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next = %v, want DeadlineExceeded", err)
	}
}
