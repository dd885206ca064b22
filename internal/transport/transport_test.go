package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"roast_monitor/internal/lineparser"
	"roast_monitor/internal/models"
)

type fakePort struct {
	r *io.PipeReader

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.r.Close()
}

func (p *fakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

type readings struct {
	mu  sync.Mutex
	got []models.Reading
}

func (r *readings) add(x models.Reading) {
	r.mu.Lock()
	r.got = append(r.got, x)
	r.mu.Unlock()
}

func (r *readings) snapshot() []models.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Reading(nil), r.got...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testOptions() Options {
	return Options{PollInterval: 10 * time.Millisecond, Fallback: lineparser.ETFallbackZero}
}

func TestSerial_ReadsPollsAndDisconnects(t *testing.T) {
	pr, pw := io.Pipe()
	port := &fakePort{r: pr}
	s := NewSerial("/dev/ttyUSB0", 9600, testOptions())
	var gotName string
	var gotBaud int
	s.open = func(name string, baud int) (io.ReadWriteCloser, error) {
		gotName, gotBaud = name, baud
		return port, nil
	}

	var got readings
	disconnected := make(chan struct{})
	label, err := s.Connect(context.Background(), got.add, func() { close(disconnected) })
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if gotName != "/dev/ttyUSB0" || gotBaud != 9600 || !strings.Contains(label, "/dev/ttyUSB0") {
		t.Fatalf("opened %q@%d, label %q", gotName, gotBaud, label)
	}

	_, _ = pw.Write([]byte("18"))
	_, _ = pw.Write([]byte("0.5,200\r\n#comment\n190\n"))
	waitFor(t, "two readings", func() bool { return len(got.snapshot()) == 2 })
	rs := got.snapshot()
	if rs[0].BT != 180.5 || rs[0].ET != 200 || !rs[0].HasET {
		t.Fatalf("first reading = %+v", rs[0])
	}
	if rs[1].BT != 190 || rs[1].HasET || rs[1].At.IsZero() {
		t.Fatalf("second reading = %+v", rs[1])
	}

	waitFor(t, "poll command", func() bool { return strings.Contains(port.Written(), "READ\r\n") })

	_ = pw.Close()
	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatalf("onDisconnect not called")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close after disconnect: %v", err)
	}
}

func TestSerial_CloseDoesNotReportDisconnect(t *testing.T) {
	pr, _ := io.Pipe()
	port := &fakePort{r: pr}
	s := NewSerial("COM3", 0, testOptions())
	s.open = func(string, int) (io.ReadWriteCloser, error) { return port, nil }

	called := make(chan struct{}, 1)
	if _, err := s.Connect(context.Background(), nil, func() { called <- struct{}{} }); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := s.Connect(context.Background(), nil, nil); !errors.Is(err, ErrHandshake) {
		t.Fatalf("second Connect: want ErrHandshake, got %v", err)
	}
	_ = s.Close()
	_ = s.Close()
	select {
	case <-called:
		t.Fatalf("onDisconnect must not fire after Close")
	case <-time.After(50 * time.Millisecond):
	}
	port.mu.Lock()
	closed := port.closed
	port.mu.Unlock()
	if !closed {
		t.Fatalf("port not closed")
	}
}

func TestSerial_OpenFailure(t *testing.T) {
	s := NewSerial("/dev/missing", 9600, testOptions())
	s.open = func(string, int) (io.ReadWriteCloser, error) { return nil, errors.New("no such file") }
	if _, err := s.Connect(context.Background(), nil, nil); !errors.Is(err, ErrHandshake) {
		t.Fatalf("want ErrHandshake, got %v", err)
	}
}

func TestWebSocket_JSONTextAndPoll(t *testing.T) {
	polled := make(chan string, 8)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"temp1":210}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"Environment": 210.4, "seq": 3}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"temp1": 210.4, "temp2": "180.1"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("175.5,205"))
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case polled <- string(msg):
			default:
			}
			if string(msg) == "READ\n" {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
	defer srv.Close()

	w := NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), testOptions())
	var got readings
	disconnected := make(chan struct{})
	if _, err := w.Connect(context.Background(), got.add, func() { close(disconnected) }); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	select {
	case msg := <-polled:
		if msg != "READ\n" {
			t.Fatalf("poll = %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no poll command")
	}
	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatalf("onDisconnect not called after server close")
	}
	rs := got.snapshot()
	if len(rs) != 2 {
		t.Fatalf("readings = %+v", rs)
	}
	if rs[0].BT != 180.1 || rs[0].ET != 210.4 {
		t.Fatalf("json reading = %+v", rs[0])
	}
	if rs[1].BT != 175.5 || rs[1].ET != 205 {
		t.Fatalf("text reading = %+v", rs[1])
	}
	_ = w.Close()
}

func TestStream_JSONWithoutBeanIsNoReading(t *testing.T) {
	var got readings
	s := newStream("websocket", Options{Now: time.Now}, got.add)
	for _, msg := range []string{`{"temp1":210}`, `{"Environment": 210.4}`, `{"et": 120, "seq": 3}`, `[1, 2]`, `42`} {
		if n := s.message([]byte(msg)); n != 0 {
			t.Errorf("%s: produced %d readings", msg, n)
		}
	}
	if n := s.message([]byte(`{"bt": 190, "et": 220}`)); n != 1 {
		t.Fatalf("bt payload produced %d readings", n)
	}
	if n := s.message([]byte("not json 181.5")); n != 1 {
		t.Fatalf("text payload produced %d readings", n)
	}
	rs := got.snapshot()
	if len(rs) != 2 || rs[0].BT != 190 || rs[0].ET != 220 || rs[1].BT != 181.5 {
		t.Fatalf("readings = %+v", rs)
	}
}

func TestWebSocket_DialFailure(t *testing.T) {
	w := NewWebSocket("ws://127.0.0.1:1/none", testOptions())
	if _, err := w.Connect(context.Background(), nil, nil); !errors.Is(err, ErrHandshake) {
		t.Fatalf("want ErrHandshake, got %v", err)
	}
}

func TestNew_Factory(t *testing.T) {
	tests := []struct {
		p       Params
		wantErr error
		check   func(Transport) bool
	}{
		{Params{Kind: "serial", Address: "/dev/ttyACM0"}, nil, func(tr Transport) bool {
			s, ok := tr.(*Serial)
			return ok && s.baud == DefaultBaud
		}},
		{Params{Kind: "serial"}, ErrHandshake, nil},
		{Params{Kind: "websocket", Address: "ws://roaster.local/ws"}, nil, func(tr Transport) bool {
			_, ok := tr.(*WebSocket)
			return ok
		}},
		{Params{Kind: "BLE"}, nil, func(tr Transport) bool {
			_, ok := tr.(BLE)
			return ok
		}},
		{Params{Kind: "simulator"}, nil, func(tr Transport) bool {
			_, ok := tr.(*Simulator)
			return ok
		}},
		{Params{Kind: "carrier-pigeon"}, ErrUnknownKind, nil},
	}
	for _, tc := range tests {
		tr, err := New(tc.p, Options{})
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("%+v: want %v, got %v", tc.p, tc.wantErr, err)
			}
			continue
		}
		if err != nil || !tc.check(tr) {
			t.Errorf("%+v: got %T, %v", tc.p, tr, err)
		}
	}
}

func TestBLE_Unavailable(t *testing.T) {
	if _, err := (BLE{}).Connect(context.Background(), nil, nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestSimulator_StepApproachesHeater(t *testing.T) {
	s := NewSimulator(Options{Simulator: SimulatorConfig{Ambient: 20, Heater: 200}})
	s.bt, s.et = 20, 20
	prevBT, prevET := s.bt, s.et
	for i := 0; i < 600; i++ {
		bt, et := s.step(1)
		if bt < prevBT || et < prevET {
			t.Fatalf("step %d went backwards: bt %v→%v et %v→%v", i, prevBT, bt, prevET, et)
		}
		if bt > et || et > 200 {
			t.Fatalf("step %d out of order: bt=%v et=%v", i, bt, et)
		}
		prevBT, prevET = bt, et
	}
	if prevET < 190 || prevBT < 150 {
		t.Fatalf("after 10 min bt=%v et=%v", prevBT, prevET)
	}
}

func TestSimulator_EmitsReadings(t *testing.T) {
	s := NewSimulator(Options{Simulator: SimulatorConfig{Tick: 5 * time.Millisecond}})
	var got readings
	if _, err := s.Connect(context.Background(), got.add, nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, "simulated readings", func() bool { return len(got.snapshot()) >= 3 })
	_ = s.Close()
	_ = s.Close()
	for _, r := range got.snapshot() {
		if !r.HasET || r.BT < simAmbientC-1 {
			t.Fatalf("reading = %+v", r)
		}
	}
}

func TestLiveCell(t *testing.T) {
	var c LiveCell
	if _, ok := c.Get(); ok {
		t.Fatalf("new cell should be empty")
	}
	c.Set(models.Reading{BT: 150})
	if r, ok := c.Get(); !ok || r.BT != 150 {
		t.Fatalf("Get = %+v, %v", r, ok)
	}
	c.Clear()
	if _, ok := c.Get(); ok {
		t.Fatalf("cleared cell should be empty")
	}
}

func TestTask_StopIdempotent(t *testing.T) {
	tk, ctx := startTask(context.Background())
	tk.Go(func() { <-ctx.Done() })
	tk.Stop()
	tk.Stop()
	tk.Wait()
	var nilTask *task
	nilTask.Stop()
	nilTask.Wait()
}
