package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/typester/riverql/internal/protocol"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeServer drives the server end of an in-memory connection.
type fakeServer struct {
	t    *testing.T
	conn protocol.Conn
}

func (s *fakeServer) send(frame string) {
	s.t.Helper()
	if err := s.conn.Send([]byte(frame)); err != nil {
		s.t.Errorf("Send(%s) error = %v", frame, err)
	}
}

func (s *fakeServer) recv() (string, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := s.conn.Receive()
		ch <- result{data, err}
	}()
	select {
	case r := <-ch:
		return string(r.data), r.err
	case <-time.After(2 * time.Second):
		return "", errors.New("timed out waiting for a frame")
	}
}

func (s *fakeServer) expect(want string) {
	s.t.Helper()
	got, err := s.recv()
	if err != nil {
		s.t.Errorf("Receive() error = %v, want %s", err, want)
		return
	}
	if got != want {
		s.t.Errorf("received %s, want %s", got, want)
	}
}

// recorder is a Handler keeping everything it receives.
type recorder struct {
	mu      sync.Mutex
	nexts   []string
	errs    []string
	nextErr error
}

func (r *recorder) Next(payload json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nexts = append(r.nexts, string(payload))
	return r.nextErr
}

func (r *recorder) Error(payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, string(payload))
}

const testQuery = `subscription { events { name } }`

var testRequest = protocol.SubscribePayload{Query: testQuery}

func start(t *testing.T, ctx context.Context, h Handler) (*fakeServer, <-chan error) {
	t.Helper()
	client, serverSide := protocol.Pipe()
	errc := make(chan error, 1)
	go func() {
		errc <- Run(ctx, client, testRequest, h, testLogger())
	}()
	return &fakeServer{t: t, conn: serverSide}, errc
}

func wait(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return")
		return nil
	}
}

func handshake(s *fakeServer) {
	s.expect(`{"type":"connection_init","payload":{}}`)
	s.send(`{"type":"connection_ack"}`)
	s.expect(`{"type":"subscribe","id":"1","payload":{"query":"subscription { events { name } }"}}`)
}

func TestRun_RoundTrip(t *testing.T) {
	rec := &recorder{}
	srv, errc := start(t, context.Background(), rec)

	srv.expect(`{"type":"connection_init","payload":{}}`)
	// anything before the ack is ignored
	srv.send(`{"type":"next","id":"1","payload":{"name":"early"}}`)
	srv.send(`not json`)
	srv.send(`{"type":"connection_ack"}`)
	srv.expect(`{"type":"subscribe","id":"1","payload":{"query":"subscription { events { name } }"}}`)

	srv.send(`{"type":"next","id":"1","payload":{"name":"normal"}}`)
	srv.send(`{"type":"error","id":"1","payload":[{"message":"boom"}]}`)
	srv.send(`{"type":"ka"}`)
	srv.send(`{"type":"next","id":"2","payload":{"name":"other"}}`)
	srv.send(`{"type":"error","id":"2","payload":[{"message":"other"}]}`)
	srv.send(`{"type":"complete","id":"2"}`)
	srv.send(`{"type":"ping","payload":{"n":1}}`)
	srv.expect(`{"type":"pong","payload":{"n":1}}`)
	srv.send(`{"type":"next","id":"1","payload":{"name":"passthrough"}}`)
	srv.send(`{"type":"complete","id":"1"}`)

	if err := wait(t, errc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantNexts := []string{`{"name":"normal"}`, `{"name":"passthrough"}`}
	if strings.Join(rec.nexts, "|") != strings.Join(wantNexts, "|") {
		t.Errorf("nexts = %v, want %v", rec.nexts, wantNexts)
	}
	if len(rec.errs) != 1 || rec.errs[0] != `[{"message":"boom"}]` {
		t.Errorf("errs = %v", rec.errs)
	}
}

func TestRun_IgnoresOtherSubscriptionIDs(t *testing.T) {
	rec := &recorder{}
	srv, errc := start(t, context.Background(), rec)

	handshake(srv)
	srv.send(`{"type":"complete","id":"7"}`)
	srv.send(`{"type":"error","id":"7","payload":[{"message":"not yours"}]}`)
	// the run is still alive if the ping is answered
	srv.send(`{"type":"ping"}`)
	srv.expect(`{"type":"pong"}`)
	srv.send(`{"type":"complete","id":"1"}`)

	if err := wait(t, errc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rec.errs) != 0 {
		t.Errorf("errs = %v, want none", rec.errs)
	}
}

func TestRun_ClosedBeforeAck(t *testing.T) {
	srv, errc := start(t, context.Background(), &recorder{})

	srv.expect(`{"type":"connection_init","payload":{}}`)
	srv.conn.Close()

	if err := wait(t, errc); !errors.Is(err, ErrClosedBeforeAck) {
		t.Errorf("Run() error = %v, want ErrClosedBeforeAck", err)
	}
}

func TestRun_TransportCloseIsDone(t *testing.T) {
	rec := &recorder{}
	srv, errc := start(t, context.Background(), rec)

	handshake(srv)
	srv.send(`{"type":"next","id":"1","payload":{"name":"normal"}}`)
	srv.conn.Close()

	if err := wait(t, errc); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
	if len(rec.nexts) != 1 {
		t.Errorf("nexts = %v, want the frame queued before close", rec.nexts)
	}
}

func TestRun_CancelSendsComplete(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, errc := start(t, ctx, &recorder{})

	handshake(srv)
	cancel()

	srv.expect(`{"type":"complete","id":"1"}`)
	if err := wait(t, errc); err != nil {
		t.Errorf("Run() error = %v, want nil after cancellation", err)
	}
}

func TestRun_CancelBeforeAck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv, errc := start(t, ctx, &recorder{})

	srv.expect(`{"type":"connection_init","payload":{}}`)
	cancel()

	if err := wait(t, errc); err != nil {
		t.Errorf("Run() error = %v, want nil after cancellation", err)
	}
	// no complete for a subscription that was never sent
	if data, err := srv.recv(); err != io.EOF {
		t.Errorf("Receive() = (%s, %v), want io.EOF", data, err)
	}
}

func TestRun_HandlerErrorStops(t *testing.T) {
	wantErr := errors.New("stdout closed")
	srv, errc := start(t, context.Background(), &recorder{nextErr: wantErr})

	handshake(srv)
	srv.send(`{"type":"next","id":"1","payload":{"name":"normal"}}`)

	if err := wait(t, errc); !errors.Is(err, wantErr) {
		t.Errorf("Run() error = %v, want %v", err, wantErr)
	}
}

func TestPrinter_Next(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out, testLogger())

	if err := p.Next(json.RawMessage("{\n  \"__typename\": \"SeatMode\",\n  \"name\": \"normal\"\n}")); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if err := p.Next(json.RawMessage(`{"tags":5}`)); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	want := "{\"__typename\":\"SeatMode\",\"name\":\"normal\"}\n{\"tags\":5}\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}

	if err := p.Next(json.RawMessage(`{broken`)); err == nil {
		t.Error("Next() expected error for invalid JSON")
	}
}

func TestPrinter_Error(t *testing.T) {
	var logs bytes.Buffer
	p := NewPrinter(io.Discard, slog.New(slog.NewTextHandler(&logs, nil)))

	p.Error(json.RawMessage(`[{"message":"unknown subscription field \"bogus\""}]`))
	p.Error(json.RawMessage(`"plain"`))

	if !strings.Contains(logs.String(), `unknown subscription field`) {
		t.Errorf("logs missing message: %s", logs.String())
	}
	if !strings.Contains(logs.String(), `payload="\"plain\""`) {
		t.Errorf("logs missing raw payload: %s", logs.String())
	}
}

func TestReadQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "focused.graphql")
	if err := os.WriteFile(path, []byte(testQuery+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		arg     string
		stdin   io.Reader
		want    string
		wantErr string
	}{
		{name: "argument", arg: testQuery, want: testQuery},
		{name: "file", arg: "@" + path, want: testQuery + "\n"},
		{name: "missing file", arg: "@" + path + ".missing", wantErr: "failed to read query file"},
		{name: "stdin", stdin: strings.NewReader(testQuery), want: testQuery},
		{name: "empty stdin", stdin: strings.NewReader("  \n"), wantErr: "query is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdin := tt.stdin
			if stdin == nil {
				stdin = strings.NewReader("")
			}
			got, err := ReadQuery(tt.arg, stdin)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ReadQuery() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadQuery() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadQuery_PipeIsNotTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	go func() {
		w.WriteString(testQuery)
		w.Close()
	}()

	got, err := ReadQuery("", r)
	if err != nil {
		t.Fatalf("ReadQuery() error = %v", err)
	}
	if got != testQuery {
		t.Errorf("ReadQuery() = %q", got)
	}
}
