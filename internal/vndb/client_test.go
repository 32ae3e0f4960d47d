package vndb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// testServer hands one end of an in-memory pipe to the client's dialer
// and keeps the other to play the remote service.
type testServer struct {
	t     *testing.T
	dials chan net.Conn
}

func newTestServer(t *testing.T) (*testServer, DialFunc) {
	s := &testServer{t: t, dials: make(chan net.Conn, 4)}
	dial := func(ctx context.Context) (net.Conn, error) {
		client, server := net.Pipe()
		s.dials <- server
		return client, nil
	}
	return s, dial
}

func (s *testServer) accept() net.Conn {
	s.t.Helper()
	select {
	case conn := <-s.dials:
		return conn
	case <-time.After(3 * time.Second):
		s.t.Fatal("timed out waiting for dial")
		return nil
	}
}

func (s *testServer) expectFrame(r *bufio.Reader) string {
	s.t.Helper()
	frame, err := r.ReadString(Delimiter)
	if err != nil {
		s.t.Fatalf("read frame: %v", err)
	}
	return frame[:len(frame)-1]
}

func (s *testServer) sendFrame(conn net.Conn, frame string) {
	s.t.Helper()
	if _, err := conn.Write(append([]byte(frame), Delimiter)); err != nil {
		s.t.Fatalf("write frame: %v", err)
	}
}

// login accepts a connection and completes the handshake.
func (s *testServer) login() (net.Conn, *bufio.Reader) {
	s.t.Helper()
	conn := s.accept()
	r := bufio.NewReader(conn)
	frame := s.expectFrame(r)
	if !strings.HasPrefix(frame, "login ") {
		s.t.Fatalf("expected login frame, got %q", frame)
	}
	s.sendFrame(conn, "ok")
	return conn, r
}

// doEventually retries past the ErrNotConnected window while the client
// finishes its handshake.
func doEventually(t *testing.T, c *Client, req Request) (Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		resp, err := c.Do(ctx, req)
		if !errors.Is(err, ErrNotConnected) {
			return resp, err
		}
		select {
		case <-ctx.Done():
			t.Fatal("client never became ready")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func resultsFrame(id uint64, title string) string {
	return fmt.Sprintf(`results {"num":1,"more":false,"items":[{"id":%d,"title":"%s"}]}`, id, title)
}

func firstVN(t *testing.T, resp Response) VNItem {
	t.Helper()
	results, err := resp.Results()
	if err != nil {
		t.Fatalf("decode results: %v", err)
	}
	vns, err := results.VNs()
	if err != nil {
		t.Fatalf("decode vns: %v", err)
	}
	if len(vns) != 1 {
		t.Fatalf("expected 1 vn, got %d", len(vns))
	}
	return vns[0]
}

func TestClientRequestResponse(t *testing.T) {
	srv, dial := newTestServer(t)
	c := NewClientDialer(dial)
	c.Start()
	defer c.Stop()

	conn, r := srv.login()
	defer conn.Close()

	type result struct {
		resp Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := doEventually(t, c, VNByID(17))
		done <- result{resp, err}
	}()

	frame := srv.expectFrame(r)
	if frame != "get vn basic (id = 17)" {
		t.Fatalf("unexpected request frame %q", frame)
	}
	srv.sendFrame(conn, resultsFrame(17, "Ever17"))

	res := <-done
	if res.err != nil {
		t.Fatalf("Do failed: %v", res.err)
	}
	if vn := firstVN(t, res.resp); vn.Title != "Ever17" {
		t.Errorf("got title %q", vn.Title)
	}
}

// Responses carry no request IDs; the first pending request must get
// the first response, the second the second.
func TestClientFIFOCorrelation(t *testing.T) {
	srv, dial := newTestServer(t)
	c := NewClientDialer(dial)
	c.Start()
	defer c.Stop()

	conn, r := srv.login()
	defer conn.Close()

	// Prime until the session is ready so both Dos below hit the wire.
	go func() {
		srv.expectFrame(r)
		srv.sendFrame(conn, resultsFrame(1, "prime"))
	}()
	if _, err := doEventually(t, c, VNByID(1)); err != nil {
		t.Fatalf("prime request failed: %v", err)
	}

	ctx := context.Background()
	first := make(chan Response, 1)
	second := make(chan Response, 1)

	go func() {
		resp, err := c.Do(ctx, VNByID(2))
		if err != nil {
			t.Errorf("first Do: %v", err)
		}
		first <- resp
	}()
	srv.expectFrame(r)

	go func() {
		resp, err := c.Do(ctx, VNByID(3))
		if err != nil {
			t.Errorf("second Do: %v", err)
		}
		second <- resp
	}()
	srv.expectFrame(r)

	// Answer in wire order; each waiter must get its own response.
	srv.sendFrame(conn, resultsFrame(2, "two"))
	srv.sendFrame(conn, resultsFrame(3, "three"))

	if vn := firstVN(t, <-first); vn.ID != 2 {
		t.Errorf("first request got vn %d", vn.ID)
	}
	if vn := firstVN(t, <-second); vn.ID != 3 {
		t.Errorf("second request got vn %d", vn.ID)
	}
}

func TestClientRejectsBeforeReady(t *testing.T) {
	srv, dial := newTestServer(t)
	c := NewClientDialer(dial)
	c.Start()
	defer c.Stop()

	conn := srv.accept()
	defer conn.Close()
	r := bufio.NewReader(conn)
	srv.expectFrame(r) // hold the login open, never answer

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.Do(ctx, VNByID(1))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

// Losing the connection fails every pending request; nothing is
// replayed, and the client reconnects on its own.
func TestClientDrainsOnDisconnect(t *testing.T) {
	srv, dial := newTestServer(t)
	c := NewClientDialer(dial)
	c.Start()
	defer c.Stop()

	conn, r := srv.login()

	go func() {
		srv.expectFrame(r)
		srv.sendFrame(conn, resultsFrame(1, "prime"))
	}()
	if _, err := doEventually(t, c, VNByID(1)); err != nil {
		t.Fatalf("prime request failed: %v", err)
	}

	pending := make(chan error, 1)
	go func() {
		_, err := c.Do(context.Background(), VNByID(2))
		pending <- err
	}()
	srv.expectFrame(r)
	conn.Close()

	select {
	case err := <-pending:
		if !errors.Is(err, ErrConnAborted) {
			t.Fatalf("expected ErrConnAborted, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("pending request never completed")
	}

	// The client reconnects after backoff and serves requests again.
	conn2, r2 := srv.login()
	defer conn2.Close()

	go func() {
		srv.expectFrame(r2)
		srv.sendFrame(conn2, resultsFrame(3, "back"))
	}()
	resp, err := doEventually(t, c, VNByID(3))
	if err != nil {
		t.Fatalf("request after reconnect failed: %v", err)
	}
	if vn := firstVN(t, resp); vn.Title != "back" {
		t.Errorf("got title %q", vn.Title)
	}
}

func TestClientStop(t *testing.T) {
	srv, dial := newTestServer(t)
	c := NewClientDialer(dial)
	c.Start()

	conn, _ := srv.login()
	defer conn.Close()

	c.Stop()
	c.Stop() // idempotent

	_, err := c.Do(context.Background(), VNByID(1))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after stop, got %v", err)
	}
}
