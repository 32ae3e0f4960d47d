package bot

import (
	"bufio"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConsoleTransport is a line-based TCP transport, mainly for local
// testing and operating the bot without a chat network. Every connected
// client is a private conversation keyed by its remote address.
type ConsoleTransport struct {
	ln     net.Listener
	events chan Event
	log    zerolog.Logger

	mu    sync.Mutex
	conns map[string]net.Conn

	stop chan struct{}
	wg   sync.WaitGroup
}

// ListenConsole starts the transport on addr.
func ListenConsole(addr string) (*ConsoleTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	t := &ConsoleTransport{
		ln:     ln,
		events: make(chan Event),
		log:    log.With().Str("component", "console").Logger(),
		conns:  make(map[string]net.Conn),
		stop:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.acceptLoop()
	return t, nil
}

func (t *ConsoleTransport) Name() string { return "console" }

func (t *ConsoleTransport) Events() <-chan Event { return t.events }

// Send writes one reply line to the client the target names. Lines to
// clients that already disconnected are dropped.
func (t *ConsoleTransport) Send(target, text string) {
	t.mu.Lock()
	conn := t.conns[target]
	t.mu.Unlock()
	if conn == nil {
		return
	}
	if _, err := conn.Write([]byte(text + "\n")); err != nil {
		t.log.Warn().Err(err).Str("target", target).Msg("write failed")
	}
}

// Close stops accepting, drops all clients and closes the event channel.
func (t *ConsoleTransport) Close() error {
	close(t.stop)
	err := t.ln.Close()
	t.mu.Lock()
	for _, conn := range t.conns {
		conn.Close()
	}
	t.mu.Unlock()
	t.wg.Wait()
	close(t.events)
	return err
}

func (t *ConsoleTransport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			select {
			case <-t.stop:
			default:
				t.log.Error().Err(err).Msg("accept failed")
			}
			return
		}
		t.wg.Add(1)
		go t.serve(conn)
	}
}

func (t *ConsoleTransport) serve(conn net.Conn) {
	defer t.wg.Done()
	from := conn.RemoteAddr().String()

	t.mu.Lock()
	t.conns[from] = conn
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.conns, from)
		t.mu.Unlock()
		conn.Close()
	}()

	t.log.Info().Str("from", from).Msg("client connected")
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		ev := Event{From: from, Target: from, Text: line, Private: true}
		select {
		case t.events <- ev:
		case <-t.stop:
			return
		}
	}
	t.log.Info().Str("from", from).Msg("client disconnected")
}
