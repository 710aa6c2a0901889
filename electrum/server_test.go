package electrum

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type serverRequest struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// serverConn is one accepted client connection of the fake server.
type serverConn struct {
	conn net.Conn
	mu   sync.Mutex
}

func (s *serverConn) send(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.conn.Write([]byte(line + "\n"))
}

func (s *serverConn) reply(id uint64, result interface{}) {
	data, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
	s.send(string(data))
}

func (s *serverConn) replyError(id uint64, code int, message string) {
	data, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
	s.send(string(data))
}

func (s *serverConn) close() {
	s.conn.Close()
}

// fakeServer is a line delimited json-rpc server on a loopback socket. handle
// runs on the connection's reader goroutine.
type fakeServer struct {
	ln     net.Listener
	handle func(sc *serverConn, req serverRequest)

	mu       sync.Mutex
	accepted []*serverConn
	requests []serverRequest
}

func newFakeServer(t *testing.T, handle func(sc *serverConn, req serverRequest)) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeServer{ln: ln, handle: handle}
	go s.serve()
	t.Cleanup(func() {
		ln.Close()
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, sc := range s.accepted {
			sc.close()
		}
	})
	return s
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		sc := &serverConn{conn: conn}
		s.mu.Lock()
		s.accepted = append(s.accepted, sc)
		s.mu.Unlock()
		go s.read(sc)
	}
}

func (s *fakeServer) read(sc *serverConn) {
	scanner := bufio.NewScanner(sc.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var req serverRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()
		s.handle(sc, req)
	}
}

func (s *fakeServer) endpoint() string {
	return "tcp://" + s.ln.Addr().String()
}

func (s *fakeServer) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accepted)
}

func (s *fakeServer) seen() []serverRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]serverRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *fakeServer) lastConn() *serverConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.accepted) == 0 {
		return nil
	}
	return s.accepted[len(s.accepted)-1]
}
