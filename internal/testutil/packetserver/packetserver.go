// Package packetserver runs a scripted feed server on loopback for tests.
package packetserver

import (
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/seqfetch/internal/protocol"
)

// Options scripts the server's answers.
type Options struct {
	// Bulk is streamed in order on a stream-all request, then BulkRaw.
	Bulk    []protocol.Packet
	BulkRaw []byte
	// Catalog answers resend requests. Bulk entries are included by
	// default, last occurrence wins; Catalog entries override them.
	Catalog []protocol.Packet
	// DropResend ignores a sequence for the given number of resend requests.
	DropResend map[int32]int
	// ChunkSize splits responses into writes of at most this many bytes.
	ChunkSize  int
	ChunkDelay time.Duration
	// Hang keeps every connection open after responding.
	Hang bool
}

// Request is one 2-byte request as received.
type Request struct {
	Conn     int
	CallType uint8
	Seq      uint8
}

type Server struct {
	ln      net.Listener
	opts    Options
	bulk    []byte
	catalog map[int32][]byte
	done    chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	conns    int
	requests []Request
	drops    map[int32]int
	closed   bool
}

func Start(t testing.TB, opts Options) *Server {
	t.Helper()

	s := &Server{
		opts:    opts,
		catalog: make(map[int32][]byte),
		done:    make(chan struct{}),
		drops:   make(map[int32]int),
	}
	for seq, n := range opts.DropResend {
		s.drops[seq] = n
	}
	for _, p := range opts.Bulk {
		wire, err := protocol.EncodePacket(p)
		if err != nil {
			t.Fatalf("encode bulk packet seq=%d: %v", p.Sequence, err)
		}
		s.bulk = append(s.bulk, wire...)
		s.catalog[p.Sequence] = wire
	}
	s.bulk = append(s.bulk, opts.BulkRaw...)
	for _, p := range opts.Catalog {
		wire, err := protocol.EncodePacket(p)
		if err != nil {
			t.Fatalf("encode catalog packet seq=%d: %v", p.Sequence, err)
		}
		s.catalog[p.Sequence] = wire
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// Connections reports how many connections were accepted.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	_ = s.ln.Close()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		id := s.conns
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(id, conn)
		}()
	}
}

func (s *Server) handle(id int, conn net.Conn) {
	defer conn.Close()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-s.done:
			_ = conn.Close()
		case <-stop:
		}
	}()

	var req [protocol.RequestSize]byte
	if _, err := io.ReadFull(conn, req[:]); err != nil {
		return
	}
	s.record(id, req)

	switch req[0] {
	case protocol.CallStreamAll:
		s.write(conn, s.bulk)
	case protocol.CallResend:
		seqs := []uint8{req[1]}
		for {
			if _, err := io.ReadFull(conn, req[:]); err != nil {
				break
			}
			s.record(id, req)
			if req[0] == protocol.CallResend {
				seqs = append(seqs, req[1])
			}
		}
		s.write(conn, s.resendPayload(seqs))
	}

	if s.opts.Hang {
		<-s.done
	}
}

func (s *Server) record(id int, req [protocol.RequestSize]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{Conn: id, CallType: req[0], Seq: req[1]})
}

func (s *Server) resendPayload(seqs []uint8) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, raw := range seqs {
		seq := int32(raw)
		if s.drops[seq] > 0 {
			s.drops[seq]--
			continue
		}
		if wire, ok := s.catalog[seq]; ok {
			out = append(out, wire...)
		}
	}
	return out
}

func (s *Server) write(conn net.Conn, data []byte) {
	step := s.opts.ChunkSize
	if step <= 0 {
		step = len(data)
	}
	for start := 0; start < len(data); start += step {
		end := min(start+step, len(data))
		if _, err := conn.Write(data[start:end]); err != nil {
			return
		}
		if s.opts.ChunkDelay > 0 {
			time.Sleep(s.opts.ChunkDelay)
		}
	}
}
