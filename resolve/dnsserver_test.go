package resolve

import (
	"net"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/net/dns/dnsmessage"
)

// testDNSServer answers queries on a loopback UDP socket from a static zone.
type testDNSServer struct {
	conn    net.PacketConn
	mu      sync.Mutex
	zone    map[string][]netip.Addr
	rcodes  map[string]dnsmessage.RCode
	silent  map[string]bool
	ttls    map[netip.Addr]uint32
	// decoys are answered first under a different question name.
	decoys  map[string]netip.Addr
	queries atomic.Int64
}

func newTestDNSServer(t *testing.T) *testDNSServer {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket failed: %v", err)
	}
	s := &testDNSServer{
		conn:   conn,
		zone:   make(map[string][]netip.Addr),
		rcodes: make(map[string]dnsmessage.RCode),
		silent: make(map[string]bool),
		ttls:   make(map[netip.Addr]uint32),
		decoys: make(map[string]netip.Addr),
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.serve()
	}()
	t.Cleanup(func() {
		_ = conn.Close()
		<-done
	})
	return s
}

func (s *testDNSServer) Addr() string { return s.conn.LocalAddr().String() }

func (s *testDNSServer) add(name string, addrs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range addrs {
		s.zone[name+"."] = append(s.zone[name+"."], netip.MustParseAddr(a))
	}
}

func (s *testDNSServer) setRCode(name string, rcode dnsmessage.RCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rcodes[name+"."] = rcode
}

func (s *testDNSServer) setSilent(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent[name+"."] = true
}

func (s *testDNSServer) setTTL(addr string, ttl uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttls[netip.MustParseAddr(addr)] = ttl
}

func (s *testDNSServer) setDecoy(name, addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decoys[name+"."] = netip.MustParseAddr(addr)
}

func (s *testDNSServer) serve() {
	buf := make([]byte, 512)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		s.queries.Add(1)

		var req dnsmessage.Message
		if err := req.Unpack(buf[:n]); err != nil || len(req.Questions) != 1 {
			continue
		}
		if decoy, ok := s.decoyFor(req); ok {
			if packed, err := decoy.Pack(); err == nil {
				_, _ = s.conn.WriteTo(packed, addr)
			}
		}
		resp, ok := s.answer(req)
		if !ok {
			continue
		}
		packed, err := resp.Pack()
		if err != nil {
			continue
		}
		_, _ = s.conn.WriteTo(packed, addr)
	}
}

// decoyFor builds a reply with the query's ID that answers another name.
func (s *testDNSServer) decoyFor(req dnsmessage.Message) (dnsmessage.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := req.Questions[0]
	a, ok := s.decoys[strings.ToLower(q.Name.String())]
	if !ok || !a.Is4() || q.Type != dnsmessage.TypeA {
		return dnsmessage.Message{}, false
	}
	other := dnsmessage.MustNewName("decoy." + q.Name.String())
	return dnsmessage.Message{
		Header:    dnsmessage.Header{ID: req.Header.ID, Response: true},
		Questions: []dnsmessage.Question{{Name: other, Type: q.Type, Class: q.Class}},
		Answers: []dnsmessage.Resource{{
			Header: dnsmessage.ResourceHeader{Name: other, Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET, TTL: 60},
			Body:   &dnsmessage.AResource{A: a.As4()},
		}},
	}, true
}

func (s *testDNSServer) answer(req dnsmessage.Message) (dnsmessage.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := req.Questions[0]
	name := strings.ToLower(q.Name.String())
	if s.silent[name] {
		return dnsmessage.Message{}, false
	}

	resp := dnsmessage.Message{
		Header: dnsmessage.Header{
			ID:            req.Header.ID,
			Response:      true,
			Authoritative: true,
		},
		Questions: req.Questions,
	}
	if rcode, ok := s.rcodes[name]; ok {
		resp.Header.RCode = rcode
		return resp, true
	}
	addrs, ok := s.zone[name]
	if !ok {
		resp.Header.RCode = dnsmessage.RCodeNameError
		return resp, true
	}

	for _, a := range addrs {
		ttl, ok := s.ttls[a]
		if !ok {
			ttl = 60
		}
		hdr := dnsmessage.ResourceHeader{Name: q.Name, Class: dnsmessage.ClassINET, TTL: ttl}
		switch {
		case a.Is4() && q.Type == dnsmessage.TypeA:
			hdr.Type = dnsmessage.TypeA
			resp.Answers = append(resp.Answers, dnsmessage.Resource{Header: hdr, Body: &dnsmessage.AResource{A: a.As4()}})
		case a.Is6() && q.Type == dnsmessage.TypeAAAA:
			hdr.Type = dnsmessage.TypeAAAA
			resp.Answers = append(resp.Answers, dnsmessage.Resource{Header: hdr, Body: &dnsmessage.AAAAResource{AAAA: a.As16()}})
		}
	}
	return resp, true
}
