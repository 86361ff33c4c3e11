// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrZAPClosed      = errors.New("zap: connection closed")
	ErrZAPTimeout     = errors.New("zap: request timeout")
	ErrZAPInvalidResp = errors.New("zap: invalid response")

	// ErrClosed and ErrTimeout are the transport-agnostic aliases the
	// messaging layer checks against (spec §7: "Transport closed",
	// "Timeout"). They are defined once here so every transport in this
	// package can report the same sentinels.
	ErrClosed  = ErrZAPClosed
	ErrTimeout = ErrZAPTimeout
)

// MessageType identifies ZAP message types. The high bit is a compression
// flag: when set, the frame's payload (but not its fixed-size fields) was
// run through the connection's negotiated Compressor before being written.
type MessageType uint8

const (
	MsgRequest  MessageType = 0x01
	MsgResponse MessageType = 0x02
	MsgError    MessageType = 0x03
	MsgNotify   MessageType = 0x04
	MsgPing     MessageType = 0x05
	MsgPong     MessageType = 0x06

	compressedFlag MessageType = 0x80
	kindMask       MessageType = 0x7f
)

const maxFrameSize = 64 * 1024 * 1024 // 64MB max

// zapDialOpts carries the dial-time settings ZAPDial needs beyond addr.
// Kept separate from dialOptions (client.go) so this file has no dependency
// on the transport-registry plumbing.
type zapDialOpts struct {
	tlsConfig  *tls.Config
	compressor Compressor
	keepalive  *KeepaliveParams
	localAddr  string
	noDelay    *bool
}

// ZAPConn represents a ZAP connection for RPC
type ZAPConn struct {
	conn     net.Conn
	writeMu  sync.Mutex
	pending  sync.Map // requestID -> chan *ZAPResponse
	nextID   atomic.Uint32
	closed   atomic.Bool
	readDone chan struct{}

	compressor Compressor
	keepalive  *KeepaliveParams

	sent         atomic.Uint64
	received     atomic.Uint64
	pendingCount atomic.Int64
	failedPings  atomic.Int64
	lastActivity atomic.Int64 // unix nanos

	pendingPings sync.Map // pingID -> chan struct{}
	nextPingID   atomic.Uint32
	stopKA       chan struct{}
	kaDone       chan struct{}
}

// ZAPResponse holds a response from a ZAP call
type ZAPResponse struct {
	Data []byte
	Err  error
}

// applyNoDelay sets TCP_NODELAY on conn if it's a *net.TCPConn and enabled
// is non-nil, leaving the platform default untouched otherwise.
func applyNoDelay(conn net.Conn, enabled *bool) {
	if enabled == nil {
		return
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(*enabled)
	}
}

// ZAPDial connects to a ZAP server using plaintext TCP and no compression.
func ZAPDial(ctx context.Context, addr string) (*ZAPConn, error) {
	return ZAPDialWithOptions(ctx, addr, nil)
}

// ZAPDialWithOptions connects to a ZAP server with TLS, compression and
// keepalive settings applied per spec §6.
func ZAPDialWithOptions(ctx context.Context, addr string, opts *zapDialOpts) (*ZAPConn, error) {
	if opts == nil {
		opts = &zapDialOpts{}
	}
	d := net.Dialer{}
	if opts.localAddr != "" {
		if la, err := net.ResolveTCPAddr("tcp", opts.localAddr); err == nil {
			d.LocalAddr = la
		}
	}

	var conn net.Conn
	var err error
	if opts.tlsConfig != nil {
		rawConn, derr := d.DialContext(ctx, "tcp", addr)
		if derr != nil {
			return nil, fmt.Errorf("zap dial: %w", derr)
		}
		applyNoDelay(rawConn, opts.noDelay)
		tlsCfg := opts.tlsConfig
		if tlsCfg.ServerName == "" && !tlsCfg.InsecureSkipVerify {
			if host, _, serr := net.SplitHostPort(addr); serr == nil {
				tlsCfg = tlsCfg.Clone()
				tlsCfg.ServerName = host
			}
		}
		tlsConn := tls.Client(rawConn, tlsCfg)
		if herr := tlsConn.HandshakeContext(ctx); herr != nil {
			rawConn.Close()
			return nil, fmt.Errorf("zap tls handshake: %w", herr)
		}
		conn = tlsConn
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("zap dial: %w", err)
		}
		applyNoDelay(conn, opts.noDelay)
	}

	zc := &ZAPConn{
		conn:       conn,
		readDone:   make(chan struct{}),
		compressor: opts.compressor,
		keepalive:  opts.keepalive,
	}
	zc.lastActivity.Store(time.Now().UnixNano())
	go zc.readLoop()
	if zc.keepalive != nil {
		zc.stopKA = make(chan struct{})
		zc.kaDone = make(chan struct{})
		go zc.keepaliveLoop()
	}
	return zc, nil
}

// Call makes a ZAP RPC call
func (z *ZAPConn) Call(ctx context.Context, method string, payload []byte) ([]byte, error) {
	if z.closed.Load() {
		return nil, ErrZAPClosed
	}

	requestID := z.nextID.Add(1)
	respCh := make(chan *ZAPResponse, 1)
	z.pending.Store(requestID, respCh)
	z.pendingCount.Add(1)
	defer func() {
		z.pending.Delete(requestID)
		z.pendingCount.Add(-1)
	}()

	wirePayload, mtype, err := z.encodePayload(payload, MsgRequest)
	if err != nil {
		return nil, err
	}

	// Encode: [4 len][1 type][4 reqID][2 methodLen][method][payload]
	methodBytes := []byte(method)
	msgLen := 1 + 4 + 2 + len(methodBytes) + len(wirePayload)

	buf := make([]byte, 4+msgLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(msgLen))
	buf[4] = byte(mtype)
	binary.BigEndian.PutUint32(buf[5:9], requestID)
	binary.BigEndian.PutUint16(buf[9:11], uint16(len(methodBytes)))
	copy(buf[11:], methodBytes)
	copy(buf[11+len(methodBytes):], wirePayload)

	if err := z.write(buf); err != nil {
		return nil, fmt.Errorf("zap write: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.Err != nil {
			return nil, resp.Err
		}
		return resp.Data, nil
	case <-z.readDone:
		return nil, ErrZAPClosed
	}
}

// Notify sends a one-way notification (no response expected)
func (z *ZAPConn) Notify(ctx context.Context, method string, payload []byte) error {
	if z.closed.Load() {
		return ErrZAPClosed
	}

	wirePayload, mtype, err := z.encodePayload(payload, MsgNotify)
	if err != nil {
		return err
	}

	methodBytes := []byte(method)
	msgLen := 1 + 2 + len(methodBytes) + len(wirePayload)

	buf := make([]byte, 4+msgLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(msgLen))
	buf[4] = byte(mtype)
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(methodBytes)))
	copy(buf[7:], methodBytes)
	copy(buf[7+len(methodBytes):], wirePayload)

	return z.write(buf)
}

func (z *ZAPConn) encodePayload(payload []byte, kind MessageType) ([]byte, MessageType, error) {
	if z.compressor == nil || len(payload) == 0 {
		return payload, kind, nil
	}
	compressed, err := z.compressor.Compress(payload)
	if err != nil {
		return nil, kind, fmt.Errorf("zap compress: %w", err)
	}
	return compressed, kind | compressedFlag, nil
}

func (z *ZAPConn) decodePayload(payload []byte, mtype MessageType) ([]byte, error) {
	if mtype&compressedFlag == 0 || z.compressor == nil {
		return payload, nil
	}
	return z.compressor.Decompress(payload)
}

func (z *ZAPConn) write(buf []byte) error {
	z.writeMu.Lock()
	_, err := z.conn.Write(buf)
	z.writeMu.Unlock()
	if err == nil {
		z.sent.Add(1)
		z.lastActivity.Store(time.Now().UnixNano())
	}
	return err
}

func (z *ZAPConn) keepaliveLoop() {
	defer close(z.kaDone)
	ticker := time.NewTicker(z.keepalive.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-z.stopKA:
			return
		case <-z.readDone:
			return
		case <-ticker.C:
			idleFor := time.Since(time.Unix(0, z.lastActivity.Load()))
			if idleFor < z.keepalive.IdleInterval {
				continue
			}
			if !z.sendPing() {
				if int(z.failedPings.Add(1)) >= z.keepalive.MaxFailedProbes {
					z.Close()
					return
				}
			}
		}
	}
}

// sendPing writes a ping and blocks (bounded by ProbeInterval) for the
// matching pong. Returns false on timeout or write error, counting as a
// failed probe.
func (z *ZAPConn) sendPing() bool {
	pingID := z.nextPingID.Add(1)
	ch := make(chan struct{}, 1)
	z.pendingPings.Store(pingID, ch)
	defer z.pendingPings.Delete(pingID)

	buf := make([]byte, 4+1+4)
	binary.BigEndian.PutUint32(buf[0:4], 5)
	buf[4] = byte(MsgPing)
	binary.BigEndian.PutUint32(buf[5:9], pingID)
	if err := z.write(buf); err != nil {
		return false
	}

	select {
	case <-ch:
		z.failedPings.Store(0)
		return true
	case <-time.After(z.keepalive.ProbeInterval):
		return false
	case <-z.readDone:
		return false
	}
}

func (z *ZAPConn) readLoop() {
	defer close(z.readDone)

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(z.conn, header); err != nil {
			return
		}

		msgLen := binary.BigEndian.Uint32(header)
		if msgLen == 0 || msgLen > maxFrameSize {
			return
		}

		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(z.conn, msg); err != nil {
			return
		}
		z.received.Add(1)
		z.lastActivity.Store(time.Now().UnixNano())

		if len(msg) < 1 {
			continue
		}

		mtype := MessageType(msg[0])
		kind := mtype & kindMask

		switch kind {
		case MsgResponse, MsgError:
			if len(msg) < 5 {
				continue
			}
			requestID := binary.BigEndian.Uint32(msg[1:5])
			payload := msg[5:]
			if ch, ok := z.pending.Load(requestID); ok {
				respCh := ch.(chan *ZAPResponse)
				if kind == MsgError {
					respCh <- &ZAPResponse{Err: errors.New(string(payload))}
					continue
				}
				decoded, derr := z.decodePayload(payload, mtype)
				if derr != nil {
					respCh <- &ZAPResponse{Err: derr}
					continue
				}
				respCh <- &ZAPResponse{Data: decoded}
			}
		case MsgPong:
			if len(msg) < 5 {
				continue
			}
			pingID := binary.BigEndian.Uint32(msg[1:5])
			if ch, ok := z.pendingPings.Load(pingID); ok {
				ch.(chan struct{}) <- struct{}{}
			}
		case MsgPing:
			if len(msg) < 5 {
				continue
			}
			pingID := binary.BigEndian.Uint32(msg[1:5])
			pong := make([]byte, 4+1+4)
			binary.BigEndian.PutUint32(pong[0:4], 5)
			pong[4] = byte(MsgPong)
			binary.BigEndian.PutUint32(pong[5:9], pingID)
			z.write(pong)
		}
	}
}

// Close closes the connection
func (z *ZAPConn) Close() error {
	if z.closed.Swap(true) {
		return nil
	}
	if z.stopKA != nil {
		select {
		case <-z.stopKA:
		default:
			close(z.stopKA)
		}
	}
	return z.conn.Close()
}

// Closed reports whether the connection's read loop has terminated, i.e.
// it is in a permanent error state and should be evicted by its owner.
func (z *ZAPConn) Closed() bool {
	if z.closed.Load() {
		return true
	}
	select {
	case <-z.readDone:
		return true
	default:
		return false
	}
}

// Stats returns a snapshot of this connection's counters.
func (z *ZAPConn) Stats() Stats {
	return Stats{
		Sent:        z.sent.Load(),
		Received:    z.received.Load(),
		Pending:     int(z.pendingCount.Load()),
		FailedPings: int(z.failedPings.Load()),
	}
}

// ZAPHandler handles ZAP requests
type ZAPHandler interface {
	HandleZAP(ctx context.Context, method string, payload []byte) ([]byte, error)
}

// ZAPHandlerFunc is a function adapter for ZAPHandler
type ZAPHandlerFunc func(ctx context.Context, method string, payload []byte) ([]byte, error)

func (f ZAPHandlerFunc) HandleZAP(ctx context.Context, method string, payload []byte) ([]byte, error) {
	return f(ctx, method, payload)
}

// zapServerConn tracks one accepted connection's state for ForEachConnection.
type zapServerConn struct {
	conn net.Conn
	info *ClientInfo
	zc   *ZAPConn
}

// ZAPServer handles incoming ZAP RPC requests
type ZAPServer struct {
	listener   net.Listener
	handler    ZAPHandler
	compressor Compressor
	conns      sync.Map // net.Conn -> *zapServerConn
	closed     atomic.Bool
}

// NewZAPServer creates a new ZAP server
func NewZAPServer(listener net.Listener, handler ZAPHandler) *ZAPServer {
	return &ZAPServer{
		listener: listener,
		handler:  handler,
	}
}

// NewZAPServerWithCompressor is NewZAPServer plus a compressor applied to
// every accepted connection.
func NewZAPServerWithCompressor(listener net.Listener, handler ZAPHandler, c Compressor) *ZAPServer {
	return &ZAPServer{
		listener:   listener,
		handler:    handler,
		compressor: c,
	}
}

// Serve starts serving requests
func (s *ZAPServer) Serve(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *ZAPServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	sc := &zapServerConn{
		conn: conn,
		info: newClientInfo(conn.RemoteAddr().String()),
		zc:   &ZAPConn{conn: conn, compressor: s.compressor, readDone: make(chan struct{})},
	}
	s.conns.Store(conn, sc)
	defer s.conns.Delete(conn)
	defer close(sc.zc.readDone)

	ctx = ContextWithClientInfo(ctx, sc.info)

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}

		msgLen := binary.BigEndian.Uint32(header)
		if msgLen == 0 || msgLen > maxFrameSize {
			return
		}

		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(conn, msg); err != nil {
			return
		}
		sc.zc.received.Add(1)
		sc.zc.lastActivity.Store(time.Now().UnixNano())

		if len(msg) < 1 {
			continue
		}

		mtype := MessageType(msg[0])
		kind := mtype & kindMask

		switch kind {
		case MsgRequest:
			if len(msg) < 7 {
				continue
			}
			requestID := binary.BigEndian.Uint32(msg[1:5])
			methodLen := binary.BigEndian.Uint16(msg[5:7])
			if len(msg) < 7+int(methodLen) {
				continue
			}
			method := string(msg[7 : 7+methodLen])
			rawPayload := msg[7+methodLen:]
			payload, derr := sc.zc.decodePayload(rawPayload, mtype)

			go func() {
				if derr != nil {
					s.sendResponse(sc.zc, requestID, nil, derr)
					return
				}
				respData, err := s.handler.HandleZAP(ctx, method, payload)
				s.sendResponse(sc.zc, requestID, respData, err)
			}()

		case MsgNotify:
			if len(msg) < 3 {
				continue
			}
			methodLen := binary.BigEndian.Uint16(msg[1:3])
			if len(msg) < 3+int(methodLen) {
				continue
			}
			method := string(msg[3 : 3+methodLen])
			rawPayload := msg[3+methodLen:]
			payload, derr := sc.zc.decodePayload(rawPayload, mtype)
			if derr == nil {
				go s.handler.HandleZAP(ctx, method, payload)
			}

		case MsgPing:
			if len(msg) < 5 {
				continue
			}
			pingID := binary.BigEndian.Uint32(msg[1:5])
			pong := make([]byte, 4+1+4)
			binary.BigEndian.PutUint32(pong[0:4], 5)
			pong[4] = byte(MsgPong)
			binary.BigEndian.PutUint32(pong[5:9], pingID)
			sc.zc.write(pong)
		}
	}
}

func (s *ZAPServer) sendResponse(zc *ZAPConn, requestID uint32, data []byte, err error) {
	var mtype MessageType
	var payload []byte
	if err != nil {
		mtype = MsgError
		payload = []byte(err.Error())
	} else {
		wirePayload, mt, encErr := zc.encodePayload(data, MsgResponse)
		if encErr != nil {
			mtype = MsgError
			payload = []byte(encErr.Error())
		} else {
			mtype = mt
			payload = wirePayload
		}
	}

	msgLen := 1 + 4 + len(payload)
	buf := make([]byte, 4+msgLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(msgLen))
	buf[4] = byte(mtype)
	binary.BigEndian.PutUint32(buf[5:9], requestID)
	copy(buf[9:], payload)

	zc.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	zc.write(buf)
	zc.conn.SetWriteDeadline(time.Time{})
}

// Close closes the server
func (s *ZAPServer) Close() error {
	s.closed.Store(true)
	s.conns.Range(func(key, _ interface{}) bool {
		key.(net.Conn).Close()
		return true
	})
	return s.listener.Close()
}

// Addr returns the listener address
func (s *ZAPServer) Addr() net.Addr {
	return s.listener.Addr()
}

// ForEachConnection enumerates live connections and their stats.
func (s *ZAPServer) ForEachConnection(f func(*ClientInfo, Stats)) {
	s.conns.Range(func(_, v interface{}) bool {
		sc := v.(*zapServerConn)
		f(sc.info, sc.zc.Stats())
		return true
	})
}
