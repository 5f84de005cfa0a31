package rpc

import (
	"net"
	"sync"
	"time"

	"github.com/golang/snappy"
)

const (
	flushInterval = 50 * time.Millisecond
)

func snappyDialer(d func(string, time.Duration) (net.Conn, error)) func(addr string, timeout time.Duration) (net.Conn, error) {
	return func(addr string, timeout time.Duration) (net.Conn, error) {
		return snappyWrap(d(addr, timeout))
	}
}

type snappyListener struct {
	net.Listener
}

func (sl *snappyListener) Accept() (net.Conn, error) {
	return snappyWrap(sl.Listener.Accept())
}

func snappyWrap(conn net.Conn, err error) (net.Conn, error) {
	if err != nil {
		return nil, err
	}
	sc := &snappyConn{
		Conn: conn,
		r:    snappy.NewReader(conn),
		w:    snappy.NewBufferedWriter(conn),
	}
	go sc.flushPeriodically()
	return sc, nil
}

// snappyConn compresses block payloads in transit. Writes are buffered and
// flushed on an interval so that streaming stays chunky without stalling.
type snappyConn struct {
	net.Conn
	r       *snappy.Reader
	w       *snappy.Writer
	flushMx sync.Mutex
}

func (sc *snappyConn) flushPeriodically() {
	for {
		time.Sleep(flushInterval)
		sc.flushMx.Lock()
		err := sc.w.Flush()
		sc.flushMx.Unlock()
		if err != nil {
			// Writer is broken, most likely because the conn closed.
			return
		}
	}
}

func (sc *snappyConn) Read(p []byte) (int, error) {
	return sc.r.Read(p)
}

func (sc *snappyConn) Write(p []byte) (int, error) {
	sc.flushMx.Lock()
	n, err := sc.w.Write(p)
	sc.flushMx.Unlock()
	return n, err
}
