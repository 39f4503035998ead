package secretconn

import (
	"errors"
	"io"
	"sync"
)

// bufferedPipe is an in-memory unidirectional byte stream with an
// unbounded buffer, so both handshake peers can write their first
// message before either starts reading.
type bufferedPipe struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newBufferedPipe() *bufferedPipe {
	p := &bufferedPipe{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *bufferedPipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("pipe closed")
	}
	p.buf = append(p.buf, b...)
	p.cond.Broadcast()
	return len(b), nil
}

func (p *bufferedPipe) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.buf) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

func (p *bufferedPipe) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
}

// duplexPipe is one endpoint of a bidirectional in-memory connection.
type duplexPipe struct {
	r *bufferedPipe
	w *bufferedPipe
}

func (d *duplexPipe) Read(b []byte) (int, error)  { return d.r.Read(b) }
func (d *duplexPipe) Write(b []byte) (int, error) { return d.w.Write(b) }

func (d *duplexPipe) Close() error {
	d.r.close()
	d.w.close()
	return nil
}

// newDuplexPair returns two connected endpoints.
func newDuplexPair() (*duplexPipe, *duplexPipe) {
	a := newBufferedPipe()
	b := newBufferedPipe()
	return &duplexPipe{r: a, w: b}, &duplexPipe{r: b, w: a}
}
