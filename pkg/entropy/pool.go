// Package entropy implements a continuously-stirred entropy pool used to
// seed key generation. There is no cgo access to RDRAND or platform perf
// counters here, so the fast-flux sample is built entirely from runtime
// signals (goroutine count, GC stats, wall clock, pid) rather than the
// hardware counters a native build would read.
package entropy

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"hash"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20"
)

const (
	fastInterval = 50 * time.Millisecond
	slowInterval = 950 * time.Millisecond
	entropyTarget = 512
)

// Pool is a SHA-512 based entropy accumulator. A background goroutine
// stirs it with fast-flux runtime samples; callers may also stir in their
// own material via Stir. Bytes, and Get in blocking mode, wait until the
// requested amount of estimated entropy has accumulated.
type Pool struct {
	mu        sync.Mutex
	h         hash.Hash
	estimated int
	target    int
	running   bool
	cancel    func()
	done      chan struct{}
}

// NewPool returns a Pool seeded from crypto/rand. The pool is not yet
// stirring in the background; call Start to launch the sampler goroutine.
func NewPool() *Pool {
	p := &Pool{
		h:      sha512.New(),
		target: entropyTarget,
	}
	seed := make([]byte, 64)
	if _, err := rand.Read(seed); err == nil {
		p.h.Write(seed)
	}
	return p
}

// Start launches the background fast-flux sampler. It runs at fastInterval
// until the estimated entropy reaches the pool's target, then backs off to
// slowInterval. The goroutine exits when ctx is cancelled; Wait blocks until
// it has.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	done := make(chan struct{})
	p.done = done
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
			close(done)
		}()
		for {
			interval := p.sampleOnce()
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}()
}

// Wait blocks until the background sampler goroutine started by Start has
// exited. Safe to call even if Start was never called.
func (p *Pool) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// sampleOnce draws one fast-flux sample, folds it into the pool, and
// reports the interval the caller should sleep before the next sample.
func (p *Pool) sampleOnce() time.Duration {
	sample := fastFluxSample()

	p.mu.Lock()
	p.h.Write(sample[:])
	p.estimated++
	interval := fastInterval
	if p.estimated >= p.target {
		interval = slowInterval
	}
	p.mu.Unlock()
	return interval
}

// fastFluxSample gathers a bundle of fast-changing runtime signals, the
// cross-platform stand-in for the hardware jitter counters a native build
// would sample.
func fastFluxSample() [40]byte {
	var buf [40]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(os.Getpid()))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(runtime.NumGoroutine()))

	var gc debug.GCStats
	debug.ReadGCStats(&gc)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(gc.NumGC))
	if len(gc.PauseHistory) > 0 {
		binary.LittleEndian.PutUint64(buf[24:32], uint64(gc.PauseHistory[0]))
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	binary.LittleEndian.PutUint64(buf[32:40], m.Mallocs^m.Frees)
	return buf
}

// Stir folds caller-supplied material into the pool, crediting
// 1+len(msg)/64 bits of estimated entropy, mirroring the accounting rule
// applied to fast-flux samples.
func (p *Pool) Stir(msg []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.h.Write(msg)
	p.estimated += 1 + len(msg)/64
}

// Estimate returns the current estimated entropy, in the same units
// accumulated by Stir and the fast-flux sampler.
func (p *Pool) Estimate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.estimated
}

// Get finalizes the current SHA-512 state into buf (which must be at least
// 64 bytes), re-seeds the pool with the digest it just produced, and resets
// the estimated entropy counter. When blocking is true it waits (polling at
// slowInterval) until at least desiredBits of estimated entropy have
// accumulated; otherwise it returns false immediately if insufficient.
func (p *Pool) Get(buf []byte, desiredBits int, blocking bool) bool {
	if len(buf) < 64 {
		return false
	}
	for {
		p.mu.Lock()
		if p.estimated >= desiredBits {
			sum := p.h.Sum(nil)
			copy(buf, sum)
			p.h = sha512.New()
			p.h.Write(sum)
			p.estimated = 0
			p.mu.Unlock()
			return true
		}
		p.mu.Unlock()
		if !blocking {
			return false
		}
		time.Sleep(slowInterval)
	}
}

// Bytes returns n bytes of fresh entropy. Up to 64 bytes come directly from
// a Get call; beyond that the 64-byte digest is used as a ChaCha20 key
// (first 32 bytes) and nonce (next 12 bytes) to expand into an arbitrarily
// long keystream.
func (p *Pool) Bytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	desired := 8 * 64
	if n <= 64 {
		desired = 8 * n
	}

	var seed [64]byte
	p.Get(seed[:], desired, true)

	if n <= 64 {
		out := make([]byte, n)
		copy(out, seed[:n])
		return out, nil
	}

	out := make([]byte, n)
	c, err := chacha20.NewUnauthenticatedCipher(seed[:32], seed[32:32+chacha20.NonceSize])
	if err != nil {
		return nil, err
	}
	c.XORKeyStream(out, out)
	return out, nil
}

// Reader adapts the pool to io.Reader, filling p each call via Bytes. Lets
// callers that only need a random byte source (e.g. S4 block salts and IVs)
// depend on io.Reader instead of importing this package directly.
type Reader struct{ pool *Pool }

// AsReader wraps the pool as an io.Reader.
func (p *Pool) AsReader() Reader { return Reader{pool: p} }

func (r Reader) Read(buf []byte) (int, error) {
	b, err := r.pool.Bytes(len(buf))
	if err != nil {
		return 0, err
	}
	copy(buf, b)
	return len(buf), nil
}
