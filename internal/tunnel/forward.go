package tunnel

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fystack/explorer-api/pkg/common/logger"
	"github.com/fystack/explorer-api/pkg/retry"
)

// Forward states. Closed and Failed are terminal: a closed forward is never
// resurrected in place, the manager builds a fresh instance on Reconnect.
const (
	StateIdle        = "idle"
	StateConnecting  = "connecting"
	StateEstablished = "established"
	StateClosed      = "closed"
	StateFailed      = "failed"
)

// Spec names one local listen address forwarded to a remote host:port.
type Spec struct {
	Name       string
	LocalAddr  string
	RemoteAddr string
}

type forward struct {
	spec   Spec
	dialer RemoteDialer

	mu       sync.Mutex
	state    string
	listener net.Listener
	done     chan struct{}
}

func newForward(spec Spec, dialer RemoteDialer) *forward {
	return &forward{
		spec:   spec,
		dialer: dialer,
		state:  StateIdle,
		done:   make(chan struct{}),
	}
}

func (f *forward) State() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *forward) setState(state string) {
	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
}

// open binds the local listener and starts serving. Only an in-use local port
// is treated as transient: it is retried attempts times with a fixed delay.
// Any other bind error fails the forward immediately.
func (f *forward) open(listen ListenFunc, attempts int, delay time.Duration) error {
	f.setState(StateConnecting)

	err := retry.ConstantIf(func() error {
		l, lerr := listen("tcp", f.spec.LocalAddr)
		if lerr != nil {
			return lerr
		}
		f.mu.Lock()
		f.listener = l
		f.mu.Unlock()
		return nil
	}, delay, attempts+1, isAddrInUse)
	if err != nil {
		f.setState(StateFailed)
		return err
	}

	f.setState(StateEstablished)
	go f.serve()
	return nil
}

func (f *forward) serve() {
	for {
		local, err := f.listener.Accept()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}
			logger.Warn("Tunnel accept failed", "forward", f.spec.Name, "error", err)
			return
		}
		go f.proxy(local)
	}
}

func (f *forward) proxy(local net.Conn) {
	defer local.Close()

	remote, err := f.dialer.Dial("tcp", f.spec.RemoteAddr)
	if err != nil {
		logger.Warn("Tunnel remote dial failed",
			"forward", f.spec.Name,
			"remote", f.spec.RemoteAddr,
			"error", err)
		return
	}
	defer remote.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(remote, local)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(local, remote)
	}()
	wg.Wait()
}

func (f *forward) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateClosed || f.state == StateFailed {
		return
	}
	f.state = StateClosed
	close(f.done)
	if f.listener != nil {
		_ = f.listener.Close()
	}
}

func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "address already in use")
}
