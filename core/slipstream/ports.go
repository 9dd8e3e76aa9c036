package slipstream

import "context"

// PortPool hands out exclusive leases on a fixed set of local TCP ports.
// Acquire blocks until a port is returned; there is no polling.
type PortPool struct {
	ports chan int
}

func NewPortPool(base, size int) *PortPool {
	if size <= 0 {
		size = 1
	}
	p := &PortPool{ports: make(chan int, size)}
	for i := 0; i < size; i++ {
		p.ports <- base + i
	}
	return p
}

func (p *PortPool) Size() int { return cap(p.ports) }

// Acquire leases a port. The caller owns it exclusively until Release.
func (p *PortPool) Acquire(ctx context.Context) (int, error) {
	select {
	case port := <-p.ports:
		return port, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *PortPool) Release(port int) {
	select {
	case p.ports <- port:
	default:
		// releasing a port that was never leased would overflow the pool
		panic("slipstream: port released twice")
	}
}
