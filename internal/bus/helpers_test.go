package bus

import (
	"sync/atomic"

	"github.com/autoland/lander/internal/lander"
)

type sinkFunc func(lander.Command) error

func (f sinkFunc) Publish(cmd lander.Command) error { return f(cmd) }

type atomicCounter struct{ n atomic.Int64 }

func (c *atomicCounter) inc()       { c.n.Add(1) }
func (c *atomicCounter) get() int64 { return c.n.Load() }
