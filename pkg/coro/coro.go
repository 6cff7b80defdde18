// Package coro implements resumable execution contexts. Each context runs on
// its own goroutine, but control only ever moves through Resume and Yield, so
// exactly one of the driver and the context is running at any instant.
package coro

import (
	"runtime"
	"sync"
)

// Context is a suspendable unit of execution.
type Context struct {
	fn func(*Context)

	resume chan struct{}
	yield  chan struct{}
	kill   chan struct{}
	done   chan struct{}

	started  bool
	killOnce sync.Once
}

// New prepares fn to run as a context. fn does not start until the first
// Resume.
func New(fn func(*Context)) *Context {
	return &Context{
		fn:     fn,
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
		kill:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Resume transfers control into the context and blocks until it yields or
// finishes. It returns false once the context has finished.
func (c *Context) Resume() bool {
	select {
	case <-c.done:
		return false
	default:
	}

	if !c.started {
		c.started = true
		go c.run()
	} else {
		select {
		case c.resume <- struct{}{}:
		case <-c.done:
			return false
		}
	}

	select {
	case <-c.yield:
		return true
	case <-c.done:
		return false
	}
}

func (c *Context) run() {
	defer close(c.done)

	select {
	case <-c.kill:
		return
	default:
	}

	c.fn(c)
}

// Yield suspends the calling context and hands control back to whoever
// called Resume. It must only be called from inside the context. If the
// context is killed while suspended, Yield never returns.
func (c *Context) Yield() {
	c.yield <- struct{}{}

	select {
	case <-c.resume:
	case <-c.kill:
		runtime.Goexit()
	}
}

// Kill unwinds a suspended context and waits for its goroutine to exit.
// Deferred calls inside the context still run.
func (c *Context) Kill() {
	c.killOnce.Do(func() {
		close(c.kill)
	})

	if c.started {
		<-c.done
	}
}

// Done reports whether the context has finished or been killed.
func (c *Context) Done() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
