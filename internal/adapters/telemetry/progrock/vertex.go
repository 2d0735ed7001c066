package progrock

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/vito/progrock"
	"go.trai.ch/incr/internal/core/domain"
)

// Vertex implements ports.Vertex wrapping *progrock.VertexRecorder.
type Vertex struct {
	vertex  *progrock.VertexRecorder
	name    string
	console *consoleWriter
}

// Stdout returns a writer to capture standard output stream.
func (v *Vertex) Stdout() io.Writer {
	if v.console == nil {
		return v.vertex.Stdout()
	}
	return io.MultiWriter(v.vertex.Stdout(), v.console)
}

// Stderr returns a writer to capture error output stream.
func (v *Vertex) Stderr() io.Writer {
	if v.console == nil {
		return v.vertex.Stderr()
	}
	return io.MultiWriter(v.vertex.Stderr(), v.console)
}

// Log records a structured log message associated with this vertex.
func (v *Vertex) Log(level domain.LogLevel, msg string) {
	_, _ = fmt.Fprintf(v.vertex.Stdout(), "[%s] %s\n", level.String(), msg)
}

// Complete marks the vertex as finished (successfully or with an error).
func (v *Vertex) Complete(err error) {
	v.vertex.Done(err)
	if v.console == nil {
		return
	}
	v.console.flush()
	if err != nil {
		v.console.status("failed: " + err.Error())
		return
	}
	v.console.status("done")
}

// Cached marks the vertex as a cache hit.
func (v *Vertex) Cached() {
	v.vertex.Cached()
	v.vertex.Done(nil)
	if v.console != nil {
		v.console.status("cached")
	}
}

// consoleWriter prefixes every complete line with the vertex name. Writers of all
// vertices share one mutex so lines never interleave.
type consoleWriter struct {
	mu     *sync.Mutex
	w      io.Writer
	prefix string

	buf bytes.Buffer
}

func (c *consoleWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf.Write(p)
	for {
		i := bytes.IndexByte(c.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := c.buf.Next(i + 1)
		_, _ = io.WriteString(c.w, c.prefix)
		_, _ = c.w.Write(line)
	}
	return len(p), nil
}

func (c *consoleWriter) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buf.Len() > 0 {
		_, _ = io.WriteString(c.w, c.prefix+c.buf.String()+"\n")
		c.buf.Reset()
	}
}

func (c *consoleWriter) status(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.w, c.prefix+msg+"\n")
}
