package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWriter struct {
	bytes.Buffer
	writes int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.writes++
	return c.Buffer.Write(p)
}

func TestWriter_PrintfSingleWrite(t *testing.T) {
	var cw countingWriter
	out := New(&cw, false)

	out.Printf("Job [%d] (%d) terminated by signal %d\n", 1, 4242, 2)

	assert.Equal(t, "Job [1] (4242) terminated by signal 2\n", cw.String())
	assert.Equal(t, 1, cw.writes)
}

func TestWriter_Print(t *testing.T) {
	var buf bytes.Buffer
	out := New(&buf, false)

	out.Print("bsh> ")
	assert.Equal(t, "bsh> ", buf.String())
}

func TestWriter_TruncatesLongMessages(t *testing.T) {
	var buf bytes.Buffer
	out := New(&buf, false)

	out.Printf("%s", strings.Repeat("x", MaxLine*2))
	assert.Len(t, buf.String(), MaxLine)
}

func TestWriter_ErrorfPlain(t *testing.T) {
	var buf bytes.Buffer
	out := New(&buf, false)

	out.Errorf("%s: argument must be a PID or %%jobid", "fg")
	assert.Equal(t, "fg: argument must be a PID or %jobid\n", buf.String())
}

func TestWriter_ErrorfColored(t *testing.T) {
	var buf bytes.Buffer
	out := New(&buf, true)

	out.Errorf("boom")
	assert.Contains(t, buf.String(), "\x1b[31m")
	assert.Contains(t, buf.String(), "boom")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestWriter_ConcurrentMessagesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	out := New(&buf, false)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			out.Printf("[%d] %s\n", n, strings.Repeat("y", 40))
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 50)
	for _, line := range lines {
		assert.True(t, strings.HasSuffix(line, strings.Repeat("y", 40)), line)
	}
}

func TestWriter_ErrorfCustomColor(t *testing.T) {
	var buf bytes.Buffer
	out := New(&buf, true, color.FgYellow)

	out.Errorf("careful")
	assert.Equal(t, "\x1b[33mcareful\x1b[0m\n", buf.String())
}
