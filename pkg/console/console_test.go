package console

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want Action
	}{
		{"r", ActionRestart},
		{"R", ActionRestart},
		{" R ", ActionRestart},
		{"q", ActionQuit},
		{"Q", ActionQuit},
		{"h", ActionHelp},
		{"H", ActionHelp},
		{"", ActionNone},
		{"rr", ActionNone},
		{"quit", ActionNone},
		{"x", ActionNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseCommand(tt.line), "line %q", tt.line)
	}
}

func TestQuitInvokesCallback(t *testing.T) {
	var quitCalled bool
	c := New(strings.NewReader("garbage\nQ\n"), &strings.Builder{}, func() { quitCalled = true })

	err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, quitCalled)
}

func TestHelpPrintsCommands(t *testing.T) {
	var out strings.Builder
	c := New(strings.NewReader("h\nq\n"), &out, func() {})

	require.NoError(t, c.Run(context.Background()))
	assert.Contains(t, out.String(), "restart the proxy")
	assert.Contains(t, out.String(), "quit")
}

func TestRestartDispatch(t *testing.T) {
	var restarted bool
	c := New(strings.NewReader("r\nq\n"), &strings.Builder{}, func() {})
	c.restart = func() error {
		restarted = true
		return nil
	}

	require.NoError(t, c.Run(context.Background()))
	assert.True(t, restarted)
}

func TestClosedInputEndsRunCleanly(t *testing.T) {
	c := New(strings.NewReader(""), &strings.Builder{}, func() {})
	assert.NoError(t, c.Run(context.Background()))
}

func TestContextCancelStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Blocking reader: no lines ever arrive.
	blocking, w := newBlockingReader()
	defer w.close()

	c := New(blocking, &strings.Builder{}, func() {})

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

type blockingReader struct {
	ch chan struct{}
}

type blockingWriter struct {
	ch chan struct{}
}

func newBlockingReader() (*blockingReader, *blockingWriter) {
	ch := make(chan struct{})
	return &blockingReader{ch: ch}, &blockingWriter{ch: ch}
}

func (r *blockingReader) Read(p []byte) (int, error) {
	<-r.ch
	return 0, nil
}

func (w *blockingWriter) close() {
	close(w.ch)
}
