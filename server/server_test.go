package server

import (
	"bufio"
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/dls-controls/fa-archiver/archive"
	"github.com/dls-controls/fa-archiver/buffer"
	"github.com/dls-controls/fa-archiver/frame"
	"github.com/dls-controls/fa-archiver/internal/options"
	"github.com/dls-controls/fa-archiver/internal/pool"
	"github.com/dls-controls/fa-archiver/query"
	"github.com/dls-controls/fa-archiver/section"
	"github.com/dls-controls/fa-archiver/source"
	"github.com/dls-controls/fa-archiver/subscribe"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func buildTestServer(t *testing.T) *Server {
	t.Helper()
	layout, err := archive.NewLayout(4, []int{0, 1, 2, 3}, 16, 1, 1, 2)
	require.NoError(t, err)

	ctx, err := archive.NewTestContext(filepath.Join(t.TempDir(), "archive.dat"), layout)
	require.NoError(t, err)
	ctx.Header().CurrentMajorBlock = 1
	require.NoError(t, ctx.WriteIndexEntry(0, section.Entry{TimestampUS: 1_000_000, DurationUS: 1_600_000}))

	block := make([]byte, layout.MajorBlockSize)
	require.NoError(t, ctx.WriteMajorBlock(0, block))

	bufPool := pool.NewBufferPool(4, 64, 0)
	q := query.NewEngine(ctx, bufPool)

	faBuf := buffer.New(4, 4*frame.Size)
	sub := subscribe.NewEngine(faBuf, []int{0, 1, 2, 3}, 1, 16, func() uint32 { return 160 })

	src := source.NewNone()

	return New(ctx, 4, q, sub, nil, src, 1)
}

func TestServer_StatusCommandRepliesOneLinePerSubcommand(t *testing.T) {
	s := buildTestServer(t)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	go s.handle(serverConn)

	_, err := clientConn.Write([]byte("CVM\n"))
	require.NoError(t, err)

	r := bufio.NewReader(clientConn)
	version, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "1.1\n", version)

	mask, err := r.ReadString('\n')
	require.NoError(t, err)
	require.NotEmpty(t, mask)
}

func TestServer_ReadRequestForUnknownIDFails(t *testing.T) {
	s := buildTestServer(t)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	go s.handle(serverConn)

	_, err := clientConn.Write([]byte("RFM9S1.000000N16\n"))
	require.NoError(t, err)

	r := bufio.NewReader(clientConn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.NotEqual(t, byte(0), line[0])
}

// failingListener always fails Accept with a non-net.ErrClosed error, so
// Serve's error path (as opposed to its clean-shutdown path) is exercised.
type failingListener struct{}

func (failingListener) Accept() (net.Conn, error) { return nil, errAcceptRefused }
func (failingListener) Close() error              { return nil }
func (failingListener) Addr() net.Addr            { return nil }

var errAcceptRefused = errors.New("accept refused")

func TestServer_WithLoggerLogsAcceptFailure(t *testing.T) {
	s := buildTestServer(t)
	core, logs := observer.New(zap.ErrorLevel)
	require.NoError(t, options.Apply(s, WithLogger(zap.New(core))))

	require.Error(t, s.Serve(failingListener{}))
	require.Equal(t, 1, logs.Len())
	require.Equal(t, "accept failed", logs.All()[0].Message)
}

func TestServer_SubscribeUnknownIDFailsBeforeHeader(t *testing.T) {
	s := buildTestServer(t)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	go s.handle(serverConn)

	_, err := clientConn.Write([]byte("S9\n"))
	require.NoError(t, err)

	r := bufio.NewReader(clientConn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.NotEqual(t, byte(0), line[0])
}
