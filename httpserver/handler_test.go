package httpserver_test

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/meshring/chordnode/endpoint"
	"github.com/meshring/chordnode/eventloop"
	"github.com/meshring/chordnode/httpserver"
)

// readResponse parses just enough of an HTTP response to assert on: the
// status code and, once Content-Length is known, the exact body.
func readResponse(t *testing.T, r *bufio.Reader) (status int, body string) {
	t.Helper()

	statusLine, err := r.ReadString('\n')
	require.NoError(t, err)
	fields := strings.Fields(statusLine)
	require.GreaterOrEqual(t, len(fields), 2)
	status, err = strconv.Atoi(fields[1])
	require.NoError(t, err)

	contentLength := 0
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			contentLength, err = strconv.Atoi(strings.TrimSpace(value))
			require.NoError(t, err)
		}
	}

	buf := make([]byte, contentLength)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	return status, string(buf)
}

func startEchoServer(t *testing.T, settings *httpserver.Settings) (client *os.File, stop func()) {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	serverFD, clientFD := fds[0], fds[1]
	require.NoError(t, unix.SetNonblock(serverFD, true))

	loop, err := eventloop.New()
	require.NoError(t, err)

	target, err := endpoint.Parse("127.0.0.1:9000")
	require.NoError(t, err)

	onRequest := func(_ string, req httpserver.Request, _ any) httpserver.Response {
		return httpserver.NewResponse(req.Version, 200, "ok")
	}

	_, err = httpserver.Attach(loop, serverFD, target, settings, onRequest)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()

	client = os.NewFile(uintptr(clientFD), "client")
	return client, cancel
}

func TestConnectionHandlerKeepAliveAcrossRequests(t *testing.T) {
	settings := httpserver.DefaultSettings("test-host")
	client, stop := startEchoServer(t, &settings)
	defer stop()
	defer client.Close()

	r := bufio.NewReader(client)

	_, err := client.Write([]byte("GET /a HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	status, body := readResponse(t, r)
	require.Equal(t, 200, status)
	require.Equal(t, "ok", body)

	_, err = client.Write([]byte("GET /b HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	status, body = readResponse(t, r)
	require.Equal(t, 200, status)
	require.Equal(t, "ok", body)
}

func TestConnectionHandlerClosesOnConnectionCloseHeader(t *testing.T) {
	settings := httpserver.DefaultSettings("test-host")
	client, stop := startEchoServer(t, &settings)
	defer stop()
	defer client.Close()

	r := bufio.NewReader(client)

	_, err := client.Write([]byte("GET /c HTTP/1.1\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)
	status, _ := readResponse(t, r)
	require.Equal(t, 200, status)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 16)
	n, err := client.Read(buf)
	require.Equal(t, 0, n)
	require.Error(t, err)
}

func TestConnectionHandlerHTTP10ClosesWithoutKeepAlive(t *testing.T) {
	settings := httpserver.DefaultSettings("test-host")
	client, stop := startEchoServer(t, &settings)
	defer stop()
	defer client.Close()

	r := bufio.NewReader(client)

	_, err := client.Write([]byte("GET /d HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)
	status, _ := readResponse(t, r)
	require.Equal(t, 200, status)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 16)
	n, err := client.Read(buf)
	require.Equal(t, 0, n)
	require.Error(t, err)
}

func TestConnectionHandlerMalformedRequestGetsFourHundred(t *testing.T) {
	settings := httpserver.DefaultSettings("test-host")
	client, stop := startEchoServer(t, &settings)
	defer stop()
	defer client.Close()

	r := bufio.NewReader(client)

	_, err := client.Write([]byte("NOT A REQUEST\r\n\r\n"))
	require.NoError(t, err)
	status, _ := readResponse(t, r)
	require.Equal(t, 400, status)
}
