package httpserver_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshring/chordnode/httpserver"
)

func TestParserFeedSingleChunk(t *testing.T) {
	p := httpserver.NewParser(1<<10, 1<<10, 64)
	msg := "GET /keys HTTP/1.1\r\nHost: node1\r\nContent-Length: 5\r\n\r\nhello"

	require.NoError(t, p.Feed([]byte(msg)))
	require.True(t, p.IsFinished())

	req := p.Result()
	require.Equal(t, "GET", req.Method)
	require.Equal(t, "/keys", req.Path)
	require.Equal(t, httpserver.HTTP11, req.Version)
	require.Equal(t, []byte("hello"), req.Body)
	v, ok := req.Headers.Get("host")
	require.True(t, ok)
	require.Equal(t, "node1", v)
}

func TestParserFeedByteAtATime(t *testing.T) {
	p := httpserver.NewParser(1<<10, 1<<10, 8)
	msg := "POST /set HTTP/1.0\r\nConnection: keep-alive\r\nContent-Length: 3\r\n\r\nabc"

	for i := 0; i < len(msg); i++ {
		require.NoError(t, p.Feed([]byte{msg[i]}))
		if i < len(msg)-1 {
			require.False(t, p.IsFinished())
		}
	}
	require.True(t, p.IsFinished())
	req := p.Result()
	require.Equal(t, "abc", string(req.Body))
	require.True(t, req.Headers.HasToken("Connection", "keep-alive"))
}

func TestParserRejectsOversizedHeaders(t *testing.T) {
	p := httpserver.NewParser(16, 1<<10, 64)
	err := p.Feed([]byte("GET / HTTP/1.1\r\nX-Long-Header: 0123456789\r\n\r\n"))
	require.Error(t, err)
	pe, ok := err.(*httpserver.ParseError)
	require.True(t, ok)
	require.Equal(t, 431, pe.Status)
}

func TestParserRejectsOversizedBody(t *testing.T) {
	p := httpserver.NewParser(1<<10, 4, 64)
	err := p.Feed([]byte("PUT /x HTTP/1.1\r\nContent-Length: 100\r\n\r\n"))
	require.Error(t, err)
	pe, ok := err.(*httpserver.ParseError)
	require.True(t, ok)
	require.Equal(t, 413, pe.Status)
}

func TestParserRejectsMalformedRequestLine(t *testing.T) {
	p := httpserver.NewParser(1<<10, 1<<10, 64)
	err := p.Feed([]byte("GARBAGE\r\n\r\n"))
	require.Error(t, err)
	pe, ok := err.(*httpserver.ParseError)
	require.True(t, ok)
	require.Equal(t, 400, pe.Status)
}

func TestParserResetAllowsSecondRequestOnSameConnection(t *testing.T) {
	p := httpserver.NewParser(1<<10, 1<<10, 64)
	require.NoError(t, p.Feed([]byte("GET /a HTTP/1.1\r\n\r\n")))
	require.True(t, p.IsFinished())
	require.Equal(t, "/a", p.Result().Path)

	p.Reset()
	require.False(t, p.IsFinished())
	require.NoError(t, p.Feed([]byte("GET /b HTTP/1.1\r\n\r\n")))
	require.True(t, p.IsFinished())
	require.Equal(t, "/b", p.Result().Path)
}

func TestHeadersCaseInsensitiveToken(t *testing.T) {
	h := make(httpserver.Headers)
	h.Set("Connection", "Keep-Alive")
	require.True(t, h.HasToken("connection", "keep-alive"))
	require.False(t, h.HasToken("connection", "close"))
}
