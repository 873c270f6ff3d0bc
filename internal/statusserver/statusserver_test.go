package statusserver_test

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsdfx/tsdfx/internal/statusserver"
)

func TestServer_StatusReturnsSnapshot(t *testing.T) {
	snap := func() []statusserver.MapStatus {
		return []statusserver.MapStatus{
			{Name: "m1", Src: "/a", Dst: "/A", ScanState: "running", RecentCount: 2},
		}
	}
	s := statusserver.New(snap)
	ln, err := statusserver.Serve("127.0.0.1:0", s)
	require.NoError(t, err)
	defer ln.Close()

	resp, err := http.Get("http://" + ln.Addr().String() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var got struct {
		Maps []statusserver.MapStatus `json:"maps"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Maps, 1)
	assert.Equal(t, "m1", got.Maps[0].Name)
	assert.Equal(t, 2, got.Maps[0].RecentCount)
}

func TestServer_HealthzReturnsOK(t *testing.T) {
	s := statusserver.New(func() []statusserver.MapStatus { return nil })
	ln, err := statusserver.Serve("127.0.0.1:0", s)
	require.NoError(t, err)
	defer ln.Close()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RejectsNonGetMethods(t *testing.T) {
	s := statusserver.New(func() []statusserver.MapStatus { return nil })
	ln, err := statusserver.Serve("127.0.0.1:0", s)
	require.NoError(t, err)
	defer ln.Close()

	resp, err := http.Post("http://"+ln.Addr().String()+"/status", "text/plain", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}
