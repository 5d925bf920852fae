package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveFromBuildInfo(t *testing.T) {
	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "v0.3.1"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef0123"},
				{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			},
		}, true
	}

	info := resolve(read)
	assert.Equal(t, "v0.3.1", info.Version)
	assert.Equal(t, "2026-01-02T03:04:05Z", info.BuildTime)
	assert.Equal(t, "v0.3.1 (0123456789ab)", info.String())
}

func TestResolveDevel(t *testing.T) {
	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, true
	}
	assert.Equal(t, Info{Version: "dev"}, resolve(read))

	none := func() (*debug.BuildInfo, bool) { return nil, false }
	assert.Equal(t, "dev", resolve(none).String())
}

func TestResolveLdflagsWin(t *testing.T) {
	Version, Commit = "1.2.0", "abc"
	t.Cleanup(func() { Version, Commit = "", "" })

	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main:     debug.Module{Version: "v9.9.9"},
			Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "zzz"}},
		}, true
	}
	assert.Equal(t, "1.2.0 (abc)", resolve(read).String())
	assert.True(t, strings.HasPrefix(UserAgent(), "fripack-downloader/"))
}
