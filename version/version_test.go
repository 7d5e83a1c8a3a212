package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillFromBuildInfo(t *testing.T) {
	info := Info{Version: "dev"}
	fillFromBuildInfo(&info, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		{Key: "vcs.modified", Value: "true"},
	})

	assert.Equal(t, "0123456789abcdef", info.CommitHash)
	assert.Equal(t, "2026-01-02T03:04:05Z", info.BuildTime)
	assert.True(t, info.Modified)
	assert.Equal(t, "dealflow dev (commit 0123456+dirty, built 2026-01-02T03:04:05Z)", info.String())
}

func TestLdflagsWinOverBuildInfo(t *testing.T) {
	info := Info{Version: "v1.2.0", CommitHash: "feedface", BuildTime: "yesterday"}
	fillFromBuildInfo(&info, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
	})

	assert.Equal(t, "feedface", info.CommitHash)
	assert.Equal(t, "yesterday", info.BuildTime)
	assert.Equal(t, "feedfac", info.Short())
}

func TestGetNeverEmpty(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.CommitHash)
	assert.NotEmpty(t, info.BuildTime)
	assert.Contains(t, info.Platform, "/")
	assert.True(t, strings.HasPrefix(UserAgent(), "dealflow/"))
}
