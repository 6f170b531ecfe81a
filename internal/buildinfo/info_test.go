package buildinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCurrent_InjectedCommitWins(t *testing.T) {
	defer func(v, c string) { Version, Commit = v, c }(Version, Commit)
	Version, Commit = "v1.4.0", "0123456789abcdef"

	info := Current()
	require.Equal(t, Service, info.Service)
	require.Equal(t, "v1.4.0", info.Version)
	require.Equal(t, "0123456789abcdef", info.Commit)
	require.Equal(t, runtime.Version(), info.GoVersion)
	require.Equal(t, "v1.4.0+0123456789ab", info.Short())
}

func TestShort(t *testing.T) {
	require.Equal(t, "dev", Info{Version: "dev"}.Short())
	require.Equal(t, "dev+abc", Info{Version: "dev", Commit: "abc"}.Short())
}
