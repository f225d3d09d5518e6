package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	require.Equal(t, "0.19.1", format(""))
	require.Equal(t, "0.19.1-rc-2", format("rc-2"))
	require.Equal(t, "0.19.1", format("bad build"))
	require.Equal(t, format(appBuild), Version())
}
