package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	saved := version
	version = "1.4.0"
	t.Cleanup(func() { version = saved })

	// No services are needed to print the version.
	out, err := run(t, nil, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "caseflow version 1.4.0")
}
