package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionFallsBackToDev(t *testing.T) {
	saved := version
	t.Cleanup(func() { version = saved })

	version = "1.4.0"
	assert.Equal(t, "1.4.0", Version())

	version = "  "
	assert.Equal(t, "dev", Version())
}
