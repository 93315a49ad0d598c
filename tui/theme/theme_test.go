package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewThemeWithName(t *testing.T) {
	assert.Equal(t, "terminal", NewThemeWithName(" Terminal ").Name)
	assert.Equal(t, "kanagawa", NewThemeWithName("").Name)
	assert.Equal(t, "kanagawa", NewThemeWithName("solarized").Name)
}
