package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetFallsBack(t *testing.T) {
	t.Setenv("BAZAAR_TEST_VALUE", "")
	assert.Equal(t, "fallback", Get("BAZAAR_TEST_VALUE", "fallback"))

	t.Setenv("BAZAAR_TEST_VALUE", "set")
	assert.Equal(t, "set", Get("BAZAAR_TEST_VALUE", "fallback"))
}
