package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%acme%", ContainsPattern("acme"))
	assert.Equal(t, `%50\% off\_now%`, ContainsPattern("50% off_now"))
	assert.Equal(t, `%a\\b%`, ContainsPattern(`a\b`))
}
