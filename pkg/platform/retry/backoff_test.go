package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponential(t *testing.T) {
	b := Exponential(time.Second, 30*time.Second)

	assert.Equal(t, time.Second, b(1))
	assert.Equal(t, 2*time.Second, b(2))
	assert.Equal(t, 4*time.Second, b(3))
	assert.Equal(t, 16*time.Second, b(5))
}

func TestExponential_ClampsToMax(t *testing.T) {
	b := Exponential(time.Second, 30*time.Second)

	assert.Equal(t, 30*time.Second, b(6))
	assert.Equal(t, 30*time.Second, b(40))
	assert.Equal(t, 30*time.Second, b(100))
}

func TestExponential_TreatsNonPositiveAttemptAsFirst(t *testing.T) {
	b := Exponential(time.Second, 30*time.Second)

	assert.Equal(t, time.Second, b(0))
	assert.Equal(t, time.Second, b(-3))
}

func TestFixed(t *testing.T) {
	b := Fixed(2 * time.Second)

	assert.Equal(t, 2*time.Second, b(1))
	assert.Equal(t, 2*time.Second, b(9))
}
