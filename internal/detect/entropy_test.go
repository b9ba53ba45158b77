package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShannonEntropy(t *testing.T) {
	assert.Equal(t, 0.0, ShannonEntropy(""))
	assert.Equal(t, 0.0, ShannonEntropy("aaaaaaaa"))

	// Two symbols at equal frequency carry exactly one bit each.
	assert.InDelta(t, 1.0, ShannonEntropy("abababab"), 1e-9)

	// Ordinary filenames sit well under the 4.0 ransomware bar.
	assert.Less(t, ShannonEntropy("invoice_march.pdf"), 4.0)

	// Random-looking names clear it.
	assert.Greater(t, ShannonEntropy("zq8xk3vw9f7jm2hr5tn1c6ypl4gd0bs"), 4.0)
}
