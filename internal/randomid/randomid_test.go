package randomid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/framehub/framehub/core/internal/randomid"
)

func TestGenerateUniqueID(t *testing.T) {
	id := randomid.GenerateUniqueID(8)
	assert.Len(t, id, 8)

	other := randomid.GenerateUniqueID(8)
	assert.NotEqual(t, id, other)
}
