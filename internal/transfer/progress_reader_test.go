package transfer_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framehub/framehub/core/internal/transfer"
)

func TestProgressReaderReportsCumulativeBytes(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 100)

	var updates []int
	reader := transfer.NewProgressReader(
		bytes.NewReader(data),
		len(data),
		func(processed, total int) {
			assert.Equal(t, 100, total)
			updates = append(updates, processed)
		},
	)

	buf := make([]byte, 30)
	for {
		if _, err := reader.Read(buf); err == io.EOF {
			break
		} else {
			require.NoError(t, err)
		}
	}

	assert.Equal(t, []int{30, 60, 90, 100}, updates)
	assert.Equal(t, 100, reader.Len())
}
