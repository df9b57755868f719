package progress_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instance-provision/src/util/progress"
)

func TestTracker_CountsAndPrints(t *testing.T) {
	var out bytes.Buffer
	tr := progress.NewTracker(&out, "worlds")

	n, err := io.Copy(io.Discard, tr.Reader(strings.NewReader(strings.Repeat("x", 2048))))
	require.NoError(t, err)
	assert.Equal(t, int64(2048), n)
	tr.FileDone()
	tr.Finish()

	b, files := tr.Totals()
	assert.Equal(t, int64(2048), b)
	assert.Equal(t, int64(1), files)
	assert.Contains(t, out.String(), "[worlds] 1 files, 2.0 KiB")
	assert.True(t, strings.HasSuffix(out.String(), "\n"))
}

func TestTracker_NilIsNoop(t *testing.T) {
	var tr *progress.Tracker
	r := strings.NewReader("abc")
	assert.Same(t, io.Reader(r), tr.Reader(r))
	tr.FileDone()
	tr.Finish()
	b, files := tr.Totals()
	assert.Zero(t, b)
	assert.Zero(t, files)
}
