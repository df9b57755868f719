package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instance-provision/src/logging"
)

func TestConfigure_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logging.Configure(logging.Options{Level: "debug", Format: "json", Out: &buf}))
	t.Cleanup(func() { logging.Configure(logging.Options{Level: "panic"}) })

	logrus.WithFields(logrus.Fields{"at": "logging_test", "instance": "lobby"}).Debug("instance_materialized")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "instance_materialized", line["msg"])
	assert.Equal(t, "lobby", line["instance"])
	assert.Equal(t, "debug", line["level"])
}

func TestConfigure_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logging.Configure(logging.Options{Level: "warn", Out: &buf}))
	t.Cleanup(func() { logging.Configure(logging.Options{Level: "panic"}) })

	logrus.Info("hidden")
	logrus.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestConfigure_Invalid(t *testing.T) {
	assert.Error(t, logging.Configure(logging.Options{Level: "loud"}))
	assert.Error(t, logging.Configure(logging.Options{Format: "xml"}))
}
