package provision_test

import (
	"os"
	"testing"

	"instance-provision/src/logging"
)

func TestMain(m *testing.M) {
	logging.ForTests()
	os.Exit(m.Run())
}
