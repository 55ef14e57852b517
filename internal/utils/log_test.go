package utils

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	path := filepath.Join(t.TempDir(), "logs", "backtester.log")
	closer, err := SetupLogger(path)
	require.NoError(t, err)

	log.Printf("TestSetupLogger | hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "TestSetupLogger | hello")
}

func TestSetupLoggerStderrOnly(t *testing.T) {
	closer, err := SetupLogger("")
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
}
