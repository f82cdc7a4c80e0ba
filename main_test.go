package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/config"
)

// testMainBinary is the name of the compiled binary used for testing main.
const testMainBinary = "test_main_executable"

// buildMain builds the main package into a temp dir and returns the path to
// the executable and a cleanup function.
func buildMain(t *testing.T) (string, func()) {
	t.Helper()
	binaryPath := filepath.Join(t.TempDir(), testMainBinary)

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Failed to build main binary: %v\nOutput:\n%s", err, string(output))
	}

	cleanup := func() {
		err := os.Remove(binaryPath)
		if err != nil && !os.IsNotExist(err) {
			t.Logf("Warning: Failed to remove test binary %s: %v", binaryPath, err)
		}
	}
	return binaryPath, cleanup
}

// runMain runs the compiled binary with extra environment variables and
// returns its exit code and stderr. A process still running after 3 seconds
// is killed and reported as -1.
func runMain(t *testing.T, binaryPath string, envVars map[string]string) (exitCode int, stderr string) {
	t.Helper()

	cmd := exec.Command(binaryPath)
	cmd.Dir = t.TempDir() // Keeps generated key files and backups out of the source tree
	cmd.Env = os.Environ()
	for key, value := range envVars {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	var stderrBuf strings.Builder
	cmd.Stderr = &stderrBuf

	err := cmd.Start()
	require.NoError(t, err, "Failed to start main process")

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-time.After(3 * time.Second):
		_ = cmd.Process.Kill()
		t.Logf("Main process timed out after 3 seconds, killing.")
		<-done
		return -1, stderrBuf.String()
	case err := <-done:
		stderr = stderrBuf.String()
		if err != nil {
			if exitError, ok := err.(*exec.ExitError); ok {
				return exitError.ExitCode(), stderr
			}
			t.Fatalf("Main process failed with unexpected error: %v", err)
		}
		return 0, stderr
	}
}

// TestMainFailureScenarios tests the main function's startup failure paths.
func TestMainFailureScenarios(t *testing.T) {
	binaryPath, cleanup := buildMain(t)
	defer cleanup()

	t.Run("ConfigFailure_UnknownBackend", func(t *testing.T) {
		env := map[string]string{
			"STUDIOBOOK_AUTH_JWT_SECRET": "test-secret-for-backend-fail-case",
			"STUDIOBOOK_STORE_BACKEND":   "etcd",
		}

		exitCode, stderr := runMain(t, binaryPath, env)

		assert.NotEqual(t, 0, exitCode, "Expected non-zero exit code for an unknown backend")
		assert.Contains(t, stderr, "CRITICAL: Failed to load configuration")
		assert.Contains(t, stderr, "unknown store backend")
	})

	t.Run("ConfigFailure_StorePathIsDirectory", func(t *testing.T) {
		env := map[string]string{
			"STUDIOBOOK_AUTH_JWT_SECRET": "test-secret-for-db-fail-case",
			"STUDIOBOOK_STORE_FILE":      t.TempDir(), // A directory instead of a file
		}

		exitCode, stderr := runMain(t, binaryPath, env)

		assert.NotEqual(t, 0, exitCode, "Expected non-zero exit code for store init failure")
		assert.Contains(t, stderr, "CRITICAL: Failed to load configuration")
		assert.Contains(t, stderr, "points to a directory")
	})

	t.Run("StoreFailure_CorruptFile", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "corrupt.json")
		require.NoError(t, os.WriteFile(dbPath, []byte(`{"services": [`), 0644))

		env := map[string]string{
			"STUDIOBOOK_AUTH_JWT_SECRET": "test-secret-for-corrupt-case",
			"STUDIOBOOK_STORE_FILE":      dbPath,
		}

		exitCode, stderr := runMain(t, binaryPath, env)

		assert.NotEqual(t, 0, exitCode, "Expected non-zero exit code for a corrupt store file")
		assert.Contains(t, stderr, "CRITICAL: Failed to open file store")
	})

	t.Run("ServerBindFailure_PortInUse", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err, "Failed to listen on a random port")
		tcpAddr, ok := listener.Addr().(*net.TCPAddr)
		require.True(t, ok, "Listener address is not TCPAddr: %v", listener.Addr())
		port := fmt.Sprintf("%d", tcpAddr.Port)
		defer listener.Close()

		log.Printf("Dummy listener started on %s for port conflict test", listener.Addr().String())

		env := map[string]string{
			"STUDIOBOOK_AUTH_JWT_SECRET":     "test-secret-for-bind-fail-case",
			"STUDIOBOOK_SERVER_ADDRESS":      "127.0.0.1",
			"STUDIOBOOK_SERVER_PORT":         port,
			"STUDIOBOOK_STORE_FILE":          filepath.Join(t.TempDir(), "test_bind_fail.json"),
			"STUDIOBOOK_STORE_SAVE_INTERVAL": "0s",
		}

		exitCode, stderr := runMain(t, binaryPath, env)

		assert.NotEqual(t, 0, exitCode, "Expected non-zero exit code for server bind failure")
		assert.Contains(t, stderr, "CRITICAL: Server failed to start")
		assert.Contains(t, strings.ToLower(stderr), "address already in use")
	})
}

func TestConfigureLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetFormatter(&logrus.TextFormatter{})

	configureLogging(config.LogConfig{Level: "debug", Format: "json"})
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	configureLogging(config.LogConfig{Level: "loud", Format: "text"})
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logrus.StandardLogger().Formatter)
}
