package integration_tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const (
	serverBinaryPath = "./app_binary"       // Relative to integration_tests directory
	testDbPath       = "./test_studio.json" // Relative to integration_tests directory
	testPort         = "8081"
	serverBaseURL    = "http://localhost:" + testPort
	testJwtSecret    = "a-very-secure-secret-for-testing-only" // Fixed secret for predictable tokens
	readinessTimeout = 15 * time.Second
	readinessPoll    = 200 * time.Millisecond
)

var httpClient = &http.Client{
	Timeout: 10 * time.Second,
}

// --- Test Main: Setup & Teardown ---

func TestMain(m *testing.M) {
	log.Println("INFO: Building server binary...")
	buildCmd := exec.Command("go", "build", "-o", serverBinaryPath, "..")
	buildCmd.Dir = "."
	buildOutput, err := buildCmd.CombinedOutput()
	if err != nil {
		log.Fatalf("FATAL: Failed to build server binary: %v\nOutput:\n%s", err, string(buildOutput))
	}

	absBinaryPath, _ := filepath.Abs(serverBinaryPath)
	absDbPath, _ := filepath.Abs(testDbPath)
	_ = os.Remove(absDbPath)

	env := append(os.Environ(),
		fmt.Sprintf("STUDIOBOOK_STORE_FILE=%s", absDbPath),
		fmt.Sprintf("STUDIOBOOK_AUTH_JWT_SECRET=%s", testJwtSecret),
		fmt.Sprintf("STUDIOBOOK_SERVER_PORT=%s", testPort),
		"STUDIOBOOK_SERVER_ADDRESS=127.0.0.1",
		"STUDIOBOOK_STORE_BACKEND=file",
		"STUDIOBOOK_STORE_SAVE_INTERVAL=0s", // Save synchronously so the file can be inspected
		"STUDIOBOOK_STORE_BACKUP=false",
		"STUDIOBOOK_HTTP_BOOKING_RATE_PER_MINUTE=0",
	)

	log.Printf("INFO: Starting server process: %s (DB: %s)", absBinaryPath, absDbPath)
	serverCmd := exec.Command(absBinaryPath)
	serverCmd.Env = env
	serverCmd.Stdout = os.Stdout
	serverCmd.Stderr = os.Stderr
	if err := serverCmd.Start(); err != nil {
		log.Fatalf("FATAL: Failed to start server process: %v", err)
	}

	if !waitForServerReady(serverBaseURL+"/health", readinessTimeout) {
		_ = serverCmd.Process.Signal(syscall.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = serverCmd.Process.Kill()
		log.Fatalf("FATAL: Server did not become ready within %v", readinessTimeout)
	}
	log.Println("INFO: Server is ready!")

	exitCode := m.Run()

	// --- Teardown ---
	if err := serverCmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Printf("WARN: Failed to send SIGTERM to server process: %v", err)
	} else {
		time.Sleep(500 * time.Millisecond)
	}
	if err := serverCmd.Process.Kill(); err != nil && !strings.Contains(err.Error(), "process already finished") {
		log.Printf("WARN: Failed to kill server process: %v", err)
	}
	_, _ = serverCmd.Process.Wait()

	for _, path := range []string{serverBinaryPath, testDbPath, "./studiobook.key"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("WARN: Failed to remove '%s': %v", path, err)
		}
	}
	os.Exit(exitCode)
}

// --- Helper Functions ---

// waitForServerReady polls a URL until it gets a 200 OK or times out.
func waitForServerReady(url string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := httpClient.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return true
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(readinessPoll)
	}
	return false
}

// makeRequest sends body as JSON and returns the status code and raw response body.
func makeRequest(t *testing.T, method, urlPath, authToken string, body interface{}) (int, string) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, serverBaseURL+urlPath, reqBody)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := httpClient.Do(req)
	require.NoError(t, err, "%s %s", method, urlPath)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	log.Printf("DEBUG: %s %s -> %s %s", method, urlPath, resp.Status, string(respBody))
	return resp.StatusCode, string(respBody)
}

func readStoreFile(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(testDbPath)
	require.NoError(t, err)
	return string(data)
}

// --- Workflow ---

func TestBookingWorkflow(t *testing.T) {
	// 1. A fresh store is seeded with the default catalog.
	status, body := makeRequest(t, http.MethodGet, "/services?featured=true", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, int64(2), gjson.Get(body, "#").Int())
	serviceID := gjson.Get(body, "0.id").String()
	serviceTitle := gjson.Get(body, "0.title").String()

	status, body = makeRequest(t, http.MethodGet, "/booking/slots", "", nil)
	require.Equal(t, http.StatusOK, status)
	date := gjson.Get(body, "dates.0").String()
	slot := gjson.Get(body, "times.2").String()
	require.NotEmpty(t, date)
	assert.Equal(t, "10:00", slot)

	// 2. The admin area is closed to anonymous visitors.
	status, body = makeRequest(t, http.MethodGet, "/admin/bookings", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "/admin/login", gjson.Get(body, "redirect").String())

	// 3. The admin logs in and subscribes to the change feed.
	status, body = makeRequest(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, status)
	token := gjson.Get(body, "token").String()
	require.NotEmpty(t, token)
	assert.Contains(t, readStoreFile(t), `"adminToken"`)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	wsURL := "ws://localhost:" + testPort + "/admin/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	// 4. A customer books a slot.
	status, body = makeRequest(t, http.MethodPost, "/bookings", "", map[string]string{
		"serviceId": serviceID,
		"date":      date,
		"time":      slot,
		"name":      "Ada Lovelace",
		"email":     "ada@example.com",
		"phone":     "555-0100",
	})
	require.Equal(t, http.StatusCreated, status)
	bookingID := gjson.Get(body, "id").String()
	assert.Equal(t, "pending", gjson.Get(body, "status").String())
	assert.Equal(t, serviceTitle, gjson.Get(body, "serviceName").String())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "bookings", gjson.GetBytes(msg, "collection").String())
	assert.Equal(t, "created", gjson.GetBytes(msg, "action").String())
	assert.Equal(t, bookingID, gjson.GetBytes(msg, "id").String())

	stored := readStoreFile(t)
	assert.Equal(t, bookingID, gjson.Get(stored, "bookings.0.id").String(), "booking is persisted immediately")

	// 5. The admin finds and confirms it.
	status, body = makeRequest(t, http.MethodGet, "/admin/bookings?search=lovelace&status=pending", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), gjson.Get(body, "total").Int())
	assert.Equal(t, bookingID, gjson.Get(body, "data.0.id").String())

	status, body = makeRequest(t, http.MethodPatch, "/admin/bookings/"+bookingID+"/status", token, map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirmed", gjson.Get(body, "status").String())

	status, body = makeRequest(t, http.MethodGet, "/admin/dashboard", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), gjson.Get(body, "confirmedBookings").Int())
	assert.Equal(t, 199.0, gjson.Get(body, "estimatedRevenue").Float())

	// 6. Removing the service leaves the booking with a dangling reference.
	status, _ = makeRequest(t, http.MethodDelete, "/admin/services/"+serviceID, token, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body = makeRequest(t, http.MethodGet, "/admin/bookings/"+bookingID, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, serviceTitle, gjson.Get(body, "serviceName").String())
	assert.Equal(t, "Unknown service", gjson.Get(body, "currentServiceName").String())

	status, body = makeRequest(t, http.MethodGet, "/admin/dashboard", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0.0, gjson.Get(body, "estimatedRevenue").Float())

	// 7. Logging out closes the admin area again.
	status, _ = makeRequest(t, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, status)
	status, _ = makeRequest(t, http.MethodGet, "/admin/dashboard", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, gjson.Get(readStoreFile(t), "adminToken").Exists())
}
