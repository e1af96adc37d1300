package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const pocketbaseURL = "http://127.0.0.1:8090"

var httpClient = &http.Client{Timeout: 10 * time.Second}

func main() {
	fmt.Println("🚀 Scan Relay PocketBase Setup")
	fmt.Println("============================")

	// Load .env file if exists
	godotenv.Load()

	// Check if custom credentials provided via env
	url := getEnv("POCKETBASE_URL", pocketbaseURL)
	token := getEnv("POCKETBASE_TOKEN", "")

	fmt.Printf("Connecting to: %s\n", url)

	// Check if PocketBase is running
	if err := checkHealth(url); err != nil {
		fmt.Printf("❌ Cannot connect to PocketBase: %v\n", err)
		fmt.Println("\nPlease check:")
		fmt.Println("1. Is PocketBase running at the specified URL?")
		fmt.Println("2. Check with: curl http://127.0.0.1:8090/api/health")
		os.Exit(1)
	}

	// Check if token provided
	if token == "" {
		fmt.Println("❌ POCKETBASE_TOKEN not set")
		fmt.Println("\nPlease set:")
		fmt.Println("  export POCKETBASE_TOKEN=your_token_here")
		fmt.Println("\nTo get token:")
		fmt.Println("  curl -X POST http://127.0.0.1:8090/api/collections/_superusers/auth-with-password \\")
		fmt.Println("    -H \"Content-Type: application/json\" \\")
		fmt.Println("    -d '{\"identity\":\"admin@example.com\",\"password\":\"password123\"}'")
		os.Exit(1)
	}

	fmt.Println("✅ Using POCKETBASE_TOKEN from environment")

	// Test auth first
	if err := testAuth(url, token); err != nil {
		fmt.Printf("❌ Auth test failed: %v\n", err)
		os.Exit(1)
	}

	// Create collections
	collections := []struct {
		name   string
		create func(string, string) error
	}{
		{"scan_events", createScanEventsCollection},
	}

	for _, col := range collections {
		fmt.Printf("\n📦 Creating collection: %s\n", col.name)
		if err := col.create(url, token); err != nil {
			fmt.Printf("   ⚠️  %v\n", err)
		} else {
			fmt.Printf("   ✅ Created successfully\n")
		}
	}

	fmt.Println("\n🎉 Setup complete!")
	fmt.Printf("\nAccess Admin UI: %s/_/\n", url)
}

func testAuth(baseURL, token string) error {
	url := fmt.Sprintf("%s/api/collections", baseURL)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Authorization", token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	fmt.Println("✅ Authentication successful")
	return nil
}

func createCollection(baseURL, token, name string, fields []map[string]interface{}, indexes []string) error {
	// Create collection with fields using proper PocketBase format
	createURL := fmt.Sprintf("%s/api/collections", baseURL)

	createData := map[string]interface{}{
		"name":    name,
		"type":    "base",
		"fields":  fields,
		"indexes": indexes,
	}

	jsonData, err := json.Marshal(createData)
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}
	req, err := http.NewRequest("POST", createURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	// Check if already exists
	if resp.StatusCode == http.StatusBadRequest && (bytes.Contains(body, []byte("already exists")) || bytes.Contains(body, []byte("must be unique"))) {
		// Try to update schema instead
		fmt.Printf("   Collection exists, attempting to update fields...\n")
		return updateCollectionFields(baseURL, token, name, fields)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("create failed: %s - %s", resp.Status, string(body))
	}

	fmt.Printf("   Created with %d fields\n", len(fields))
	return nil
}

func updateCollectionFields(baseURL, token, name string, fields []map[string]interface{}) error {
	// Get existing collection to check current fields
	getURL := fmt.Sprintf("%s/api/collections/%s", baseURL, name)
	req, err := http.NewRequest("GET", getURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build get request: %w", err)
	}
	req.Header.Set("Authorization", token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to get collection: %w", err)
	}

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var existing struct {
		ID     string                   `json:"id"`
		Fields []map[string]interface{} `json:"fields"`
	}

	if err := json.Unmarshal(body, &existing); err != nil {
		return fmt.Errorf("failed to parse collection: %w", err)
	}

	// Check which fields are missing
	existingFieldNames := make(map[string]bool)
	for _, f := range existing.Fields {
		if name, ok := f["name"].(string); ok {
			existingFieldNames[name] = true
		}
	}

	var newFields []map[string]interface{}
	for _, field := range fields {
		if name, ok := field["name"].(string); ok {
			if !existingFieldNames[name] {
				newFields = append(newFields, field)
			}
		}
	}

	if len(newFields) == 0 {
		fmt.Printf("   All fields already exist\n")
		return nil
	}

	// Update collection with new fields
	updateURL := fmt.Sprintf("%s/api/collections/%s", baseURL, name)
	updateData := map[string]interface{}{
		"fields": append(existing.Fields, newFields...),
	}

	jsonData, err := json.Marshal(updateData)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}
	req, err = http.NewRequest("PATCH", updateURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err = httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}

	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("update failed: %s - %s", resp.Status, string(body))
	}

	fmt.Printf("   Added %d new fields\n", len(newFields))
	return nil
}

func createTextField(name string, required bool) map[string]interface{} {
	return map[string]interface{}{
		"name":     name,
		"type":     "text",
		"required": required,
		"hidden":   false,
		"system":   false,
		"min":      0,
		"max":      0,
	}
}

func createNumberField(name string, required bool) map[string]interface{} {
	return map[string]interface{}{
		"name":     name,
		"type":     "number",
		"required": required,
		"hidden":   false,
		"system":   false,
		"onlyInt":  true,
	}
}

func createDateField(name string, required bool) map[string]interface{} {
	return map[string]interface{}{
		"name":     name,
		"type":     "date",
		"required": required,
		"hidden":   false,
		"system":   false,
	}
}

func createSelectField(name string, required bool, values ...string) map[string]interface{} {
	return map[string]interface{}{
		"name":      name,
		"type":      "select",
		"required":  required,
		"hidden":    false,
		"system":    false,
		"maxSelect": 1,
		"values":    values,
	}
}

// scanEventsFields mirrors the scan_events migration for external servers
func scanEventsFields() []map[string]interface{} {
	return []map[string]interface{}{
		createTextField("event_id", true),
		createTextField("code", true),
		createSelectField("scan_type", false, "normal", "emergency"),
		createSelectField("status", true, "pending", "in_flight", "delivered", "failed"),
		createDateField("captured_at", true),
		createTextField("device_info", false),
		createNumberField("latency_ms", false),
		createTextField("failure_reason", false),
	}
}

func createScanEventsCollection(baseURL, token string) error {
	indexes := []string{
		"CREATE UNIQUE INDEX idx_scan_events_event_id ON scan_events (event_id)",
		"CREATE INDEX idx_scan_events_captured_at ON scan_events (captured_at)",
	}
	return createCollection(baseURL, token, "scan_events", scanEventsFields(), indexes)
}

func checkHealth(baseURL string) error {
	resp, err := httpClient.Get(baseURL + "/api/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %s", resp.Status)
	}

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("✅ PocketBase is running: %s\n", string(body))
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
