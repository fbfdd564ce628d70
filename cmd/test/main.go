package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

const sampleCSV = `sheet,item,model,ds,forecast,hist_june_2025,promo_flag
AcmeCo,SKU 1 - Amazon.com,prophet,2025-07-01,120,100,1
AcmeCo,SKU 1 - Amazon.com,prophet,2025-08-01,118,104,0
AcmeCo,SKU 2 - Walmart,prophet,2025-07-01,80,95,0
AcmeCo,SKU 2 - Walmart,prophet,2025-08-01,76,90,0
`

var (
	headerColor  = color.New(color.FgBlue)
	testColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	labelColor   = color.New(color.FgYellow)
	dataColor    = color.New(color.FgMagenta)
)

type TestClient struct {
	baseURL string
	client  *http.Client
	poll    time.Duration
	wait    time.Duration
}

func NewTestClient(baseURL string, wait time.Duration) *TestClient {
	return &TestClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		poll: 5 * time.Second,
		wait: wait,
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Base URL of the agent")
	testType := flag.String("test", "all", "Test type: all, health, agent-card, dashboard, insights, custom")
	csvFile := flag.String("csv", "", "Forecast CSV to analyse (for custom test)")
	wait := flag.Duration("wait", 10*time.Minute, "How long to wait for an insights run")
	flag.Parse()

	client := NewTestClient(*baseURL, *wait)

	printHeader("CPG Trends Agent - Test Suite")
	testColor.Printf("Base URL: %s\n\n", *baseURL)

	switch *testType {
	case "all":
		client.runAllTests()
	case "health":
		client.testHealthCheck()
	case "agent-card":
		client.testAgentCard()
	case "dashboard":
		client.testDashboard()
	case "insights":
		client.testInsights()
	case "custom":
		if *csvFile == "" {
			printError("A CSV file is required for custom test. Use -csv flag")
			os.Exit(1)
		}
		data, err := os.ReadFile(*csvFile)
		if err != nil {
			printError(fmt.Sprintf("Failed to read %s: %v", *csvFile, err))
			os.Exit(1)
		}
		if !client.testCustomInsights(string(data)) {
			os.Exit(1)
		}
	default:
		printError(fmt.Sprintf("Unknown test type: %s", *testType))
		fmt.Println("\nAvailable tests: all, health, agent-card, dashboard, insights, custom")
		os.Exit(1)
	}
}

func (tc *TestClient) runAllTests() {
	tests := []struct {
		name string
		fn   func() bool
	}{
		{"Health Check", tc.testHealthCheck},
		{"Agent Card", tc.testAgentCard},
		{"Dashboard", tc.testDashboard},
		{"Insights", tc.testInsights},
	}

	passed := 0
	failed := 0

	for _, test := range tests {
		if test.fn() {
			passed++
		} else {
			failed++
		}
		fmt.Println()
	}

	printHeader("Test Summary")
	successColor.Printf("Passed: %d\n", passed)
	errorColor.Printf("Failed: %d\n", failed)
	fmt.Printf("Total: %d\n", passed+failed)

	if failed > 0 {
		os.Exit(1)
	}
}

func (tc *TestClient) testHealthCheck() bool {
	printTestHeader("Testing Health Check Endpoint")

	body, ok := tc.get("/health")
	if !ok {
		return false
	}
	if string(body) != "OK" {
		printError(fmt.Sprintf("Expected body 'OK', got '%s'", string(body)))
		return false
	}

	printSuccess("Health check passed")
	return true
}

func (tc *TestClient) testAgentCard() bool {
	printTestHeader("Testing Agent Card Endpoint")

	body, ok := tc.get("/.well-known/agent.json")
	if !ok {
		return false
	}

	var agentCard map[string]any
	if err := json.Unmarshal(body, &agentCard); err != nil {
		printError(fmt.Sprintf("Invalid JSON response: %v", err))
		return false
	}

	requiredFields := []string{"name", "description", "version", "capabilities", "endpoints"}
	for _, field := range requiredFields {
		if _, ok := agentCard[field]; !ok {
			printError(fmt.Sprintf("Missing required field: %s", field))
			return false
		}
	}

	printSuccess("Agent card is valid")
	printJSON(body)
	return true
}

func (tc *TestClient) testDashboard() bool {
	printTestHeader("Testing Dashboard Endpoint")

	body, ok := tc.get("/api/dashboard?group=1")
	if !ok {
		return false
	}

	var view struct {
		Keywords []struct {
			Keyword string `json:"keyword"`
			Current int    `json:"current"`
			Change  string `json:"change"`
			Error   string `json:"error"`
		} `json:"keywords"`
	}
	if err := json.Unmarshal(body, &view); err != nil {
		printError(fmt.Sprintf("Invalid JSON response: %v", err))
		return false
	}
	if len(view.Keywords) == 0 {
		printError("Dashboard returned no keywords")
		return false
	}

	for _, kw := range view.Keywords {
		if kw.Error != "" {
			errorColor.Printf("  %-16s %s\n", kw.Keyword, kw.Error)
			continue
		}
		fmt.Printf("  %-16s current %3d  change %s%%\n", kw.Keyword, kw.Current, kw.Change)
	}
	printSuccess("Dashboard built")
	return true
}

func (tc *TestClient) testInsights() bool {
	return tc.testCustomInsights(sampleCSV)
}

// testCustomInsights starts a non-blocking A2A task and polls tasks/get until
// it reaches a terminal state.
func (tc *TestClient) testCustomInsights(csv string) bool {
	printTestHeader("Testing Insights Generation")

	request := map[string]any{
		"jsonrpc": "2.0",
		"id":      fmt.Sprintf("test-%d", time.Now().Unix()),
		"method":  "message/send",
		"params": map[string]any{
			"message": map[string]any{
				"kind": "message",
				"role": "user",
				"parts": []map[string]any{
					{"kind": "text", "text": csv},
				},
			},
			"configuration": map[string]any{
				"blocking":            false,
				"acceptedOutputModes": []string{"text", "data"},
			},
		},
	}

	result, ok := tc.rpc(request)
	if !ok {
		return false
	}
	taskID, _ := result["id"].(string)
	labelColor.Printf("Task: %s\n", taskID)

	deadline := time.Now().Add(tc.wait)
	for {
		status, _ := result["status"].(map[string]any)
		state, _ := status["state"].(string)
		fmt.Printf("  state=%s %s\n", state, messageText(status))

		switch state {
		case "completed":
			printSuccess("Insights generated successfully")
			fmt.Println(strings.Repeat("=", 80))
			fmt.Println(messageText(status))
			fmt.Println(strings.Repeat("=", 80))
			if artifacts, ok := result["artifacts"].([]any); ok && len(artifacts) > 0 {
				dataColor.Printf("\nArtifacts: %d\n", len(artifacts))
			}
			return true
		case "failed", "canceled":
			printError(fmt.Sprintf("Task ended in state '%s'", state))
			return false
		}

		if time.Now().After(deadline) {
			printError("Timed out waiting for the insights run")
			return false
		}
		time.Sleep(tc.poll)

		result, ok = tc.rpc(map[string]any{
			"jsonrpc": "2.0",
			"id":      fmt.Sprintf("poll-%d", time.Now().Unix()),
			"method":  "tasks/get",
			"params":  map[string]any{"id": taskID},
		})
		if !ok {
			return false
		}
	}
}

func (tc *TestClient) get(path string) ([]byte, bool) {
	url := tc.baseURL + path
	fmt.Printf("GET %s\n", url)

	resp, err := tc.client.Get(url)
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return nil, false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		printError(fmt.Sprintf("Expected status 200, got %d", resp.StatusCode))
		fmt.Printf("Response: %s\n", string(body))
		return nil, false
	}
	return body, true
}

func (tc *TestClient) rpc(request map[string]any) (map[string]any, bool) {
	url := tc.baseURL + "/a2a/insights"
	jsonData, _ := json.Marshal(request)

	resp, err := tc.client.Post(url, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return nil, false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		printError(fmt.Sprintf("Expected status 200, got %d", resp.StatusCode))
		fmt.Printf("Response: %s\n", string(body))
		return nil, false
	}

	var response map[string]any
	if err := json.Unmarshal(body, &response); err != nil {
		printError(fmt.Sprintf("Invalid JSON response: %v", err))
		return nil, false
	}
	if errObj, ok := response["error"]; ok && errObj != nil {
		printError("Request returned an error")
		errJSON, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Println(string(errJSON))
		return nil, false
	}

	result, ok := response["result"].(map[string]any)
	if !ok {
		printError("Invalid result format")
		return nil, false
	}
	return result, true
}

func messageText(status map[string]any) string {
	msg, ok := status["message"].(map[string]any)
	if !ok {
		return ""
	}
	parts, _ := msg["parts"].([]any)
	var texts []string
	for _, part := range parts {
		if p, ok := part.(map[string]any); ok {
			if text, ok := p["text"].(string); ok {
				texts = append(texts, text)
			}
		}
	}
	return strings.Join(texts, "\n")
}

func printHeader(text string) {
	line := strings.Repeat("=", len(text)+4)
	headerColor.Printf("\n%s\n= %s =\n%s\n\n", line, text, line)
}

func printTestHeader(text string) {
	testColor.Printf("[TEST] %s\n", text)
	fmt.Println(strings.Repeat("-", 80))
}

func printSuccess(text string) {
	successColor.Printf("✓ %s\n", text)
}

func printError(text string) {
	errorColor.Printf("✗ %s\n", text)
}

func printJSON(data []byte) {
	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, data, "", "  "); err == nil {
		labelColor.Printf("\nResponse:\n")
		fmt.Println(prettyJSON.String())
	}
}
