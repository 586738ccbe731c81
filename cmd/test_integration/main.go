package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	baseURL = "http://localhost:8080"
)

const transcript = `Alice: Thanks everyone for joining the launch sync.
Bob: The beta build is ready. We still need a security review before release.
Alice: Let's schedule a 45 minute security review with Carol next Tuesday.
Bob: I'll add the test results to this meeting's notes.
Alice: Great, and we should find time for a retro the week after.`

func main() {
	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting Integration Test...")

	// 1. Subscribe before starting so no stage is missed.
	fmt.Println("1. Subscribing to events...")
	stream, err := http.Get(baseURL + "/api/workflows/events")
	if err != nil || stream.StatusCode != http.StatusOK {
		fmt.Printf("FAILED: Subscribe (%v)\n", err)
		os.Exit(1)
	}
	defer stream.Body.Close()
	events := readEvents(stream.Body)
	if ev := <-events; ev != "connected" {
		fmt.Printf("FAILED: Subscribe, first event %q\n", ev)
		os.Exit(1)
	}
	fmt.Println("PASSED: Subscribe")

	// 2. Start
	fmt.Println("2. Starting workflow...")
	payload := map[string]interface{}{
		"transcript":   transcript,
		"auto_execute": true,
	}
	if !sendRequest("POST", "/api/workflows", payload, http.StatusAccepted) {
		fmt.Println("FAILED: Start workflow")
		os.Exit(1)
	}
	fmt.Println("PASSED: Start workflow")

	// 3. Follow
	fmt.Println("3. Following events...")
	timeout := time.After(5 * time.Minute)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				fmt.Println("FAILED: Event stream closed early")
				os.Exit(1)
			}
			fmt.Printf("   %s\n", ev)
			switch ev {
			case "workflow_complete":
				fmt.Println("PASSED: Workflow")
				if !sendRequest("GET", "/api/workflows/status", nil, http.StatusOK) {
					os.Exit(1)
				}
				return
			case "workflow_error", "workflow_cancelled":
				fmt.Println("FAILED: Workflow")
				sendRequest("GET", "/api/workflows/status", nil, http.StatusOK)
				os.Exit(1)
			}
		case <-timeout:
			fmt.Println("FAILED: Timed out waiting for workflow")
			os.Exit(1)
		}
	}
}

func readEvents(r io.Reader) <-chan string {
	out := make(chan string, 32)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for sc.Scan() {
			if ev, ok := strings.CutPrefix(sc.Text(), "event:"); ok {
				out <- strings.TrimSpace(ev)
			}
		}
	}()
	return out
}

func sendRequest(method, endpoint string, payload interface{}, want int) bool {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+endpoint, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return false
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return true
}
