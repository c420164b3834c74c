package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// qaClient talks to the HelpBubble QA backend. Each call builds its own
// bounded-timeout HTTP client; a hung service can never wedge the UI.
type qaClient struct {
	apiBase       string
	askTimeout    time.Duration
	healthTimeout time.Duration
	log           zerolog.Logger
}

func newQAClient(apiBase string, askTimeout, healthTimeout time.Duration, log zerolog.Logger) *qaClient {
	return &qaClient{
		apiBase:       strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		askTimeout:    askTimeout,
		healthTimeout: healthTimeout,
		log:           log,
	}
}

type healthPayload struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelName   string `json:"model_name"`
	Timestamp   string `json:"timestamp"`
}

type askPayload struct {
	Answer       string  `json:"answer"`
	Confidence   float64 `json:"confidence"`
	ContextUsed  string  `json:"context_used"`
	ResponseTime float64 `json:"response_time"`
	Timestamp    string  `json:"timestamp"`
}

type contextsPayload struct {
	Contexts []string `json:"contexts"`
	Total    int      `json:"total_contexts"`
}

// askStatusError is returned when the service answered with a non-2xx status.
// Keeping the status on the error lets the orchestrator separate an internal
// server failure from everything else.
type askStatusError struct {
	status int
	body   string
}

func (e *askStatusError) Error() string {
	return fmt.Sprintf("qa service http %d: %s", e.status, e.body)
}

func (c *qaClient) ask(question, userID string) (askPayload, error) {
	body := map[string]any{
		"question": question,
		"user_id":  userID,
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, c.apiBase+"/ask", bytes.NewReader(buf))
	if err != nil {
		return askPayload{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: maxDuration(time.Second, c.askTimeout)}
	resp, err := client.Do(req)
	if err != nil {
		return askPayload{}, fmt.Errorf("ask request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return askPayload{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return askPayload{}, &askStatusError{status: resp.StatusCode, body: compactSingleLine(string(payload), 240)}
	}

	var parsed askPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return askPayload{}, fmt.Errorf("ask returned non-json payload")
	}
	if strings.TrimSpace(parsed.Answer) == "" {
		return askPayload{}, errors.New("ask returned empty answer")
	}
	return parsed, nil
}

func (c *qaClient) checkHealth() (healthPayload, error) {
	req, err := http.NewRequest(http.MethodGet, c.apiBase+"/health", nil)
	if err != nil {
		return healthPayload{}, err
	}

	client := &http.Client{Timeout: maxDuration(time.Second, c.healthTimeout)}
	resp, err := client.Do(req)
	if err != nil {
		return healthPayload{}, fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return healthPayload{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return healthPayload{}, fmt.Errorf("health http %d: %s", resp.StatusCode, compactSingleLine(string(payload), 160))
	}

	var parsed healthPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return healthPayload{}, fmt.Errorf("health returned non-json payload")
	}
	return parsed, nil
}

// contexts lists the knowledge-base topics the service can answer about. Uses
// the health timeout; it is the same class of lightweight metadata call.
func (c *qaClient) contexts() ([]string, error) {
	req, err := http.NewRequest(http.MethodGet, c.apiBase+"/contexts", nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: maxDuration(time.Second, c.healthTimeout)}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contexts request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("contexts http %d", resp.StatusCode)
	}

	var parsed contextsPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("contexts returned non-json payload")
	}
	return parsed.Contexts, nil
}
