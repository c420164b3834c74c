package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const answerBody = `{"answer":"30 days","confidence":0.98,"response_time":0.15,"context_used":"return policy"}`

func newTestOrchestrator(t *testing.T, handler http.Handler) *orchestrator {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := newQAClient(server.URL, 2*time.Second, 2*time.Second, zerolog.Nop())
	return newOrchestrator(newSession(), client, zerolog.Nop())
}

func answerHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ask" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

func TestBootstrapSeedsWelcome(t *testing.T) {
	orch := newTestOrchestrator(t, answerHandler(answerBody))
	orch.bootstrap()

	messages := orch.session.all()
	if len(messages) != 1 {
		t.Fatalf("expected exactly the welcome message, got %d", len(messages))
	}
	welcome := messages[0]
	if welcome.Sender != senderAssistant {
		t.Fatalf("expected welcome from assistant, got %q", welcome.Sender)
	}
	if welcome.IsError {
		t.Fatalf("welcome must not be an error notice")
	}
	if welcome.Confidence != nil || welcome.ResponseSec != nil || welcome.ContextUsed != "" {
		t.Fatalf("welcome must not carry answer metadata")
	}
}

func TestSubmitSuccess(t *testing.T) {
	orch := newTestOrchestrator(t, answerHandler(answerBody))
	orch.session.setConnected(false) // stale failed health check

	outcome := orch.submit("How long do I have to return an item?")
	if !outcome.accepted {
		t.Fatalf("expected submit to be accepted")
	}
	if outcome.reply.IsError {
		t.Fatalf("expected genuine answer, got error notice: %q", outcome.reply.Text)
	}
	if outcome.reply.Text != "30 days" {
		t.Fatalf("unexpected answer text: %q", outcome.reply.Text)
	}
	if outcome.reply.Confidence == nil || *outcome.reply.Confidence != 0.98 {
		t.Fatalf("expected confidence 0.98, got %v", outcome.reply.Confidence)
	}
	if outcome.reply.ResponseSec == nil || *outcome.reply.ResponseSec != 0.15 {
		t.Fatalf("expected response time 0.15, got %v", outcome.reply.ResponseSec)
	}
	if outcome.reply.ContextUsed != "return policy" {
		t.Fatalf("expected context to be retained, got %q", outcome.reply.ContextUsed)
	}
	if !orch.session.isConnected() {
		t.Fatalf("expected a successful exchange to mark the service reachable")
	}
	if orch.session.isLoading() {
		t.Fatalf("expected loading to clear after submit resolved")
	}
}

func TestSubmitTranscriptShape(t *testing.T) {
	orch := newTestOrchestrator(t, answerHandler(answerBody))
	orch.bootstrap()

	questions := []string{"first question", "second question", "third question"}
	for _, q := range questions {
		if outcome := orch.submit(q); !outcome.accepted {
			t.Fatalf("expected submit %q to be accepted", q)
		}
	}

	messages := orch.session.all()
	want := 1 + 2*len(questions)
	if len(messages) != want {
		t.Fatalf("expected %d messages (welcome + 2 per question), got %d", want, len(messages))
	}
	for i := 1; i < len(messages); i++ {
		wantSender := senderUser
		if i%2 == 0 {
			wantSender = senderAssistant
		}
		if messages[i].Sender != wantSender {
			t.Fatalf("expected message %d from %q, got %q", i, wantSender, messages[i].Sender)
		}
	}
}

func TestSubmitEmptyQuestionIsNoOp(t *testing.T) {
	orch := newTestOrchestrator(t, answerHandler(answerBody))
	orch.bootstrap()

	for _, q := range []string{"", "   ", "\n\t"} {
		outcome := orch.submit(q)
		if outcome.accepted {
			t.Fatalf("expected blank question %q to be ignored", q)
		}
	}
	if len(orch.session.all()) != 1 {
		t.Fatalf("expected transcript unchanged after rejected submits")
	}
	if orch.session.isLoading() {
		t.Fatalf("expected loading untouched by rejected submits")
	}
}

func TestSubmitWhileLoadingIsNoOp(t *testing.T) {
	orch := newTestOrchestrator(t, answerHandler(answerBody))
	orch.bootstrap()

	if !orch.session.beginSubmit() {
		t.Fatalf("could not claim loading slot for test")
	}
	outcome := orch.submit("should be dropped")
	if outcome.accepted {
		t.Fatalf("expected submit during an in-flight exchange to be a no-op")
	}
	if len(orch.session.all()) != 1 {
		t.Fatalf("expected transcript unchanged, got %d messages", len(orch.session.all()))
	}
	if !orch.session.isLoading() {
		t.Fatalf("expected loading to remain true for the original exchange")
	}
	orch.session.endSubmit()
}

func TestSubmitServerError(t *testing.T) {
	orch := newTestOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"QA model not loaded"}`, http.StatusInternalServerError)
	}))
	orch.session.setConnected(true)

	outcome := orch.submit("anything")
	if !outcome.accepted {
		t.Fatalf("expected submit to be accepted")
	}
	if !outcome.reply.IsError {
		t.Fatalf("expected synthesized error notice")
	}
	if !strings.Contains(outcome.reply.Text, "processing your request") {
		t.Fatalf("expected server-failure wording, got %q", outcome.reply.Text)
	}
	if outcome.reply.Confidence != nil || outcome.reply.ResponseSec != nil || outcome.reply.ContextUsed != "" {
		t.Fatalf("error notice must not carry answer metadata")
	}
	if orch.session.isConnected() {
		t.Fatalf("expected connected=false after server failure")
	}
	if orch.session.isLoading() {
		t.Fatalf("expected loading to clear after failure")
	}
}

func TestSubmitConnectivityError(t *testing.T) {
	server := httptest.NewServer(answerHandler(answerBody))
	client := newQAClient(server.URL, 2*time.Second, 2*time.Second, zerolog.Nop())
	orch := newOrchestrator(newSession(), client, zerolog.Nop())
	server.Close() // connection refused from here on
	orch.session.setConnected(true)

	outcome := orch.submit("anything")
	if !outcome.accepted {
		t.Fatalf("expected submit to be accepted")
	}
	if !outcome.reply.IsError {
		t.Fatalf("expected synthesized error notice")
	}
	if !strings.Contains(outcome.reply.Text, "check your internet connection") {
		t.Fatalf("expected connectivity wording, got %q", outcome.reply.Text)
	}
	if orch.session.isConnected() {
		t.Fatalf("expected connected=false after transport failure")
	}
	if orch.session.isLoading() {
		t.Fatalf("expected loading to clear after failure")
	}
}

func TestSubmitTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(1500 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(answerBody))
	}))
	t.Cleanup(server.Close)
	// The client floors timeouts at one second, so the slow handler has to
	// outlast that floor.
	client := newQAClient(server.URL, time.Second, time.Second, zerolog.Nop())
	client.askTimeout = 50 * time.Millisecond
	orch := newOrchestrator(newSession(), client, zerolog.Nop())

	outcome := orch.submit("anything")
	if !outcome.accepted {
		t.Fatalf("expected submit to be accepted")
	}
	if !outcome.reply.IsError || !strings.Contains(outcome.reply.Text, "check your internet connection") {
		t.Fatalf("expected timeout to surface as connectivity failure, got %q", outcome.reply.Text)
	}
	if orch.session.isConnected() {
		t.Fatalf("expected connected=false after timeout")
	}
	if orch.session.isLoading() {
		t.Fatalf("expected loading to clear after timeout")
	}
}

func TestCheckHealthHealthy(t *testing.T) {
	orch := newTestOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","model_loaded":true,"model_name":"distilbert-base-cased-distilled-squad"}`))
	}))

	report := orch.checkHealth()
	if !report.reachable {
		t.Fatalf("expected healthy status to be reachable")
	}
	if report.modelName != "distilbert-base-cased-distilled-squad" {
		t.Fatalf("unexpected model name: %q", report.modelName)
	}
	if !orch.session.isConnected() {
		t.Fatalf("expected connected=true after healthy probe")
	}
}

func TestCheckHealthDegraded(t *testing.T) {
	orch := newTestOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"degraded"}`))
	}))
	orch.session.setConnected(true)

	report := orch.checkHealth()
	if report.reachable {
		t.Fatalf("expected degraded status to count as unreachable")
	}
	if orch.session.isConnected() {
		t.Fatalf("expected connected=false after degraded probe")
	}
}

func TestCheckHealthTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	client := newQAClient(server.URL, time.Second, time.Second, zerolog.Nop())
	orch := newOrchestrator(newSession(), client, zerolog.Nop())
	server.Close()
	orch.session.setConnected(true)

	report := orch.checkHealth()
	if report.reachable {
		t.Fatalf("expected transport failure to count as unreachable")
	}
	if report.detail == "" {
		t.Fatalf("expected diagnostic detail on failed probe")
	}
	if orch.session.isConnected() {
		t.Fatalf("expected connected=false after failed probe")
	}
	if len(orch.session.all()) != 0 {
		t.Fatalf("health failures must never land in the transcript")
	}
}

func TestCheckHealthSingleFlight(t *testing.T) {
	var calls int64
	orch := newTestOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(150 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			orch.checkHealth()
		}()
	}
	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("expected concurrent probes to collapse into one request, got %d", got)
	}
}

func TestFetchTopics(t *testing.T) {
	orch := newTestOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contexts" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"contexts":["returns","shipping","payment"],"total_contexts":3}`))
	}))

	topics := orch.fetchTopics()
	if len(topics) != 3 || topics[0] != "returns" {
		t.Fatalf("unexpected topics: %v", topics)
	}
}

func TestFetchTopicsFailureIsSilent(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	client := newQAClient(server.URL, time.Second, time.Second, zerolog.Nop())
	orch := newOrchestrator(newSession(), client, zerolog.Nop())
	server.Close()

	if topics := orch.fetchTopics(); topics != nil {
		t.Fatalf("expected nil topics on failure, got %v", topics)
	}
	if len(orch.session.all()) != 0 {
		t.Fatalf("topics failures must never land in the transcript")
	}
}
