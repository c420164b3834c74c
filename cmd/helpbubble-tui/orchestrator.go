package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type askFailureClass string

const (
	failureServer       askFailureClass = "server"
	failureConnectivity askFailureClass = "connectivity"
)

// classifyAskFailure sorts an /ask failure into the two user-facing variants:
// an HTTP 500 means the service itself choked; every other failure mode
// (timeout, refused connection, unexpected status, garbage payload) is treated
// as a connectivity problem.
func classifyAskFailure(err error) askFailureClass {
	var statusErr *askStatusError
	if errors.As(err, &statusErr) && statusErr.status == http.StatusInternalServerError {
		return failureServer
	}
	return failureConnectivity
}

// orchestrator mediates one question -> one answer (or one synthesized error)
// against the shared session. All flag writes funnel through here and the
// health probe; nothing else mutates connectivity state.
type orchestrator struct {
	session *session
	client  *qaClient
	log     zerolog.Logger
	health  singleflight.Group
}

func newOrchestrator(session *session, client *qaClient, log zerolog.Logger) *orchestrator {
	return &orchestrator{session: session, client: client, log: log}
}

type submitOutcome struct {
	accepted bool
	userMsg  chatMessage
	reply    chatMessage
}

// submit runs one full exchange synchronously. An empty question or an
// in-flight exchange makes it a silent no-op. On acceptance the user message
// is appended before the network round-trip, so the transcript shows it
// regardless of how long the service takes to answer. loading is cleared via
// defer on every path, including panics inside the HTTP stack.
func (o *orchestrator) submit(question string) submitOutcome {
	q := strings.TrimSpace(question)
	if q == "" {
		return submitOutcome{}
	}
	if !o.session.beginSubmit() {
		return submitOutcome{}
	}
	defer o.session.endSubmit()

	userMsg, err := o.session.append(chatMessage{Text: q, Sender: senderUser})
	if err != nil {
		return submitOutcome{}
	}

	userID := "helpbubble-tui-" + uuid.NewString()
	started := time.Now()
	answer, err := o.client.ask(q, userID)
	if err != nil {
		class := classifyAskFailure(err)
		text := offlineErrorText
		if class == failureServer {
			text = serverErrorText
		}
		reply, _ := o.session.append(chatMessage{Text: text, Sender: senderAssistant, IsError: true})
		o.session.setConnected(false)
		o.log.Warn().
			Err(err).
			Str("class", string(class)).
			Dur("elapsed", time.Since(started)).
			Msg("ask failed")
		return submitOutcome{accepted: true, userMsg: userMsg, reply: reply}
	}

	confidence := answer.Confidence
	responseSec := answer.ResponseTime
	reply, _ := o.session.append(chatMessage{
		Text:        answer.Answer,
		Sender:      senderAssistant,
		Confidence:  &confidence,
		ResponseSec: &responseSec,
		ContextUsed: answer.ContextUsed,
	})
	// A successful exchange is itself evidence of reachability, even when the
	// last health probe said otherwise.
	o.session.setConnected(true)
	o.log.Info().
		Float64("confidence", answer.Confidence).
		Float64("response_time", answer.ResponseTime).
		Dur("elapsed", time.Since(started)).
		Msg("ask answered")
	return submitOutcome{accepted: true, userMsg: userMsg, reply: reply}
}

type healthReport struct {
	reachable   bool
	status      string
	modelName   string
	modelLoaded bool
	detail      string
}

// checkHealth probes the service and updates the connected flag. It never
// returns an error: failures only flip the flag and land in the log. The
// singleflight group collapses overlapping probes (startup, timer, manual)
// into one request.
func (o *orchestrator) checkHealth() healthReport {
	value, _, _ := o.health.Do("health", func() (any, error) {
		return o.probeHealth(), nil
	})
	report, _ := value.(healthReport)
	return report
}

func (o *orchestrator) probeHealth() healthReport {
	payload, err := o.client.checkHealth()
	if err != nil {
		o.session.setConnected(false)
		o.log.Warn().Err(err).Msg("health check failed")
		return healthReport{detail: err.Error()}
	}

	reachable := payload.Status == "healthy"
	o.session.setConnected(reachable)
	o.log.Info().
		Str("status", payload.Status).
		Bool("model_loaded", payload.ModelLoaded).
		Str("model", payload.ModelName).
		Msg("health check")
	return healthReport{
		reachable:   reachable,
		status:      payload.Status,
		modelName:   payload.ModelName,
		modelLoaded: payload.ModelLoaded,
	}
}

// fetchTopics asks the service which knowledge-base topics it covers. Purely
// informational; a failure leaves the topic strip empty.
func (o *orchestrator) fetchTopics() []string {
	topics, err := o.client.contexts()
	if err != nil {
		o.log.Warn().Err(err).Msg("contexts fetch failed")
		return nil
	}
	return topics
}

// bootstrap seeds the welcome message into an otherwise empty transcript.
func (o *orchestrator) bootstrap() chatMessage {
	msg, _ := o.session.append(chatMessage{Text: welcomeText, Sender: senderAssistant})
	return msg
}
