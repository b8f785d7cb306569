package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"strings"
	"sync"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"

	"rig-vibration/assistant"
	"rig-vibration/models"
	"rig-vibration/utils"
)

// socketConn is the part of socketio.Conn the handlers use.
type socketConn interface {
	ID() string
	Emit(eventName string, v ...interface{})
	Context() interface{}
	SetContext(ctx interface{})
}

// session is the per-connection state. Inputs edited by one operator
// never leak into another connection.
type session struct {
	mu         sync.Mutex
	id         string
	inputs     models.FeatureVector
	last       *predictionResponse
	lastInputs models.FeatureVector
}

type socketController struct {
	dashboard *dashboard
}

func newSocketController(d *dashboard) *socketController {
	return &socketController{dashboard: d}
}

func registerSocketHandlers(server *socketio.Server, controller *socketController) {
	server.OnConnect("/", func(socket socketio.Conn) error {
		controller.handleConnect(socket)
		log.Printf("CONNECTED: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		return nil
	})

	server.OnEvent("/", "requestEngineInfo", func(socket socketio.Conn) {
		controller.emitEngineInfo(socket)
	})

	server.OnEvent("/", "updateInputs", func(socket socketio.Conn, msg string) {
		controller.handleUpdateInputs(socket, msg)
	})

	server.OnEvent("/", "predict", func(socket socketio.Conn, msg string) {
		// Run handler in goroutine to prevent blocking, with panic recovery
		go func() {
			defer recoverSocket(socket, "predictionError")
			controller.handlePredict(socket, msg)
		}()
	})

	server.OnEvent("/", "askAssistant", func(socket socketio.Conn, msg string) {
		go func() {
			defer recoverSocket(socket, "assistantError")
			controller.handleAskAssistant(socket, msg)
		}()
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})
}

func recoverSocket(socket socketConn, event string) {
	if r := recover(); r != nil {
		log.Printf("panic in socket handler for %s: %v\n", socket.ID(), r)
		socket.Emit(event, map[string]string{"message": "internal server error during processing"})
	}
}

func (c *socketController) handleConnect(socket socketConn) {
	socket.SetContext(&session{id: utils.GenerateUniqueID()})
	c.emitEngineInfo(socket)
}

func sessionOf(socket socketConn) *session {
	if s, ok := socket.Context().(*session); ok {
		return s
	}
	s := &session{id: utils.GenerateUniqueID()}
	socket.SetContext(s)
	return s
}

func (c *socketController) emitEngineInfo(socket socketConn) {
	socket.Emit("engineInfo", c.dashboard.engine.Info())
}

// applyInputs decodes msg over the session's current inputs, so a partial
// object only changes the fields it names.
func (s *session) applyInputs(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return nil
	}
	updated := s.inputs
	dec := json.NewDecoder(strings.NewReader(msg))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&updated); err != nil {
		return err
	}
	s.inputs = updated
	return nil
}

func (c *socketController) handleUpdateInputs(socket socketConn, msg string) {
	s := sessionOf(socket)
	s.mu.Lock()
	err := s.applyInputs(msg)
	inputs := s.inputs
	s.mu.Unlock()

	if err != nil {
		socket.Emit("inputsError", map[string]string{"message": "invalid inputs"})
		return
	}
	socket.Emit("inputsUpdated", inputs)
}

func (c *socketController) handlePredict(socket socketConn, msg string) {
	logger := utils.GetLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := sessionOf(socket)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !c.dashboard.engine.Available() {
		socket.Emit("predictionError", map[string]string{"message": "engine offline"})
		return
	}
	if err := s.applyInputs(msg); err != nil {
		socket.Emit("predictionError", map[string]string{"message": "invalid inputs"})
		return
	}

	resp, err := c.dashboard.predict(ctx, s.id, s.inputs)
	if err != nil {
		_, message := predictionFailure(err)
		logger.ErrorContext(ctx, "socket prediction failed",
			slog.String("socketID", socket.ID()),
			slog.Any("error", xerrors.New(err)))
		socket.Emit("predictionError", map[string]string{"message": message})
		return
	}

	s.last, s.lastInputs = resp, s.inputs
	logger.InfoContext(ctx, "emitting prediction",
		slog.String("socketID", socket.ID()),
		slog.String("id", resp.ID),
		slog.String("band", string(resp.Assessment.RiskBand)))
	socket.Emit("prediction", resp)
}

func (c *socketController) handleAskAssistant(socket socketConn, question string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if c.dashboard.assistant == nil {
		socket.Emit("assistantError", map[string]string{"message": "assistant not configured"})
		return
	}

	s := sessionOf(socket)
	s.mu.Lock()
	last, inputs := s.last, s.lastInputs
	s.mu.Unlock()

	if last == nil {
		socket.Emit("assistantError", map[string]string{"message": "run a prediction first"})
		return
	}

	req := assistant.BriefingRequest{Inputs: inputs, Assessment: last.Assessment, Question: question}
	err := c.dashboard.assistant.BriefStream(ctx, req, func(chunk string) error {
		socket.Emit("assistantChunk", chunk)
		return nil
	})
	if err != nil {
		utils.GetLogger().ErrorContext(ctx, "assistant stream failed",
			slog.String("socketID", socket.ID()),
			slog.Any("error", xerrors.New(err)))
		socket.Emit("assistantError", map[string]string{"message": "briefing failed"})
		return
	}
	socket.Emit("assistantDone", map[string]string{"predictionId": last.ID})
}
