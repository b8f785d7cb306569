package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"

	"rig-vibration/assistant"
	"rig-vibration/models"
	"rig-vibration/utils"
)

const (
	maxRequestBytes = 1 << 20
	maxHistoryLimit = 500
)

type apiError struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Status          string `json:"status"`
	EngineAvailable bool   `json:"engineAvailable"`
}

type briefRequest struct {
	Inputs   models.FeatureVector `json:"inputs"`
	Question string               `json:"question,omitempty"`
}

type briefResponse struct {
	Briefing   string             `json:"briefing"`
	Prediction predictionResponse `json:"prediction"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

// decodeJSON reads a single JSON document, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newRouter(d *dashboard, socketServer http.Handler, staticDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(allowCORS)
		r.Use(middleware.Timeout(60 * time.Second))
		r.Get("/health", d.handleHealth)
		r.Get("/engine", d.handleEngineInfo)
		r.Post("/predict", d.handlePredict)
		r.Get("/predictions", d.handlePredictions)
		r.Post("/assistant/brief", d.handleBrief)
	})

	if socketServer != nil {
		r.Handle("/socket.io/*", socketServer)
	}
	r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	return r
}

func (d *dashboard) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", EngineAvailable: d.engine.Available()})
}

func (d *dashboard) handleEngineInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.engine.Info())
}

func (d *dashboard) handlePredict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := utils.GetLogger()

	if !d.engine.Available() {
		writeJSONError(w, http.StatusServiceUnavailable, "engine offline")
		return
	}

	var fv models.FeatureVector
	if err := decodeJSON(w, r, &fv); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid feature vector: %v", err))
		return
	}

	resp, err := d.predict(ctx, middleware.GetReqID(ctx), fv)
	if err != nil {
		status, message := predictionFailure(err)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(ctx, "prediction failed", slog.Any("error", xerrors.New(err)))
		}
		writeJSONError(w, status, message)
		return
	}

	logger.InfoContext(ctx, "prediction served",
		slog.String("id", resp.ID),
		slog.Float64("risk", resp.Assessment.RiskScore),
		slog.String("band", string(resp.Assessment.RiskBand)),
		slog.Bool("cached", resp.Prediction.Cached),
		slog.Float64("latency_ms", resp.LatencyMs))
	writeJSON(w, http.StatusOK, resp)
}

func (d *dashboard) handlePredictions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := d.history.ListPredictions(ctx, limit)
	if err != nil {
		utils.GetLogger().ErrorContext(ctx, "failed to load predictions", slog.Any("error", xerrors.New(err)))
		writeJSONError(w, http.StatusInternalServerError, "failed to load predictions")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (d *dashboard) handleBrief(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if d.assistant == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "assistant not configured")
		return
	}

	var req briefRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid briefing request: %v", err))
		return
	}

	resp, err := d.assess(ctx, req.Inputs)
	if err != nil {
		status, message := predictionFailure(err)
		writeJSONError(w, status, message)
		return
	}

	briefing, err := d.assistant.Brief(ctx, assistant.BriefingRequest{
		Inputs:     req.Inputs,
		Assessment: resp.Assessment,
		Question:   req.Question,
	})
	if err != nil {
		utils.GetLogger().ErrorContext(ctx, "briefing failed", slog.Any("error", xerrors.New(err)))
		writeJSONError(w, http.StatusBadGateway, "briefing failed")
		return
	}

	writeJSON(w, http.StatusOK, briefResponse{Briefing: briefing, Prediction: *resp})
}

func serve(protocol, port string) {
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	ctx := context.Background()
	d, cleanup := newDashboardFromEnv(ctx)
	defer cleanup()

	info := d.engine.Info()
	if info.Available {
		log.Printf("Prediction engine ready: %d trees, layout %s", info.Trees, info.Layout)
	} else {
		log.Printf("WARNING: prediction engine offline: %s", info.OfflineReason)
		log.Println("The dashboard will start but predictions are refused until artifacts are trained.")
	}

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})
	registerSocketHandlers(server, newSocketController(d))

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	router := newRouter(d, server, utils.GetEnv("STATIC_DIR", "static"))
	serveHTTP(protocol == "https", port, router)
}

func serveHTTP(serveHTTPS bool, port string, handler http.Handler) {
	addr := ":" + port
	if serveHTTPS {
		httpsServer := &http.Server{
			Addr: addr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		certKey := utils.GetEnv("CERT_KEY", "")
		certFile := utils.GetEnv("CERT_FILE", "")
		if certKey == "" || certFile == "" {
			log.Fatal("Missing cert: set CERT_FILE and CERT_KEY")
		}

		log.Printf("Starting HTTPS server on %s\n", addr)
		if err := httpsServer.ListenAndServeTLS(certFile, certKey); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
		return
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("Starting HTTP server on port %v", port)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
