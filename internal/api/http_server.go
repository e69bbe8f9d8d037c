package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fitbook/internal/booking"
	"fitbook/internal/config"
	"fitbook/internal/database"
	"fitbook/internal/events"
	"fitbook/internal/export"
	"fitbook/internal/metrics"
	"fitbook/internal/models"
	"fitbook/internal/recommend"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPServer exposes the booking and recommendation operations over JSON.
type HTTPServer struct {
	cfg       config.APIConfig
	db        *database.DB
	trainings *booking.TrainingService
	engine    *recommend.Engine
	exporter  *export.Exporter
	mirror    *export.SheetsMirror
	bus       *events.EventBus
	server    *http.Server
	auth      *HTTPAuth
	logger    *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, db *database.DB, trainings *booking.TrainingService, engine *recommend.Engine, exporter *export.Exporter, mirror *export.SheetsMirror, bus *events.EventBus, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:       cfg,
		db:        db,
		trainings: trainings,
		engine:    engine,
		exporter:  exporter,
		mirror:    mirror,
		bus:       bus,
		logger:    logger,
	}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/trainings", srv.handleTrainings)
	mux.HandleFunc("/api/v1/trainings/", srv.handleTraining)
	mux.HandleFunc("/api/v1/schedules/windows", srv.handleScheduleWindows)
	mux.HandleFunc("/api/v1/recommendations/", srv.handleRecommendations)
	mux.HandleFunc("/api/v1/clients/", srv.handleClients)
	mux.HandleFunc("/api/v1/exports/schedule", srv.handleExportSchedule)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the full middleware chain, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

type trainingRequest struct {
	TrainerID *int64   `json:"trainer_id"`
	RoomID    *int64   `json:"room_id"`
	Price     *float64 `json:"price"`
	Type      *string  `json:"type"`
	ClientIDs *[]int64 `json:"client_ids"`
}

type windowRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (s *HTTPServer) handleTrainings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body trainingRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.TrainerID == nil || body.RoomID == nil || body.Type == nil {
		writeError(w, http.StatusBadRequest, "trainer_id, room_id and type are required")
		return
	}

	training := &models.Training{
		TrainerID: *body.TrainerID,
		RoomID:    *body.RoomID,
		Type:      *body.Type,
	}
	if body.Price != nil {
		training.Price = *body.Price
	}
	if body.ClientIDs != nil {
		training.ClientIDs = *body.ClientIDs
	}

	if err := s.trainings.Create(r.Context(), training); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, training)
}

func (s *HTTPServer) handleTraining(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/trainings/"), "/")
	parts := strings.Split(rest, "/")

	trainingID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid training id")
		return
	}

	switch {
	case len(parts) == 1:
		s.handleTrainingRoot(w, r, trainingID)
	case len(parts) == 2 && parts[1] == "cancel":
		s.handleTrainingCancel(w, r, trainingID)
	case len(parts) == 2 && parts[1] == "complete":
		s.handleTrainingComplete(w, r, trainingID)
	case len(parts) == 2 && parts[1] == "window":
		s.handleTrainingWindow(w, r, trainingID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleTrainingRoot(w http.ResponseWriter, r *http.Request, trainingID int64) {
	switch r.Method {
	case http.MethodGet:
		training, err := s.db.GetTraining(r.Context(), trainingID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		window, err := s.db.WindowForTraining(r.Context(), trainingID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"training": training, "window": window})

	case http.MethodPatch:
		var body trainingRequest
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		training, err := s.db.GetTraining(r.Context(), trainingID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		if body.TrainerID != nil {
			training.TrainerID = *body.TrainerID
		}
		if body.RoomID != nil {
			training.RoomID = *body.RoomID
		}
		if body.Price != nil {
			training.Price = *body.Price
		}
		if body.Type != nil {
			training.Type = *body.Type
		}
		if body.ClientIDs != nil {
			training.ClientIDs = *body.ClientIDs
		}

		if err := s.trainings.Update(r.Context(), training); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, training)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleTrainingCancel(w http.ResponseWriter, r *http.Request, trainingID int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		ClientID *int64 `json:"client_id"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := s.trainings.Cancel(r.Context(), trainingID, body.ClientID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.StatusCancelled})
}

func (s *HTTPServer) handleTrainingComplete(w http.ResponseWriter, r *http.Request, trainingID int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.trainings.Complete(r.Context(), trainingID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.StatusCompleted})
}

func (s *HTTPServer) handleTrainingWindow(w http.ResponseWriter, r *http.Request, trainingID int64) {
	switch r.Method {
	case http.MethodPost:
		var body windowRequest
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		window := &models.Window{
			DayOfWeek: body.DayOfWeek,
			StartTime: body.StartTime,
			EndTime:   body.EndTime,
		}
		if err := s.trainings.AttachWindow(r.Context(), trainingID, window); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, window)

	case http.MethodDelete:
		if err := s.trainings.DetachWindow(r.Context(), trainingID); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleScheduleWindows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		windowRequest
		ScheduleIDs []int64 `json:"schedule_ids"`
		TrainingID  *int64  `json:"training_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	window := &models.Window{
		DayOfWeek: body.DayOfWeek,
		StartTime: body.StartTime,
		EndTime:   body.EndTime,
	}
	if err := s.trainings.PlaceWindow(r.Context(), window, body.ScheduleIDs, body.TrainingID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, window)
}

func (s *HTTPServer) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/recommendations/"), "/")
	parts := strings.Split(rest, "/")

	clientID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client id")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		list, err := s.engine.Get(r.Context(), clientID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.engine.Invalidate(r.Context(), clientID); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case len(parts) == 2 && parts[1] == "recompute" && r.Method == http.MethodPost:
		list, err := s.engine.Recompute(r.Context(), clientID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleClients(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/clients/"), "/")
	parts := strings.Split(rest, "/")

	clientID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client id")
		return
	}
	if len(parts) != 2 || r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch parts[1] {
	case "location":
		var addr models.Address
		if err := decodeJSON(r, &addr); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.db.UpdateClientLocation(r.Context(), clientID, addr); err != nil {
			writeDomainError(w, err)
			return
		}
		s.publishClientEvent(events.EventClientLocationChanged, clientID)
		w.WriteHeader(http.StatusNoContent)

	case "preferences":
		var prefs models.Preferences
		if err := decodeJSON(r, &prefs); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, trainingType := range prefs.TrainingTypes {
			if !models.IsTrainingType(trainingType) {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown training type: %s", trainingType))
				return
			}
		}
		if err := s.db.UpdateClientPreferences(r.Context(), clientID, prefs); err != nil {
			writeDomainError(w, err)
			return
		}
		s.publishClientEvent(events.EventClientPreferencesChanged, clientID)
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleExportSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	path, err := s.exporter.ExportToExcel(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	mirrored := false
	if s.mirror != nil {
		grid, err := s.exporter.BuildGrid(r.Context())
		if err == nil {
			err = s.mirror.MirrorSchedule(r.Context(), grid)
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("sheets mirror failed")
		} else {
			mirrored = true
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"file_path": path, "mirrored": mirrored})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) publishClientEvent(eventType string, clientID int64) {
	if err := s.bus.PublishJSON(eventType, events.ClientEventPayload{ClientID: clientID}); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("x-request-id"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("x-request-id", requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		metrics.IncHTTP(endpointLabel(r.URL.Path))
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

// endpointLabel keeps metric cardinality flat by dropping ids from paths.
func endpointLabel(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	if rest == path {
		return path
	}
	if idx := strings.IndexByte(rest, '/'); idx > 0 {
		return rest[:idx]
	}
	return rest
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFromError(err), err.Error())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
