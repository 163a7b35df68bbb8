package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/rl1809/half-order/internal/core/domain"
	"github.com/rl1809/half-order/internal/core/service"
)

const (
	headerActorID        = "X-Actor-ID"
	headerActorName      = "X-Actor-Name"
	headerActorRole      = "X-Actor-Role"
	headerIdempotencyKey = "Idempotency-Key"
)

type HTTPHandler struct {
	svc    service.HalfOrderService
	logger *slog.Logger
}

type CreateHTTPRequest struct {
	CustomerName    string `json:"customer_name"`
	CustomerContact string `json:"customer_contact"`
	MenuItemID      int64  `json:"menu_item_id"`
}

type JoinHTTPRequest struct {
	TableNo         string `json:"table_no"`
	CustomerName    string `json:"customer_name"`
	CustomerContact string `json:"customer_contact"`
	RequestID       string `json:"request_id"`
}

type Response struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	Data       any      `json:"data,omitempty"`
	SessionIDs []string `json:"session_ids,omitempty"`
}

func NewHTTPHandler(svc service.HalfOrderService, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{svc: svc, logger: logger.With("component", "http")}
}

func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/restaurants/{restaurantId}/tables/{tableNo}/half-orders", h.Create).Methods(http.MethodPost)
	api.HandleFunc("/restaurants/{restaurantId}/half-orders/active", h.ListActive).Methods(http.MethodGet)
	api.HandleFunc("/half-orders/{sessionId}", h.Get).Methods(http.MethodGet)
	api.HandleFunc("/half-orders/{sessionId}/join", h.Join).Methods(http.MethodPost)
	api.HandleFunc("/half-orders/{sessionId}", h.Cancel).Methods(http.MethodDelete)
}

// Router returns the routes wrapped in CORS handling.
//
// Caller identity is taken from the X-Actor-* headers as sent, and the role
// decides whether the customer cancel window applies. Deploy it only behind a
// gateway that authenticates the caller and overwrites those headers.
func (h *HTTPHandler) Router() http.Handler {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", headerActorID, headerActorName, headerActorRole, headerIdempotencyKey},
	})
	return c.Handler(r)
}

func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	restaurantID, err := strconv.ParseInt(vars["restaurantId"], 10, 64)
	if err != nil || restaurantID <= 0 {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid restaurant id"})
		return
	}

	var req CreateHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	session, err := h.svc.Create(r.Context(), service.CreateRequest{
		RestaurantID:    restaurantID,
		TableNo:         vars["tableNo"],
		CustomerName:    req.CustomerName,
		CustomerContact: req.CustomerContact,
		MenuItemID:      req.MenuItemID,
		Actor:           actorFromHeaders(r),
		SourceIP:        clientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "half order created",
		Data:    session,
	})
}

func (h *HTTPHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}
	if key := r.Header.Get(headerIdempotencyKey); key != "" {
		req.RequestID = key
	}

	result, err := h.svc.Join(r.Context(), service.JoinRequest{
		SessionID:       mux.Vars(r)["sessionId"],
		TableNo:         req.TableNo,
		CustomerName:    req.CustomerName,
		CustomerContact: req.CustomerContact,
		RequestID:       req.RequestID,
		Actor:           actorFromHeaders(r),
		SourceIP:        clientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "half order matched",
		Data:    result,
	})
}

func (h *HTTPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor := actorFromHeaders(r)
	if actor == nil {
		actor = &domain.Actor{Role: domain.RoleCustomer}
	}

	session, err := h.svc.Cancel(r.Context(), service.CancelRequest{
		SessionID: mux.Vars(r)["sessionId"],
		Actor:     *actor,
		Reason:    r.URL.Query().Get("reason"),
		SourceIP:  clientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "half order cancelled",
		Data:    session,
	})
}

func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Get(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok", Data: session})
}

func (h *HTTPHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := strconv.ParseInt(mux.Vars(r)["restaurantId"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid restaurant id"})
		return
	}

	sessions, err := h.svc.ListActive(r.Context(), restaurantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok", Data: sessions})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, _, message := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	resp := Response{Message: message}
	var conflict *service.ConflictError
	if errors.As(err, &conflict) {
		resp.SessionIDs = conflict.SessionIDs
	}
	writeJSON(w, status, resp)
}

// actorFromHeaders reads the identity a trusted gateway forwards. It
// returns nil when no role is present.
func actorFromHeaders(r *http.Request) *domain.Actor {
	role := strings.TrimSpace(r.Header.Get(headerActorRole))
	if role == "" {
		return nil
	}
	return &domain.Actor{
		ID:   r.Header.Get(headerActorID),
		Name: r.Header.Get(headerActorName),
		Role: domain.Role(strings.ToLower(role)),
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
