package flags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/beaconflags/beacon/internal/platform/httpx"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Handler exposes the flag management and evaluation API as JSON over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	evaluator *Evaluator
	validator *validator.Validate
}

// NewHandler constructs the flags HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, evaluator *Evaluator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		evaluator: evaluator,
		validator: validator.New(),
	}
}

// Evaluate answers GET /flags/evaluate?flag_name=&user_id=.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	flagName := r.URL.Query().Get("flag_name")
	userID := r.URL.Query().Get("user_id")
	if flagName == "" || userID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "flag_name and user_id are required")
		return
	}

	result, err := h.evaluator.Evaluate(r.Context(), flagName, userID)
	if err != nil {
		h.respondError(w, r, "evaluate flag", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateFlagRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	flag, err := h.service.CreateFlag(r.Context(), req)
	if err != nil {
		h.respondError(w, r, "create flag", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, flag)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	req := ListFlagsRequest{
		Skip:        queryInt(r, "skip", 0),
		Limit:       queryInt(r, "limit", defaultPageLimit),
		EnabledOnly: r.URL.Query().Get("enabled_only") == "true",
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	items, total, err := h.service.ListFlags(r.Context(), req)
	if err != nil {
		h.respondError(w, r, "list flags", err)
		return
	}
	if items == nil {
		items = []Flag{}
	}
	httpx.JSON(w, http.StatusOK, FlagListResponse{Items: items, Total: total})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.flagID(w, r)
	if !ok {
		return
	}
	flag, err := h.service.GetFlag(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get flag", err)
		return
	}
	httpx.JSON(w, http.StatusOK, flag)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.flagID(w, r)
	if !ok {
		return
	}
	var req UpdateFlagRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	flag, err := h.service.UpdateFlag(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, "update flag", err)
		return
	}
	httpx.JSON(w, http.StatusOK, flag)
}

func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.flagID(w, r)
	if !ok {
		return
	}
	var req ToggleFlagRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	flag, err := h.service.ToggleFlag(r.Context(), id, *req.IsEnabled)
	if err != nil {
		h.respondError(w, r, "toggle flag", err)
		return
	}
	httpx.JSON(w, http.StatusOK, flag)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.flagID(w, r)
	if !ok {
		return
	}
	flag, err := h.service.DeleteFlag(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "delete flag", err)
		return
	}
	httpx.JSON(w, http.StatusOK, MessageResponse{
		Detail: fmt.Sprintf("Feature flag %q deleted successfully", flag.Name),
	})
}

// SetOverride answers PUT /flags/{flagID}/users/{userID}: 201 when the
// override was created, 200 when an existing one was replaced.
func (h *Handler) SetOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := h.flagID(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")

	var req SetOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	override, created, err := h.service.SetOverride(r.Context(), id, userID, *req.IsEnabled)
	if err != nil {
		h.respondError(w, r, "set override", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, override)
}

func (h *Handler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := h.flagID(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")

	if err := h.service.DeleteOverride(r.Context(), id, userID); err != nil {
		h.respondError(w, r, "delete override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	id, ok := h.flagID(w, r)
	if !ok {
		return
	}
	req := ListOverridesRequest{
		Skip:  queryInt(r, "skip", 0),
		Limit: queryInt(r, "limit", defaultPageLimit),
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	items, total, err := h.service.ListOverrides(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, "list overrides", err)
		return
	}
	if items == nil {
		items = []Override{}
	}
	httpx.JSON(w, http.StatusOK, OverrideListResponse{Items: items, Total: total})
}

func (h *Handler) flagID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "flagID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Flag ID", "flag id must be a UUID")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrEmptyUpdate):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("field %s failed on %s", verrs[0].Field(), verrs[0].Tag())
	}
	return err.Error()
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
