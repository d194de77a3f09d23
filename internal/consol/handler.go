package consol

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler manages consolidation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers consolidation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/reports", h.generate)
	r.Get("/reports", h.listReports)
	r.Get("/reports/{id}", h.getReport)
}

type generateRequest struct {
	ReportType string  `json:"report_type" validate:"required,oneof=FINANCIAL_SUMMARY TRIAL_BALANCE"`
	Period     string  `json:"period"`
	Start      string  `json:"start" validate:"required"`
	End        string  `json:"end" validate:"required"`
	BranchIDs  []int64 `json:"branch_ids" validate:"required,min=1"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	start, err := time.Parse("2006-01-02", req.Start)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid start date")
		return
	}
	end, err := time.Parse("2006-01-02", req.End)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid end date")
		return
	}
	report, err := h.service.Generate(r.Context(), Input{
		ReportType: ReportType(req.ReportType),
		Period:     req.Period,
		Start:      start,
		End:        end,
		BranchIDs:  req.BranchIDs,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, report)
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.service.ListReports(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reports)
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid report id")
		return
	}
	report, err := h.service.GetReport(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrConsolidationFetch):
		httpx.Problem(w, http.StatusBadGateway, "Consolidation Fetch Failed", err.Error())
	case errors.Is(err, ErrReportNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("consolidation request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
