package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Dosada05/bracket-automation/models"
	"github.com/Dosada05/bracket-automation/services"
)

type AutomationHandler struct {
	automationService services.AutomationService
}

func NewAutomationHandler(as services.AutomationService) *AutomationHandler {
	return &AutomationHandler{automationService: as}
}

// HealthCheckHandler godoc
// @Summary Audit ongoing double-elimination brackets for drift
// @Tags automation
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.HealthReport
// @Failure 503 {object} map[string]string
// @Router /automation/health-check [get]
func (h *AutomationHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.automationService.RunHealthCheck(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, report, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RepairHandler godoc
// @Summary Repair every drifted bracket
// @Tags automation
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.FixResult
// @Failure 503 {object} map[string]string
// @Router /automation/repair [post]
func (h *AutomationHandler) RepairHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.automationService.RunRepair(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RepairTournamentHandler godoc
// @Summary Repair one tournament
// @Description A structural conflict or an exhausted pass ceiling answers 409 with the attempted fix.
// @Tags automation
// @Produce json
// @Security BearerAuth
// @Param tournamentID path int true "Tournament ID"
// @Success 200 {object} models.TournamentFix
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]interface{}
// @Router /tournaments/{tournamentID}/repair [post]
func (h *AutomationHandler) RepairTournamentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	fix, err := h.automationService.RepairTournament(r.Context(), id)
	if err != nil {
		if fix != nil && (errors.Is(err, services.ErrAdvancementConflict) || errors.Is(err, services.ErrRepairExhausted)) {
			if werr := writeJSON(w, http.StatusConflict, jsonResponse{"error": err.Error(), "fix": fix}, nil); werr != nil {
				serverErrorResponse(w, r, werr)
			}
			return
		}
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, fix, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// StatusHandler godoc
// @Summary Automation monitor status of a tournament
// @Tags automation
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Success 200 {object} models.TournamentAutomationStatus
// @Failure 404 {object} map[string]string
// @Router /tournaments/{tournamentID}/automation/status [get]
func (h *AutomationHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	status, err := h.automationService.GetAutomationStatus(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, status, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// LogsHandler godoc
// @Summary Automation log of a tournament
// @Tags automation
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Param type query string false "advance_winner, repair or complete_tournament"
// @Param since query string false "RFC3339 timestamp"
// @Success 200 {array} models.AutomationLogEntry
// @Failure 400 {object} map[string]string
// @Router /tournaments/{tournamentID}/automation/logs [get]
func (h *AutomationHandler) LogsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	query := r.URL.Query()
	var since time.Time
	if raw := query.Get("since"); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequestResponse(w, r, fmt.Errorf("invalid since query parameter: %q", raw))
			return
		}
	}

	entries, err := h.automationService.ListAutomationLog(r.Context(), id, models.AutomationType(query.Get("type")), since)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"entries": entries}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
