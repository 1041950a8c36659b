package handlers

import (
	"net/http"

	"github.com/Dosada05/bracket-automation/services"
)

type MatchHandler struct {
	matchService services.MatchService
}

func NewMatchHandler(ms services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: ms}
}

// GetHandler godoc
// @Summary Get a match
// @Tags matches
// @Produce json
// @Param matchID path int true "Match ID"
// @Success 200 {object} models.Match
// @Failure 404 {object} map[string]string
// @Router /matches/{matchID} [get]
func (h *MatchHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.GetMatch(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// StartHandler godoc
// @Summary Mark a ready match as ongoing
// @Tags matches
// @Produce json
// @Security BearerAuth
// @Param matchID path int true "Match ID"
// @Success 200 {object} models.Match
// @Failure 409 {object} map[string]string
// @Router /matches/{matchID}/start [post]
func (h *MatchHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.StartMatch(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ResultHandler godoc
// @Summary Record the result of a match
// @Description Stores the winner once and advances it through the bracket.
// @Tags matches
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param matchID path int true "Match ID"
// @Param input body services.RecordResultInput true "Result"
// @Success 200 {object} services.RecordResultOutcome
// @Failure 409 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /matches/{matchID}/result [post]
func (h *MatchHandler) ResultHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.RecordResultInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.matchService.RecordResult(r.Context(), id, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, outcome, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
