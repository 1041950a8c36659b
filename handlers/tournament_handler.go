package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/bracket-automation/models"
	"github.com/Dosada05/bracket-automation/services"
)

type TournamentHandler struct {
	tournamentService services.TournamentService
	matchService      services.MatchService
}

func NewTournamentHandler(ts services.TournamentService, ms services.MatchService) *TournamentHandler {
	return &TournamentHandler{
		tournamentService: ts,
		matchService:      ms,
	}
}

type startTournamentRequest struct {
	Seeds []int `json:"seeds"`
}

// CreateHandler godoc
// @Summary Create a tournament
// @Tags tournaments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body services.CreateTournamentInput true "Tournament"
// @Success 201 {object} models.Tournament
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /tournaments [post]
func (h *TournamentHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var input services.CreateTournamentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.CreateTournament(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByIDHandler godoc
// @Summary Get a tournament
// @Tags tournaments
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Success 200 {object} models.Tournament
// @Failure 404 {object} map[string]string
// @Router /tournaments/{tournamentID} [get]
func (h *TournamentHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.GetTournament(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler godoc
// @Summary List tournaments
// @Tags tournaments
// @Produce json
// @Param status query string false "Status filter"
// @Param bracket_type query string false "Bracket type filter"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset"
// @Success 200 {array} models.Tournament
// @Router /tournaments [get]
func (h *TournamentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	var input services.ListTournamentsInput
	query := r.URL.Query()

	if statusStr := query.Get("status"); statusStr != "" {
		status := models.TournamentStatus(statusStr)
		if !status.Valid() {
			badRequestResponse(w, r, errors.New("invalid status query parameter"))
			return
		}
		input.Status = &status
	}
	if typeStr := query.Get("bracket_type"); typeStr != "" {
		bt := models.BracketType(typeStr)
		if !bt.Valid() {
			badRequestResponse(w, r, errors.New("invalid bracket_type query parameter"))
			return
		}
		input.BracketType = &bt
	}

	var err error
	if input.Limit, err = queryInt(r, "limit", 20, 1); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Offset, err = queryInt(r, "offset", 0, 0); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournaments, err := h.tournamentService.ListTournaments(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": tournaments}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CloseRegistrationHandler godoc
// @Summary Close registration
// @Tags tournaments
// @Produce json
// @Security BearerAuth
// @Param tournamentID path int true "Tournament ID"
// @Success 200 {object} models.Tournament
// @Failure 409 {object} map[string]string
// @Router /tournaments/{tournamentID}/close-registration [post]
func (h *TournamentHandler) CloseRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.CloseRegistration(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// StartHandler godoc
// @Summary Start a tournament with the given seeds
// @Description Seeds are player ids in seed order; they are paired into round one.
// @Tags tournaments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tournamentID path int true "Tournament ID"
// @Param input body startTournamentRequest true "Seeds"
// @Success 200 {object} services.BracketView
// @Failure 409 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /tournaments/{tournamentID}/start [post]
func (h *TournamentHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input startTournamentRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.tournamentService.StartTournament(r.Context(), id, input.Seeds)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, view, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// BracketHandler godoc
// @Summary Get the bracket of a tournament
// @Tags tournaments
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Success 200 {object} services.BracketView
// @Failure 404 {object} map[string]string
// @Router /tournaments/{tournamentID}/bracket [get]
func (h *TournamentHandler) BracketHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.tournamentService.GetBracket(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, view, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListMatchesHandler godoc
// @Summary List the matches of a tournament
// @Tags matches
// @Produce json
// @Param tournamentID path int true "Tournament ID"
// @Success 200 {array} models.Match
// @Router /tournaments/{tournamentID}/matches [get]
func (h *TournamentHandler) ListMatchesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	matches, err := h.matchService.ListMatchesByTournament(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
