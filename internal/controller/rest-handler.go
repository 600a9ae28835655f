package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/partysync/internal/service/party"
	"github.com/sharetube/partysync/pkg/protocol"
	"github.com/sharetube/partysync/pkg/rest"
)

func (c controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	_, status := errorCode(err)
	if status == http.StatusInternalServerError {
		c.logger.ErrorContext(r.Context(), "request failed", "error", err)
	} else {
		c.logger.InfoContext(r.Context(), "request rejected", "error", err)
	}

	rest.WriteJSON(w, status, rest.Envelope{"error": errorMessage(err)})
}

type createPartyRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=32"`
}

type createPartyResponse struct {
	PartyId  string `json:"party_id"`
	MemberId string `json:"member_id"`
	Token    string `json:"token"`
}

func (c controller) createParty(w http.ResponseWriter, r *http.Request) {
	var req createPartyRequest
	if err := rest.ReadJSON(r, &req); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	resp, err := c.partyService.CreateParty(r.Context(), &party.CreatePartyParams{
		DisplayName: req.DisplayName,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": createPartyResponse{
		PartyId:  resp.PartyId,
		MemberId: resp.MemberId,
		Token:    resp.JWT,
	}})
}

type joinPartyRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=32"`
}

type joinPartyResponse struct {
	MemberId string            `json:"member_id"`
	Token    string            `json:"token"`
	Snapshot protocol.Snapshot `json:"snapshot"`
}

func (c controller) joinParty(w http.ResponseWriter, r *http.Request) {
	partyId := chi.URLParam(r, "party-id")

	var req joinPartyRequest
	if err := rest.ReadJSON(r, &req); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	resp, err := c.partyService.JoinParty(r.Context(), &party.JoinPartyParams{
		PartyId:     partyId,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": joinPartyResponse{
		MemberId: resp.MemberId,
		Token:    resp.JWT,
		Snapshot: resp.Snapshot,
	}})
}

// getState serves the recovery snapshot. Unknown parties are not an error:
// the snapshot reports exists=false.
func (c controller) getState(w http.ResponseWriter, r *http.Request) {
	snapshot, err := c.partyService.GetSnapshot(r.Context(), chi.URLParam(r, "party-id"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": snapshot})
}

type timeResponse struct {
	ServerNowMs int64 `json:"server_now_ms"`
}

func (c controller) getTime(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": timeResponse{
		ServerNowMs: c.partyService.ServerNowMs(),
	}})
}
