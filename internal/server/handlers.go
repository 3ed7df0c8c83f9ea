package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/wolfeidau/wishroom/internal/models"
	"github.com/wolfeidau/wishroom/internal/service"
)

type accountRequest struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsPremium bool   `json:"is_premium"`
}

type switchRoomRequest struct {
	RoomID uuid.UUID `json:"room_id"`
}

type joinRequest struct {
	ExternalID int64  `json:"external_id"`
	Code       string `json:"code"`
}

type memberRequest struct {
	ExternalID int64 `json:"external_id"`
}

type activeRequest struct {
	ExternalID int64 `json:"external_id"`
	Active     bool  `json:"active"`
}

type tierRequest struct {
	Tier models.Tier `json:"tier"`
}

type wishRequest struct {
	ExternalID int64  `json:"external_id"`
	Text       string `json:"text"`
}

func (s *Server) upsertAccount(w http.ResponseWriter, r *http.Request) {
	externalID, err := pathExternalID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	acc, err := s.engine.UpsertAccount(r.Context(), service.AccountInput{
		ExternalID: externalID,
		Username:   req.Username,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		IsPremium:  req.IsPremium,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	externalID, err := pathExternalID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	acc, err := s.engine.GetAccount(r.Context(), externalID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	externalID, err := pathExternalID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rooms, err := s.engine.ListRooms(r.Context(), externalID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *Server) switchRoom(w http.ResponseWriter, r *http.Request) {
	externalID, err := pathExternalID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req switchRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	acc, err := s.engine.SwitchRoom(r.Context(), externalID, req.RoomID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRoomInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	room, err := s.engine.CreateRoom(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	room, err := s.engine.GetRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

func (s *Server) getRoomByCode(w http.ResponseWriter, r *http.Request) {
	room, err := s.engine.GetRoomByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	room, err := s.engine.JoinRoomByCode(r.Context(), req.ExternalID, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

func (s *Server) leaveRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req memberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.engine.LeaveRoom(r.Context(), roomID, req.ExternalID); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) touchActivity(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.engine.TouchActivity(r.Context(), roomID); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	externalID, err := queryExternalID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	deleted, err := s.engine.DeleteRoom(r.Context(), roomID, externalID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (s *Server) setRoomActive(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req activeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	room, err := s.engine.SetRoomActive(r.Context(), roomID, req.ExternalID, req.Active)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	members, err := s.engine.ListMembers(r.Context(), roomID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (s *Server) setTier(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req tierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	room, err := s.engine.SetTier(r.Context(), roomID, req.Tier)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

func (s *Server) addWish(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req wishRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	wish, err := s.engine.AddWish(r.Context(), roomID, req.ExternalID, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, wish)
}

// listWishes returns the caller's wishes when external_id is given, otherwise
// every wish in the room.
func (s *Server) listWishes(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathUUID(r, "roomID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var wishes []*models.Wish
	if r.URL.Query().Has("external_id") {
		externalID, perr := queryExternalID(r)
		if perr != nil {
			writeError(w, r, perr)
			return
		}
		wishes, err = s.engine.ListWishes(r.Context(), roomID, externalID)
	} else {
		wishes, err = s.engine.ListRoomWishes(r.Context(), roomID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"wishes": wishes})
}

func (s *Server) editWish(w http.ResponseWriter, r *http.Request) {
	wishID, err := pathUUID(r, "wishID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req wishRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	wish, err := s.engine.EditWish(r.Context(), wishID, req.ExternalID, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, wish)
}

func (s *Server) deleteWish(w http.ResponseWriter, r *http.Request) {
	wishID, err := pathUUID(r, "wishID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	externalID, err := queryExternalID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.engine.DeleteWish(r.Context(), wishID, externalID); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) runDeliveries(w http.ResponseWriter, r *http.Request) {
	report, err := s.deliveries.RunOnce(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
