package api

import (
	"encoding/json"
	"net/http"

	"github.com/edgeee/community/community"
)

func (a *API) listRooms(w http.ResponseWriter, r *http.Request) {
	c, err := a.client(r.Context(), nil)
	if err != nil {
		a.respondGatewayError(w, err, "Could not list rooms")
		return
	}
	defer c.Close()

	if err := c.Roster.Load(r.Context()); err != nil {
		a.respondGatewayError(w, err, "Could not list rooms")
		return
	}
	a.respond(w, http.StatusOK, roomsResponse{Rooms: c.Roster.Rooms()})
}

// createRoom returns the direct room with another user, creating it if
// needed.
func (a *API) createRoom(w http.ResponseWriter, r *http.Request) {
	type request struct {
		UserID string `json:"user_id" validate:"required,notblank"`
	}
	type response struct {
		Room community.ChatRoom `json:"room"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	if valid := a.validateBody(w, &body); !valid {
		return
	}

	c, err := a.client(r.Context(), nil)
	if err != nil {
		a.respondGatewayError(w, err, "Could not start chat")
		return
	}
	defer c.Close()

	room, err := c.Roster.StartOrResume(r.Context(), body.UserID)
	if err != nil {
		a.respondGatewayError(w, err, "Could not start chat")
		return
	}
	a.respond(w, http.StatusOK, response{Room: room})
}

// listMessages returns the history of a room. Live delivery is only
// available over the websocket.
func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	roomID, ok := a.validateID(w, r, "roomID")
	if !ok {
		return
	}

	c, err := a.client(r.Context(), nil)
	if err != nil {
		a.respondGatewayError(w, err, "Could not list messages")
		return
	}
	defer c.Close()

	if err := c.Chat.Open(r.Context(), roomID); err != nil {
		a.respondGatewayError(w, err, "Could not list messages")
		return
	}
	a.respond(w, http.StatusOK, messagesResponse{RoomID: roomID, Messages: c.Chat.Messages()})
}

// sendMessage inserts a message. The message reaches the room, sender
// included, through the change feed.
func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Body string `json:"body"`
	}
	type response struct {
		RoomID string `json:"room_id"`
	}

	roomID, ok := a.validateID(w, r, "roomID")
	if !ok {
		return
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	if community.Blank(body.Body) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	c, err := a.client(r.Context(), nil)
	if err != nil {
		a.respondGatewayError(w, err, "Could not send message")
		return
	}
	defer c.Close()

	if err := c.Chat.SendMessage(r.Context(), roomID, body.Body); err != nil {
		a.respondGatewayError(w, err, "Could not send message")
		return
	}
	a.respond(w, http.StatusAccepted, response{RoomID: roomID})
}
