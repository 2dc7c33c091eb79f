package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/edgeee/community/community"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = wsPongWait * 9 / 10
	wsMaxFrameSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsConn serializes writes to a websocket. Frames are written from the read
// loop and from change feed deliveries.
type wsConn struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) send(f frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteJSON(f); err != nil {
		c.logger.Warn("Could not write frame", "type", f.Type, "error", err.Error())
	}
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (c *wsConn) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	_ = c.conn.Close()
}

func (c *wsConn) notice(err error, msg string) {
	c.logger.Error("Error", "error", err.Error())
	switch {
	case errors.Is(err, community.ErrNotParticipant):
		msg = "Not a participant of the room"
	case errors.Is(err, community.ErrSelfChat):
		msg = "Cannot start a chat with yourself"
	case errors.Is(err, community.ErrNotFound):
		msg = "Not found"
	}
	c.send(frame{Type: "notice", Error: msg})
}

// serveWS upgrades the request and serves one viewer for the lifetime of
// the connection. The live chat session pushes every message delivered to
// the open room as a message frame.
func (a *API) serveWS(w http.ResponseWriter, r *http.Request) {
	viewer, ok := community.PrincipalFrom(r.Context())
	if !ok {
		a.respondGatewayError(w, community.ErrUnauthenticated, "Unauthenticated")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Error("Could not upgrade connection", "error", err.Error())
		return
	}
	ws := &wsConn{conn: conn, logger: a.Logger.With("viewer_id", viewer.ID)}
	defer ws.close()

	onMessage := func(m community.ChatMessage) {
		ws.send(frame{Type: "message", RoomID: m.RoomID, Data: m})
	}
	// Commands run on a context that lives as long as the connection.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = community.WithPrincipal(ctx, viewer)

	c, err := a.client(ctx, onMessage)
	if err != nil {
		ws.notice(err, "Could not start session")
		return
	}
	defer c.Close()
	ws.logger.Info("Websocket connected")

	conn.SetReadLimit(wsMaxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ws.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		var cmd command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Warn("Websocket closed", "error", err.Error())
			}
			break
		}
		a.handleCommand(ctx, c, ws, cmd)
	}
	ws.logger.Info("Websocket disconnected")
}

func (a *API) handleCommand(ctx context.Context, c *community.Client, ws *wsConn, cmd command) {
	switch cmd.Type {
	case "load_feed":
		if err := c.Feed.Load(ctx); err != nil {
			ws.notice(err, "Could not load feed")
			return
		}
		ws.send(frame{Type: "feed", Data: c.Feed.Posts()})

	case "toggle_like":
		if !a.validWSID(ws, cmd.PostID, "post_id") {
			return
		}
		if err := c.Feed.ToggleLike(ctx, cmd.PostID, cmd.Liked); err != nil {
			ws.notice(err, "Could not toggle like")
			return
		}
		ws.send(frame{Type: "feed", Data: c.Feed.Posts()})

	case "open_comments":
		if !a.validWSID(ws, cmd.PostID, "post_id") {
			return
		}
		if err := c.Comments.OpenFor(ctx, cmd.PostID); err != nil {
			ws.notice(err, "Could not list comments")
			return
		}
		ws.send(frame{Type: "comments", PostID: cmd.PostID, Data: c.Comments.Comments()})

	case "close_comments":
		c.Comments.Close()

	case "add_comment":
		if !a.validWSID(ws, cmd.PostID, "post_id") || community.Blank(cmd.Body) {
			return
		}
		if open, _ := c.Comments.OpenPost(); open != cmd.PostID {
			if err := c.Comments.OpenFor(ctx, cmd.PostID); err != nil {
				ws.notice(err, "Could not add comment")
				return
			}
		}
		if err := c.Comments.AddComment(ctx, cmd.PostID, cmd.Body); err != nil {
			ws.notice(err, "Could not add comment")
			return
		}
		ws.send(frame{Type: "comments", PostID: cmd.PostID, Data: c.Comments.Comments()})
		ws.send(frame{Type: "feed", Data: c.Feed.Posts()})

	case "load_rooms":
		if err := c.Roster.Load(ctx); err != nil {
			ws.notice(err, "Could not list rooms")
			return
		}
		ws.send(frame{Type: "rooms", Data: c.Roster.Rooms()})

	case "start_chat":
		if errs := a.Val.Validate(cmd.UserID, "required,notblank"); len(errs) > 0 {
			ws.send(frame{Type: "notice", Error: "user_id " + errs[0].Message})
			return
		}
		room, err := c.StartChat(ctx, cmd.UserID)
		if err != nil {
			ws.notice(err, "Could not start chat")
			return
		}
		ws.send(frame{Type: "rooms", Data: c.Roster.Rooms()})
		ws.send(frame{Type: "messages", RoomID: room.ID, Data: c.Chat.Messages()})

	case "open_room":
		if !a.validWSID(ws, cmd.RoomID, "room_id") {
			return
		}
		if err := c.OpenRoom(ctx, cmd.RoomID); err != nil {
			ws.notice(err, "Could not open room")
			return
		}
		ws.send(frame{Type: "messages", RoomID: cmd.RoomID, Data: c.Chat.Messages()})

	case "close_room":
		c.CloseRoom()

	case "send_message":
		if !a.validWSID(ws, cmd.RoomID, "room_id") {
			return
		}
		if err := c.Chat.SendMessage(ctx, cmd.RoomID, cmd.Body); err != nil {
			ws.notice(err, "Could not send message")
		}

	default:
		ws.send(frame{Type: "notice", Error: "Unknown command " + cmd.Type})
	}
}

func (a *API) validWSID(ws *wsConn, id, field string) bool {
	if errs := a.Val.Validate(id, "required,uuid"); len(errs) > 0 {
		ws.send(frame{Type: "notice", Error: field + " " + errs[0].Message})
		return false
	}
	return true
}
