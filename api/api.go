package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/edgeee/community/api/validator"
	"github.com/edgeee/community/community"
)

// An Authenticator guards a handler and puts the principal of every
// accepted request in its context.
type Authenticator interface {
	Wrap(next http.Handler) http.Handler
}

// API provides the REST and websocket endpoints for the application.
type API struct {
	Logger  *slog.Logger
	DB      community.DB
	Cache   community.Cache
	Feed    community.ChangeFeed
	Content community.ContentStore
	Val     *validator.Validator
	Auth    Authenticator

	// FeedConcurrency bounds the number of posts enriched in parallel per
	// feed load.
	FeedConcurrency int

	registered sync.Map // user id -> community.Principal

	once    sync.Once
	mux     *http.ServeMux
	handler http.Handler
}

func (a *API) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.healthz)

	mux.HandleFunc("GET /feed", a.listFeed)
	mux.HandleFunc("POST /posts", a.createPost)
	mux.HandleFunc("POST /posts/{postID}/like", a.toggleLike)
	mux.HandleFunc("GET /posts/{postID}/comments", a.listComments)
	mux.HandleFunc("POST /posts/{postID}/comments", a.createComment)

	mux.HandleFunc("GET /rooms", a.listRooms)
	mux.HandleFunc("POST /rooms", a.createRoom)
	mux.HandleFunc("GET /rooms/{roomID}/messages", a.listMessages)
	mux.HandleFunc("POST /rooms/{roomID}/messages", a.sendMessage)

	mux.HandleFunc("GET /ws", a.serveWS)

	a.mux = mux
	a.handler = mux
	if a.Auth != nil {
		a.handler = a.Auth.Wrap(mux)
	}
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.handler.ServeHTTP(w, r)
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	a.Logger.Error("Error", "error", err.Error())
	a.respond(w, status, response{Error: msg})
}

// respondGatewayError answers a failed community operation. Sentinel errors
// get their own status, everything else is a 500 with msg as notice.
func (a *API) respondGatewayError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, community.ErrNotFound):
		a.respondError(w, http.StatusNotFound, err, "Not found")
	case errors.Is(err, community.ErrNotParticipant):
		a.respondError(w, http.StatusForbidden, err, "Not a participant of the room")
	case errors.Is(err, community.ErrSelfChat):
		a.respondError(w, http.StatusBadRequest, err, "Cannot start a chat with yourself")
	case errors.Is(err, community.ErrUnauthenticated):
		a.respondError(w, http.StatusUnauthorized, err, "Unauthenticated")
	default:
		a.respondError(w, http.StatusInternalServerError, err, msg)
	}
}

func (a *API) validateBody(w http.ResponseWriter, s interface{}) bool {
	errs := a.Val.ValidateStruct(s)
	type response struct {
		Errors []validator.ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return false
	}
	return true
}

// validateID checks that the path value name holds a UUID.
func (a *API) validateID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := r.PathValue(name)
	errs := a.Val.Validate(id, "required,uuid")
	type response struct {
		Errors []validator.ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		for i := range errs {
			errs[i].Field = name
		}
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return "", false
	}
	return id, true
}

// client returns the community components of the authenticated viewer. The
// viewer's profile is registered the first time it is seen, and again when
// its claims change.
func (a *API) client(ctx context.Context, onMessage func(community.ChatMessage)) (*community.Client, error) {
	viewer, ok := community.PrincipalFrom(ctx)
	if !ok {
		return nil, community.ErrUnauthenticated
	}

	c, err := community.NewClient(community.Config{
		Viewer:          viewer,
		DB:              a.DB,
		Cache:           a.Cache,
		Feed:            a.Feed,
		Content:         a.Content,
		Logger:          a.Logger,
		FeedConcurrency: a.FeedConcurrency,
		OnMessage:       onMessage,
	})
	if err != nil {
		return nil, err
	}

	if prev, ok := a.registered.Load(viewer.ID); !ok || prev.(community.Principal) != viewer {
		if err := c.Register(ctx); err != nil {
			c.Close()
			return nil, err
		}
		a.registered.Store(viewer.ID, viewer)
	}
	return c, nil
}

func (a *API) healthz(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	a.respond(w, http.StatusOK, response{Status: "ok"})
}
