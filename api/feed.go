package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/edgeee/community/community"
)

// maxImageSize is the largest image accepted with a post.
const maxImageSize = 10 << 20

func (a *API) listFeed(w http.ResponseWriter, r *http.Request) {
	c, err := a.client(r.Context(), nil)
	if err != nil {
		a.respondGatewayError(w, err, "Could not load feed")
		return
	}
	defer c.Close()

	if err := c.Feed.Load(r.Context()); err != nil {
		a.respondGatewayError(w, err, "Could not load feed")
		return
	}
	a.respond(w, http.StatusOK, feedResponse{Posts: c.Feed.Posts()})
}

// createPost accepts either a JSON body or a multipart form with a body
// field and an optional image file.
func (a *API) createPost(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Body string `json:"body"`
	}

	var (
		body request
		img  *community.Image
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxImageSize+1<<20)
		if err := r.ParseMultipartForm(maxImageSize); err != nil {
			a.respondError(w, http.StatusBadRequest, err, "Could not parse form")
			return
		}
		body.Body = r.FormValue("body")

		f, hdr, err := r.FormFile("image")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			a.respondError(w, http.StatusBadRequest, err, "Could not read image")
			return
		default:
			defer f.Close()
			data, err := io.ReadAll(f)
			if err != nil {
				a.respondError(w, http.StatusBadRequest, err, "Could not read image")
				return
			}
			img = &community.Image{
				Filename:    hdr.Filename,
				ContentType: hdr.Header.Get("Content-Type"),
				Data:        data,
			}
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
			return
		}
	}

	if community.Blank(body.Body) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	c, err := a.client(r.Context(), nil)
	if err != nil {
		a.respondGatewayError(w, err, "Could not create post")
		return
	}
	defer c.Close()

	if err := c.Feed.CreatePost(r.Context(), body.Body, img); err != nil {
		a.respondGatewayError(w, err, "Could not create post")
		return
	}
	a.respond(w, http.StatusCreated, feedResponse{Posts: c.Feed.Posts()})
}

// toggleLike flips the like of the viewer. The request carries the state
// the client currently shows.
func (a *API) toggleLike(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Liked *bool `json:"liked" validate:"required"`
	}

	postID, ok := a.validateID(w, r, "postID")
	if !ok {
		return
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
		a.respondGatewayError(w, err, "Could not toggle like")
		return
	}
	defer c.Close()

	if err := c.Feed.ToggleLike(r.Context(), postID, *body.Liked); err != nil {
		a.respondGatewayError(w, err, "Could not toggle like")
		return
	}
	a.respond(w, http.StatusOK, feedResponse{Posts: c.Feed.Posts()})
}

func (a *API) listComments(w http.ResponseWriter, r *http.Request) {
	postID, ok := a.validateID(w, r, "postID")
	if !ok {
		return
	}

	c, err := a.client(r.Context(), nil)
	if err != nil {
		a.respondGatewayError(w, err, "Could not list comments")
		return
	}
	defer c.Close()

	if err := c.Comments.OpenFor(r.Context(), postID); err != nil {
		a.respondGatewayError(w, err, "Could not list comments")
		return
	}
	a.respond(w, http.StatusOK, commentsResponse{PostID: postID, Comments: c.Comments.Comments()})
}

func (a *API) createComment(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Body string `json:"body"`
	}

	postID, ok := a.validateID(w, r, "postID")
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
		a.respondGatewayError(w, err, "Could not add comment")
		return
	}
	defer c.Close()

	if err := c.Comments.OpenFor(r.Context(), postID); err != nil {
		a.respondGatewayError(w, err, "Could not add comment")
		return
	}
	if err := c.Comments.AddComment(r.Context(), postID, body.Body); err != nil {
		a.respondGatewayError(w, err, "Could not add comment")
		return
	}
	a.respond(w, http.StatusCreated, commentsResponse{PostID: postID, Comments: c.Comments.Comments()})
}
