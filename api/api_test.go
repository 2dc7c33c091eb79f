package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/neilotoole/slogt"

	"github.com/edgeee/community/api/validator"
	"github.com/edgeee/community/community"
	"github.com/edgeee/community/identity"
	"github.com/edgeee/community/inmem"
)

var (
	alice = community.Principal{ID: "alice", DisplayName: "Alice", Role: community.RoleStudent}
	bob   = community.Principal{ID: "bob", DisplayName: "Bob", Role: community.RoleInstructor}
	carol = community.Principal{ID: "carol", DisplayName: "Carol", Role: community.RoleGuardian}
)

type testServer struct {
	*httptest.Server
	db     *inmem.DB
	store  *inmem.Store
	tokens *identity.Manager
}

// newTestServer serves an API backed by inmem with alice, bob and carol
// registered. Logs go to logs when it is set and to t otherwise.
func newTestServer(t *testing.T, logs *bytes.Buffer) *testServer {
	t.Helper()
	db := inmem.New()
	for _, u := range []community.Principal{alice, bob, carol} {
		if err := db.UpsertProfile(context.Background(), u); err != nil {
			t.Fatal(err)
		}
	}

	logger := slogt.New(t)
	if logs != nil {
		logger = slog.New(slog.NewTextHandler(logs, nil))
	}
	tokens := identity.NewManager("test-secret")
	store := inmem.NewStore("https://cdn.test/media")
	api := &API{
		Logger:  logger,
		DB:      db,
		Feed:    db,
		Content: store,
		Val:     validator.New(),
		Auth:    &identity.Middleware{Manager: tokens, Logger: logger, Public: []string{"/healthz"}},
	}

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, db: db, store: store, tokens: tokens}
}

func (s *testServer) token(t *testing.T, p community.Principal) string {
	t.Helper()
	tok, err := s.tokens.Generate(p, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

// do sends a request as user. A zero user sends no token.
func (s *testServer) do(t *testing.T, user community.Principal, method, path, contentType string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	if user.ID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, user))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) doJSON(t *testing.T, user community.Principal, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return s.do(t, user, method, path, "application/json", r)
}

func (s *testServer) post(t *testing.T, author community.Principal, body string) community.Post {
	t.Helper()
	p, err := s.db.InsertPost(context.Background(), community.Post{AuthorID: author.ID, Body: body})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("Could not decode body: %v", err)
	}
	return v
}

var ignoreGenerated = cmpopts.IgnoreFields(community.Post{}, "ID", "CreatedAt")

func TestAPI_healthz(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.doJSON(t, community.Principal{}, "GET", "/healthz", "")
	checkStatus(t, resp.StatusCode, 200)
	checkBody(t, resp, `{"status": "ok"}`)
}

func TestAPI_unauthenticated(t *testing.T) {
	s := newTestServer(t, nil)
	for _, path := range []string{"/feed", "/rooms", "/ws"} {
		resp := s.doJSON(t, community.Principal{}, "GET", path, "")
		checkStatus(t, resp.StatusCode, 401)
		checkBody(t, resp, `{"error": "Unauthenticated"}`)
	}
}

func TestAPI_createPost(t *testing.T) {
	tests := []struct {
		name        string
		req         string
		dbErr       error
		wantStatus  int
		wantBody    string
		wantPosts   int
		containsLog string
	}{
		{
			name:       "Blank",
			req:        `{"body": "  \n\t"}`,
			wantStatus: 204,
		},
		{
			name:       "InvalidJSON",
			req:        `{"body": `,
			wantStatus: 400,
			wantBody: `{
				"error": "Could not decode request body"
			}`,
		},
		{
			name:       "DBError",
			req:        `{"body": "hello"}`,
			dbErr:      errors.New("connection refused"),
			wantStatus: 500,
			wantBody: `{
				"error": "Could not create post"
			}`,
			containsLog: "Could not insert post",
		},
		{
			name:       "OK",
			req:        `{"body": "  hello  "}`,
			wantStatus: 201,
			wantPosts:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			s := newTestServer(t, buf)
			s.db.SetError("InsertPost", tt.dbErr)

			resp := s.doJSON(t, alice, "POST", "/posts", tt.req)
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			if tt.wantBody != "" {
				checkBody(t, resp, tt.wantBody)
			}
			checkLog(t, buf, tt.containsLog)

			posts, err := s.db.ListPosts(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if len(posts) != tt.wantPosts {
				t.Fatalf("Got %d posts, want %d", len(posts), tt.wantPosts)
			}
			if tt.wantStatus != 201 {
				return
			}
			got := decode[feedResponse](t, resp)
			want := []community.Post{{AuthorID: "alice", Body: "hello", Author: &alice}}
			if diff := cmp.Diff(want, got.Posts, ignoreGenerated); diff != "" {
				t.Errorf("Feed mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAPI_createPostImage(t *testing.T) {
	s := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("body", "sunset"); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("image", "Sunset.PNG")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("png-bytes"))
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	resp := s.do(t, alice, "POST", "/posts", mw.FormDataContentType(), &buf)
	checkStatus(t, resp.StatusCode, 201)

	got := decode[feedResponse](t, resp)
	if len(got.Posts) != 1 {
		t.Fatalf("Got %d posts, want 1", len(got.Posts))
	}
	url := got.Posts[0].ImageURL
	name, ok := strings.CutPrefix(url, "https://cdn.test/media/")
	if !ok || !strings.HasPrefix(name, "posts/alice/") || !strings.HasSuffix(name, ".png") {
		t.Fatalf("Unexpected image URL %q", url)
	}
	blob, ok := s.store.Get(name)
	if !ok {
		t.Fatalf("Image %q not uploaded", name)
	}
	if string(blob.Data) != "png-bytes" {
		t.Errorf("Got image data %q", blob.Data)
	}
}

func TestAPI_listFeed(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		s := newTestServer(t, nil)
		p1 := s.post(t, alice, "first")
		p2 := s.post(t, bob, "second")
		ctx := context.Background()
		_ = s.db.InsertLike(ctx, community.Like{PostID: p1.ID, UserID: "bob"})
		_ = s.db.InsertLike(ctx, community.Like{PostID: p1.ID, UserID: "carol"})
		_, _ = s.db.InsertComment(ctx, community.Comment{PostID: p1.ID, AuthorID: "alice", Body: "hi"})

		resp := s.doJSON(t, bob, "GET", "/feed", "")
		checkStatus(t, resp.StatusCode, 200)

		got := decode[feedResponse](t, resp)
		want := []community.Post{
			{ID: p2.ID, AuthorID: "bob", Body: "second", Author: &bob},
			{ID: p1.ID, AuthorID: "alice", Body: "first", Author: &alice, LikesCount: 2, CommentsCount: 1, IsLiked: true},
		}
		if diff := cmp.Diff(want, got.Posts, cmpopts.IgnoreFields(community.Post{}, "CreatedAt")); diff != "" {
			t.Errorf("Feed mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		s := newTestServer(t, nil)
		resp := s.doJSON(t, bob, "GET", "/feed", "")
		checkStatus(t, resp.StatusCode, 200)
		checkBody(t, resp, `{"posts": []}`)
	})

	t.Run("DBError", func(t *testing.T) {
		buf := &bytes.Buffer{}
		s := newTestServer(t, buf)
		s.post(t, alice, "first")
		s.db.SetError("CountComments", errors.New("timeout"))

		resp := s.doJSON(t, bob, "GET", "/feed", "")
		checkStatus(t, resp.StatusCode, 500)
		checkBody(t, resp, `{"error": "Could not load feed"}`)
		checkLog(t, buf, "timeout")
	})
}

func TestAPI_toggleLike(t *testing.T) {
	tests := []struct {
		name       string
		postID     string // replaced by the id of the seeded post when empty
		req        string
		wantStatus int
		wantBody   string
		wantLikes  int
	}{
		{
			name:       "InvalidPostID",
			postID:     "not-a-uuid",
			req:        `{"liked": false}`,
			wantStatus: 400,
			wantBody: `{
				"errors": [{"field": "postID", "message": "must be a UUID"}]
			}`,
		},
		{
			name:       "MissingLiked",
			req:        `{}`,
			wantStatus: 400,
			wantBody: `{
				"errors": [{"field": "liked", "message": "is required"}]
			}`,
		},
		{
			name:       "UnknownPost",
			postID:     "84bd9af7-79e6-4027-b284-9d5d875efd5b",
			req:        `{"liked": false}`,
			wantStatus: 404,
			wantBody: `{
				"error": "Not found"
			}`,
		},
		{
			name:       "Like",
			req:        `{"liked": false}`,
			wantStatus: 200,
			wantLikes:  1,
		},
		{
			name:       "UnlikeNotLiked",
			req:        `{"liked": true}`,
			wantStatus: 200,
			wantLikes:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			p := s.post(t, alice, "first")
			postID := tt.postID
			if postID == "" {
				postID = p.ID
			}

			resp := s.doJSON(t, bob, "POST", "/posts/"+postID+"/like", tt.req)
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			if tt.wantBody != "" {
				checkBody(t, resp, tt.wantBody)
				return
			}

			got := decode[feedResponse](t, resp)
			if len(got.Posts) != 1 {
				t.Fatalf("Got %d posts, want 1", len(got.Posts))
			}
			if got.Posts[0].LikesCount != tt.wantLikes || got.Posts[0].IsLiked != (tt.wantLikes == 1) {
				t.Errorf("Got likes %d liked %v, want %d", got.Posts[0].LikesCount, got.Posts[0].IsLiked, tt.wantLikes)
			}
		})
	}
}

func TestAPI_comments(t *testing.T) {
	s := newTestServer(t, nil)
	p := s.post(t, alice, "first")
	path := "/posts/" + p.ID + "/comments"

	resp := s.doJSON(t, bob, "POST", path, `{"body": "   "}`)
	checkStatus(t, resp.StatusCode, 204)

	resp = s.doJSON(t, bob, "POST", path, `{"body": " nice "}`)
	checkStatus(t, resp.StatusCode, 201)
	created := decode[commentsResponse](t, resp)

	resp = s.doJSON(t, carol, "POST", path, `{"body": "agreed"}`)
	checkStatus(t, resp.StatusCode, 201)

	resp = s.doJSON(t, alice, "GET", path, "")
	checkStatus(t, resp.StatusCode, 200)
	got := decode[commentsResponse](t, resp)

	ignore := cmpopts.IgnoreFields(community.Comment{}, "ID", "CreatedAt")
	want := []community.Comment{
		{PostID: p.ID, AuthorID: "bob", Body: "nice", Author: &bob},
		{PostID: p.ID, AuthorID: "carol", Body: "agreed", Author: &carol},
	}
	if diff := cmp.Diff(want[:1], created.Comments, ignore); diff != "" {
		t.Errorf("Created comments mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, got.Comments, ignore); diff != "" {
		t.Errorf("Comments mismatch (-want +got):\n%s", diff)
	}

	resp = s.doJSON(t, bob, "POST", "/posts/84bd9af7-79e6-4027-b284-9d5d875efd5b/comments", `{"body": "hello?"}`)
	checkStatus(t, resp.StatusCode, 404)
}

func TestAPI_createRoom(t *testing.T) {
	tests := []struct {
		name       string
		req        string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "MissingUser",
			req:        `{}`,
			wantStatus: 400,
			wantBody: `{
				"errors": [{"field": "user_id", "message": "is required"}]
			}`,
		},
		{
			name:       "BlankUser",
			req:        `{"user_id": "   "}`,
			wantStatus: 400,
			wantBody: `{
				"errors": [{"field": "user_id", "message": "must not be blank"}]
			}`,
		},
		{
			name:       "Self",
			req:        `{"user_id": "alice"}`,
			wantStatus: 400,
			wantBody: `{
				"error": "Cannot start a chat with yourself"
			}`,
		},
		{
			name:       "UnknownUser",
			req:        `{"user_id": "mallory"}`,
			wantStatus: 404,
			wantBody: `{
				"error": "Not found"
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			resp := s.doJSON(t, alice, "POST", "/rooms", tt.req)
			checkStatus(t, resp.StatusCode, tt.wantStatus)
			checkBody(t, resp, tt.wantBody)
		})
	}

	t.Run("Resume", func(t *testing.T) {
		type response struct {
			Room community.ChatRoom `json:"room"`
		}
		s := newTestServer(t, nil)

		resp := s.doJSON(t, alice, "POST", "/rooms", `{"user_id": "bob"}`)
		checkStatus(t, resp.StatusCode, 200)
		first := decode[response](t, resp)
		if first.Room.OtherUser == nil || first.Room.OtherUser.ID != "bob" {
			t.Errorf("Got other user %+v, want bob", first.Room.OtherUser)
		}

		resp = s.doJSON(t, bob, "POST", "/rooms", `{"user_id": "alice"}`)
		checkStatus(t, resp.StatusCode, 200)
		second := decode[response](t, resp)
		if second.Room.ID != first.Room.ID {
			t.Errorf("Got room %s, want resumed room %s", second.Room.ID, first.Room.ID)
		}

		resp = s.doJSON(t, bob, "GET", "/rooms", "")
		checkStatus(t, resp.StatusCode, 200)
		rooms := decode[roomsResponse](t, resp)
		if len(rooms.Rooms) != 1 || rooms.Rooms[0].OtherUser == nil || rooms.Rooms[0].OtherUser.ID != "alice" {
			t.Errorf("Got rooms %+v, want one room with alice", rooms.Rooms)
		}
	})
}

func TestAPI_messages(t *testing.T) {
	type roomResponse struct {
		Room community.ChatRoom `json:"room"`
	}
	s := newTestServer(t, nil)
	resp := s.doJSON(t, alice, "POST", "/rooms", `{"user_id": "bob"}`)
	checkStatus(t, resp.StatusCode, 200)
	roomID := decode[roomResponse](t, resp).Room.ID
	path := "/rooms/" + roomID + "/messages"

	resp = s.doJSON(t, alice, "POST", path, `{"body": ""}`)
	checkStatus(t, resp.StatusCode, 204)

	resp = s.doJSON(t, alice, "POST", path, `{"body": " hi bob "}`)
	checkStatus(t, resp.StatusCode, 202)
	checkBody(t, resp, `{"room_id": "`+roomID+`"}`)

	resp = s.doJSON(t, bob, "GET", path, "")
	checkStatus(t, resp.StatusCode, 200)
	got := decode[messagesResponse](t, resp)
	want := []community.ChatMessage{{RoomID: roomID, AuthorID: "alice", Body: "hi bob", Author: &alice}}
	if diff := cmp.Diff(want, got.Messages, cmpopts.IgnoreFields(community.ChatMessage{}, "ID", "CreatedAt")); diff != "" {
		t.Errorf("Messages mismatch (-want +got):\n%s", diff)
	}

	resp = s.doJSON(t, carol, "GET", path, "")
	checkStatus(t, resp.StatusCode, 403)
	checkBody(t, resp, `{"error": "Not a participant of the room"}`)

	resp = s.doJSON(t, carol, "POST", path, `{"body": "let me in"}`)
	checkStatus(t, resp.StatusCode, 403)
}

func TestAPI_registersViewer(t *testing.T) {
	s := newTestServer(t, nil)
	dave := community.Principal{ID: "dave", DisplayName: "Dave", Role: community.RoleAdmin}

	resp := s.doJSON(t, dave, "GET", "/feed", "")
	checkStatus(t, resp.StatusCode, 200)

	got, err := s.db.GetProfile(context.Background(), "dave")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(dave, got); diff != "" {
		t.Errorf("Profile mismatch (-want +got):\n%s", diff)
	}

	dave.DisplayName = "David"
	resp = s.doJSON(t, dave, "GET", "/feed", "")
	checkStatus(t, resp.StatusCode, 200)
	got, _ = s.db.GetProfile(context.Background(), "dave")
	if got.DisplayName != "David" {
		t.Errorf("Got display name %q after claims changed, want David", got.DisplayName)
	}
}

func checkStatus(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("Got HTTP status %d, want %d", got, want)
	}
}

func checkBody(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	gotBody := normalizeJSON(t, resp.Body)
	wantBody := normalizeJSON(t, bytes.NewReader([]byte(want)))
	if gotBody != wantBody {
		t.Errorf("Body does not match\nGot\n  %s\n\nWant\n  %s", gotBody, wantBody)
	}
}

func checkLog(t *testing.T, buffer *bytes.Buffer, want string) {
	t.Helper()

	if s := buffer.String(); want != "" && !strings.Contains(s, want) {
		t.Errorf("Log does not contain  %s\n", want)
	}
}

func normalizeJSON(t *testing.T, r io.Reader) string {
	t.Helper()
	var buf bytes.Buffer
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Could not read JSON: %v", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return ""
	}
	if err := json.Indent(&buf, b, "  ", "  "); err != nil {
		t.Fatalf("Could not indent JSON: %v", err)
	}
	return strings.TrimSpace(buf.String())
}
