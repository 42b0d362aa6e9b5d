package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"boardroom/internal/board"
	"boardroom/internal/channel"
	"boardroom/internal/config"
	"boardroom/internal/database"
	"boardroom/internal/middleware"
	"boardroom/internal/models"
	"boardroom/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()

	cfg := &config.Config{
		Server:         config.DefaultConfig(),
		Database:       config.DefaultDatabaseConfig(),
		Board:          config.DefaultBoardConfig(),
		AllowedOrigins: []string{"*"},
	}

	store := database.NewMemoryStore()
	broker := channel.NewBroker(cfg.Board)
	go broker.Run()
	t.Cleanup(broker.Stop)

	metrics := utils.NewMetricsCollector()
	commands := board.NewCommands(store, broker, cfg.Board, metrics)
	server := NewServer(commands, broker, store, metrics, cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HandleHealth())
	mux.HandleFunc("/board/posts", server.HandlePosts())
	mux.HandleFunc("/board/post", server.HandleDeletePost())
	mux.HandleFunc("/board/post/like", server.HandleToggleLike())
	mux.HandleFunc("/board/post/replies", server.HandleReplies())
	mux.HandleFunc("/board/presence", server.HandlePresence())

	return server, middleware.AuthMiddleware(mux)
}

func authedRequest(t *testing.T, method, target string, body interface{}, userID uuid.UUID, username string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	token, err := middleware.GenerateToken(userID, username)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestBoardHTTPFlow(t *testing.T) {
	_, handler := newTestServer(t)

	authorID := uuid.New()
	readerID := uuid.New()

	// Step 1: Create a post
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, "POST", "/board/posts", CreatePostRequest{
		Content:     "First post",
		ContentType: "announcement",
	}, authorID, "author"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var post models.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &post))
	assert.Equal(t, "First post", post.Content)
	assert.Equal(t, models.ContentAnnouncement, post.ContentType)
	assert.Equal(t, authorID, post.AuthorID)
	assert.Equal(t, "author", post.AuthorName)

	// Step 2: Reply to it
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, "POST", "/board/posts", CreatePostRequest{
		Content:  "First reply",
		ParentID: post.ID.String(),
	}, readerID, "reader"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var reply models.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, post.ID, *reply.ReplyTo)

	// Step 3: Like the post as the reader
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, "POST", "/board/post/like", ToggleLikeRequest{
		PostID: post.ID.String(),
	}, readerID, "reader"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var likeResult map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &likeResult))
	assert.Equal(t, true, likeResult["liked"])
	assert.Equal(t, float64(1), likeResult["likeCount"])

	// Step 4: Snapshot as the reader shows the like edge and reply count
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, "GET", "/board/posts", nil, readerID, "reader"))
	require.Equal(t, http.StatusOK, w.Code)

	var feed []*models.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &feed))
	require.Len(t, feed, 1)
	assert.Equal(t, 1, feed[0].LikeCount)
	assert.Equal(t, 1, feed[0].ReplyCount)
	assert.True(t, feed[0].ViewerHasLiked)

	// Step 5: Replies listing
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, "GET", "/board/post/replies?parentId="+post.ID.String(), nil, readerID, "reader"))
	require.Equal(t, http.StatusOK, w.Code)

	var replies []*models.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &replies))
	require.Len(t, replies, 1)
	assert.Equal(t, reply.ID, replies[0].ID)

	// Step 6: Only the author may delete
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, "DELETE", "/board/post", DeletePostRequest{
		PostID: post.ID.String(),
	}, readerID, "reader"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, "DELETE", "/board/post", DeletePostRequest{
		PostID: post.ID.String(),
	}, authorID, "author"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, "GET", "/board/posts", nil, readerID, "reader"))
	require.Equal(t, http.StatusOK, w.Code)
	feed = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &feed))
	assert.Len(t, feed, 0)
}

func TestBoardHTTPValidation(t *testing.T) {
	_, handler := newTestServer(t)
	userID := uuid.New()

	// Missing token
	req := httptest.NewRequest("GET", "/board/posts", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Garbage token
	req = httptest.NewRequest("GET", "/board/posts", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Empty content
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, "POST", "/board/posts", CreatePostRequest{Content: "  "}, userID, "user"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown content type
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, "POST", "/board/posts", CreatePostRequest{
		Content:     "hello",
		ContentType: "gif",
	}, userID, "user"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Liking a missing post is a stale reference
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, "POST", "/board/post/like", ToggleLikeRequest{
		PostID: uuid.New().String(),
	}, userID, "user"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Health stays open without a token
	req = httptest.NewRequest("GET", "/health", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
}

func TestBoardHTTPPresence(t *testing.T) {
	server, handler := newTestServer(t)

	userID := uuid.New()
	sub := server.Broker.Subscribe(server.Config.Board.DefaultTopic, userID, "alice")
	defer sub.Close()
	sub.Announce("online", "feed")

	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authedRequest(t, "GET", "/board/presence", nil, userID, "alice"))
		if w.Code != http.StatusOK {
			return false
		}
		var resp struct {
			OnlineCount int                     `json:"onlineCount"`
			Connections int                     `json:"connections"`
			Online      []*models.PresenceEntry `json:"online"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			return false
		}
		return resp.OnlineCount == 1 && resp.Connections == 1 &&
			len(resp.Online) == 1 && resp.Online[0].Username == "alice"
	}, 2*time.Second, 20*time.Millisecond)
}
