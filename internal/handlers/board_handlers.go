package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"boardroom/internal/middleware"
	"boardroom/internal/models"
	"boardroom/internal/presence"
	"boardroom/internal/utils"

	"github.com/google/uuid"
)

// CreatePostRequest represents a request to create a post or a reply. A
// non-empty parentId makes it a reply; replies inherit the parent's topic.
type CreatePostRequest struct {
	Topic       string `json:"topic,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"contentType,omitempty"`
	ParentID    string `json:"parentId,omitempty"`
}

// ToggleLikeRequest represents a request to flip the caller's like on a post
type ToggleLikeRequest struct {
	PostID string `json:"postId"`
}

// DeletePostRequest represents a request to delete a post the caller authored
type DeletePostRequest struct {
	Topic  string `json:"topic,omitempty"`
	PostID string `json:"postId"`
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		topic := s.topicOrDefault(r.URL.Query().Get("topic"))
		roster := presence.NewRoster()
		roster.Load(s.Broker.Roster(topic))

		response := map[string]interface{}{
			"status":       "healthy",
			"topic":        topic,
			"online_users": roster.OnlineCount(),
			"connections":  roster.Size(),
			"uptime":       s.Metrics.Uptime().String(),
			"server_time":  time.Now(),
		}
		if s.Config.Server.MetricsEnabled {
			response["operations"] = s.Metrics.Snapshot()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// HandlePosts handles the board feed: POST creates a post or reply, GET
// returns the authoritative snapshot clients reconcile against.
func (s *Server) HandlePosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			s.handleCreatePost(w, r)
		case http.MethodGet:
			s.handleGetSnapshot(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := s.identity(w, r)
	if !ok {
		return
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	var created *models.Post
	var err error
	if req.ParentID != "" {
		parentID, parseErr := uuid.Parse(req.ParentID)
		if parseErr != nil {
			http.Error(w, "Invalid parentId format", http.StatusBadRequest)
			return
		}
		created, err = s.Commands.CreateReply(ctx, parentID, userID, username, req.Content)
	} else {
		topic := s.topicOrDefault(req.Topic)
		created, err = s.Commands.CreatePost(ctx, topic, userID, username, req.Content, models.ContentType(req.ContentType))
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.Metrics.IncrementRequests()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.identity(w, r)
	if !ok {
		return
	}

	topic := s.topicOrDefault(r.URL.Query().Get("topic"))

	ctx, cancel := s.requestContext(r)
	defer cancel()

	posts, err := s.Commands.Snapshot(ctx, topic, userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.Metrics.IncrementRequests()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(posts)
}

// HandleDeletePost handles author-only post deletion. Deleting a post that is
// already gone succeeds.
func (s *Server) HandleDeletePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID, _, ok := s.identity(w, r)
		if !ok {
			return
		}

		var req DeletePostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request format", http.StatusBadRequest)
			return
		}

		postID, err := uuid.Parse(req.PostID)
		if err != nil {
			http.Error(w, "Invalid postId format", http.StatusBadRequest)
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		if err := s.Commands.DeletePost(ctx, s.topicOrDefault(req.Topic), postID, userID); err != nil {
			s.writeError(w, err)
			return
		}

		s.Metrics.IncrementRequests()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&models.StatusResponse{Success: true, Message: "Post deleted"})
	}
}

// HandleToggleLike flips the caller's like edge and returns the durable
// outcome. The optimistic flip-then-settle path belongs to live clients;
// plain HTTP callers get the settled result directly.
func (s *Server) HandleToggleLike() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID, _, ok := s.identity(w, r)
		if !ok {
			return
		}

		var req ToggleLikeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request format", http.StatusBadRequest)
			return
		}

		postID, err := uuid.Parse(req.PostID)
		if err != nil {
			http.Error(w, "Invalid postId format", http.StatusBadRequest)
			return
		}

		topic := s.topicOrDefault(r.URL.Query().Get("topic"))

		ctx, cancel := s.requestContext(r)
		defer cancel()

		liked, likeCount, err := s.Commands.ToggleLike(ctx, topic, postID, userID)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.Metrics.IncrementRequests()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"postId":    postID,
			"liked":     liked,
			"likeCount": likeCount,
		})
	}
}

// HandleReplies returns the replies under a top-level post, oldest first.
func (s *Server) HandleReplies() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID, _, ok := s.identity(w, r)
		if !ok {
			return
		}

		parentID, err := uuid.Parse(r.URL.Query().Get("parentId"))
		if err != nil {
			http.Error(w, "Invalid parentId format", http.StatusBadRequest)
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		replies, err := s.Commands.FetchReplies(ctx, parentID, userID)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.Metrics.IncrementRequests()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(replies)
	}
}

// HandlePresence returns who is on the board right now, deduplicated by user
// for display, plus the raw connection count.
func (s *Server) HandlePresence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		topic := s.topicOrDefault(r.URL.Query().Get("topic"))

		roster := presence.NewRoster()
		roster.Load(s.Broker.Roster(topic))

		s.Metrics.IncrementRequests()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"topic":       topic,
			"online":      roster.Online(),
			"onlineCount": roster.OnlineCount(),
			"connections": roster.Size(),
		})
	}
}

// identity pulls the authenticated user out of the request context.
func (s *Server) identity(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok || userID == uuid.Nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return uuid.Nil, "", false
	}
	return userID, middleware.GetUsernameFromContext(r.Context()), true
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.RequestTimeout)
}

// writeError maps an application error onto the HTTP surface.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.Metrics.IncrementErrors()

	status := http.StatusInternalServerError
	if appErr, ok := err.(*utils.AppError); ok {
		status = utils.AppErrorToHTTPStatus(appErr.Code)
	}
	log.Printf("Request failed with status %d: %v", status, err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": utils.ErrorMessage(err)})
}
