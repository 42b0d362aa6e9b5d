// internal/database/post_repository.go
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"boardroom/internal/models"
	"boardroom/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PostDocument represents the MongoDB schema for a post.
type PostDocument struct {
	ID          string    `bson:"_id"`
	Topic       string    `bson:"topic"`
	AuthorID    string    `bson:"authorid"`
	AuthorName  string    `bson:"authorname"`
	Content     string    `bson:"content"`
	ContentType string    `bson:"contenttype"`
	ReplyTo     string    `bson:"replyto,omitempty"`
	LikeCount   int       `bson:"likecount"`
	ReplyCount  int       `bson:"replycount"`
	IsPinned    bool      `bson:"ispinned"`
	CreatedAt   time.Time `bson:"createdat"`
}

// ModelToDocument converts a Post model to a MongoDB document.
func (m *MongoDB) ModelToDocument(post *models.Post) *PostDocument {
	doc := &PostDocument{
		ID:          post.ID.String(),
		Topic:       post.Topic,
		AuthorID:    post.AuthorID.String(),
		AuthorName:  post.AuthorName,
		Content:     post.Content,
		ContentType: string(post.ContentType),
		LikeCount:   post.LikeCount,
		ReplyCount:  post.ReplyCount,
		IsPinned:    post.IsPinned,
		CreatedAt:   post.CreatedAt,
	}
	if post.ReplyTo != nil {
		doc.ReplyTo = post.ReplyTo.String()
	}
	return doc
}

// DocumentToModel converts a MongoDB document to a Post model.
func (m *MongoDB) DocumentToModel(doc *PostDocument) (*models.Post, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid post ID: %v", err)
	}

	authorID, err := uuid.Parse(doc.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("invalid author ID: %v", err)
	}

	post := &models.Post{
		ID:          id,
		Topic:       doc.Topic,
		AuthorID:    authorID,
		AuthorName:  doc.AuthorName,
		Content:     doc.Content,
		ContentType: models.ContentType(doc.ContentType),
		LikeCount:   doc.LikeCount,
		ReplyCount:  doc.ReplyCount,
		IsPinned:    doc.IsPinned,
		CreatedAt:   doc.CreatedAt,
	}

	if doc.ReplyTo != "" {
		replyTo, err := uuid.Parse(doc.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("invalid parent ID: %v", err)
		}
		post.ReplyTo = &replyTo
	}

	return post, nil
}

// CreatePost persists a post, assigning its ID and creation time. For a
// reply it verifies the parent is a live top-level post on the same topic
// and bumps the parent's reply count.
func (m *MongoDB) CreatePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	if post.ReplyTo != nil {
		parent, err := m.GetPost(ctx, *post.ReplyTo, uuid.Nil)
		if err != nil {
			if utils.IsErrorCode(err, utils.ErrNotFound) {
				return nil, utils.NewStaleReferenceError("parent post no longer exists")
			}
			return nil, err
		}
		if parent.IsReply() {
			return nil, utils.NewAppError(utils.ErrReplyDepth, "cannot reply to a reply", nil)
		}
		if parent.Topic != post.Topic {
			return nil, utils.NewAppError(utils.ErrTopicMismatch, "parent post belongs to a different topic", nil)
		}
	}

	stored := *post
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now().UTC()
	stored.LikeCount = 0
	stored.ReplyCount = 0

	if _, err := m.Posts.InsertOne(ctx, m.ModelToDocument(&stored)); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "Failed to save post", err)
	}

	if stored.ReplyTo != nil {
		if err := m.adjustReplyCount(ctx, *stored.ReplyTo, 1); err != nil {
			log.Printf("Failed to increment reply count for post %s: %v", stored.ReplyTo, err)
		}
	}

	return &stored, nil
}

// GetPost retrieves a post by its ID, with ViewerHasLiked resolved for viewerID.
func (m *MongoDB) GetPost(ctx context.Context, id uuid.UUID, viewerID uuid.UUID) (*models.Post, error) {
	var doc PostDocument

	err := m.Posts.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewAppError(utils.ErrNotFound, "Post not found", err)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "Failed to fetch post", err)
	}

	post, err := m.DocumentToModel(&doc)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "Corrupt post document", err)
	}

	if viewerID != uuid.Nil {
		liked, err := m.hasLikeEdge(ctx, id, viewerID)
		if err != nil {
			return nil, err
		}
		post.ViewerHasLiked = liked
	}

	return post, nil
}

// ListTopLevelPosts returns every live top-level post on the topic, newest
// first with pinned posts leading, the authoritative snapshot clients load
// at subscribe time and after every reconnect.
func (m *MongoDB) ListTopLevelPosts(ctx context.Context, topic string, viewerID uuid.UUID) ([]*models.Post, error) {
	filter := bson.M{"topic": topic, "replyto": bson.M{"$exists": false}}
	opts := options.Find().SetSort(bson.D{
		{Key: "ispinned", Value: -1},
		{Key: "createdat", Value: -1},
	})

	return m.listPosts(ctx, filter, opts, viewerID)
}

// ListReplies returns the replies under a parent, oldest first.
func (m *MongoDB) ListReplies(ctx context.Context, parentID uuid.UUID, viewerID uuid.UUID) ([]*models.Post, error) {
	filter := bson.M{"replyto": parentID.String()}
	opts := options.Find().SetSort(bson.D{{Key: "createdat", Value: 1}})

	return m.listPosts(ctx, filter, opts, viewerID)
}

func (m *MongoDB) listPosts(ctx context.Context, filter bson.M, opts *options.FindOptions, viewerID uuid.UUID) ([]*models.Post, error) {
	cursor, err := m.Posts.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "database query failed", err)
	}
	defer cursor.Close(ctx)

	var posts []*models.Post
	for cursor.Next(ctx) {
		var doc PostDocument
		if err := cursor.Decode(&doc); err != nil {
			log.Printf("Error decoding post document: %v", err)
			continue
		}

		post, err := m.DocumentToModel(&doc)
		if err != nil {
			log.Printf("Error converting document to model: %v", err)
			continue
		}
		posts = append(posts, post)
	}

	if err := cursor.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "cursor iteration failed", err)
	}

	if viewerID != uuid.Nil && len(posts) > 0 {
		if err := m.populateViewerLikes(ctx, posts, viewerID); err != nil {
			return nil, err
		}
	}

	return posts, nil
}

// DeletePost removes a post and its like edges. Only the author may delete;
// deleting a reply decrements the parent's reply count.
func (m *MongoDB) DeletePost(ctx context.Context, id uuid.UUID, requesterID uuid.UUID) error {
	post, err := m.GetPost(ctx, id, uuid.Nil)
	if err != nil {
		return err
	}

	if post.AuthorID != requesterID {
		return utils.NewForbiddenError("only the author can delete a post")
	}

	result, err := m.Posts.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "Failed to delete post", err)
	}
	if result.DeletedCount == 0 {
		// Someone else deleted it between the fetch and now; the outcome
		// the requester asked for holds either way.
		return nil
	}

	if _, err := m.Likes.DeleteMany(ctx, bson.M{"postid": id.String()}); err != nil {
		log.Printf("Failed to remove like edges for post %s: %v", id, err)
	}

	if post.ReplyTo != nil {
		if err := m.adjustReplyCount(ctx, *post.ReplyTo, -1); err != nil {
			log.Printf("Failed to decrement reply count for post %s: %v", post.ReplyTo, err)
		}
	}

	return nil
}

// adjustReplyCount modifies the reply count for a post atomically.
func (m *MongoDB) adjustReplyCount(ctx context.Context, postID uuid.UUID, delta int) error {
	filter := bson.M{"_id": postID.String()}
	update := bson.M{"$inc": bson.M{"replycount": delta}}

	result, err := m.Posts.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return utils.NewAppError(utils.ErrNotFound, "Post not found", nil)
	}
	return nil
}
