// internal/database/like_repository.go
package database

import (
	"context"
	"log"
	"time"

	"boardroom/internal/models"
	"boardroom/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LikeDocument is one (user, post) like edge. The unique index on
// (userid, postid) guarantees at most one edge per pair.
type LikeDocument struct {
	UserID    string    `bson:"userid"`
	PostID    string    `bson:"postid"`
	CreatedAt time.Time `bson:"createdat"`
}

// ToggleLike flips the like edge for (userID, postID) and adjusts the post's
// like count by exactly one via $inc. Two rapid toggles cancel out; the
// count always equals the edge cardinality.
func (m *MongoDB) ToggleLike(ctx context.Context, postID uuid.UUID, userID uuid.UUID) (bool, int, error) {
	edgeFilter := bson.M{"userid": userID.String(), "postid": postID.String()}

	result, err := m.Likes.DeleteOne(ctx, edgeFilter)
	if err != nil {
		return false, 0, utils.NewAppError(utils.ErrDatabase, "Failed to remove like", err)
	}

	if result.DeletedCount > 0 {
		count, err := m.adjustLikeCount(ctx, postID, -1)
		if err != nil {
			return false, 0, err
		}
		return false, count, nil
	}

	_, err = m.Likes.InsertOne(ctx, &LikeDocument{
		UserID:    userID.String(),
		PostID:    postID.String(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// A concurrent toggle from the same user inserted the edge
			// first; report the state it established.
			post, getErr := m.GetPost(ctx, postID, uuid.Nil)
			if getErr != nil {
				return false, 0, getErr
			}
			return true, post.LikeCount, nil
		}
		return false, 0, utils.NewAppError(utils.ErrDatabase, "Failed to record like", err)
	}

	count, err := m.adjustLikeCount(ctx, postID, 1)
	if err != nil {
		// The post vanished under us; drop the orphaned edge.
		if utils.IsErrorCode(err, utils.ErrNotFound) {
			if _, delErr := m.Likes.DeleteOne(ctx, edgeFilter); delErr != nil {
				log.Printf("Failed to clean up orphaned like edge for post %s: %v", postID, delErr)
			}
		}
		return false, 0, err
	}
	return true, count, nil
}

// adjustLikeCount applies the delta with $inc and returns the updated count.
func (m *MongoDB) adjustLikeCount(ctx context.Context, postID uuid.UUID, delta int) (int, error) {
	filter := bson.M{"_id": postID.String()}
	update := bson.M{"$inc": bson.M{"likecount": delta}}

	var doc PostDocument
	err := m.Posts.FindOneAndUpdate(ctx, filter, update,
		mongoReturnAfter()).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 0, utils.NewAppError(utils.ErrNotFound, "Post not found", err)
	}
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "Failed to update like count", err)
	}
	return doc.LikeCount, nil
}

// hasLikeEdge reports whether viewerID has liked postID.
func (m *MongoDB) hasLikeEdge(ctx context.Context, postID uuid.UUID, viewerID uuid.UUID) (bool, error) {
	err := m.Likes.FindOne(ctx, bson.M{
		"userid": viewerID.String(),
		"postid": postID.String(),
	}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "Failed to check like edge", err)
	}
	return true, nil
}

// populateViewerLikes resolves ViewerHasLiked for a page of posts with a
// single query over the viewer's like edges.
func (m *MongoDB) populateViewerLikes(ctx context.Context, posts []*models.Post, viewerID uuid.UUID) error {
	postIDs := make([]string, len(posts))
	for i, p := range posts {
		postIDs[i] = p.ID.String()
	}

	cursor, err := m.Likes.Find(ctx, bson.M{
		"userid": viewerID.String(),
		"postid": bson.M{"$in": postIDs},
	})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "Failed to fetch like edges", err)
	}
	defer cursor.Close(ctx)

	liked := make(map[string]bool)
	for cursor.Next(ctx) {
		var edge LikeDocument
		if err := cursor.Decode(&edge); err != nil {
			log.Printf("Error decoding like edge: %v", err)
			continue
		}
		liked[edge.PostID] = true
	}
	if err := cursor.Err(); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "cursor iteration failed", err)
	}

	for _, p := range posts {
		p.ViewerHasLiked = liked[p.ID.String()]
	}
	return nil
}

func mongoReturnAfter() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}
