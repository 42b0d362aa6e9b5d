package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentType classifies a post for presentation purposes only; the
// reconciler treats all content types identically.
type ContentType string

const (
	ContentText         ContentType = "text"
	ContentAnnouncement ContentType = "announcement"
	ContentQuestion     ContentType = "question"
	ContentTip          ContentType = "tip"
)

func (c ContentType) IsValid() bool {
	switch c {
	case ContentText, ContentAnnouncement, ContentQuestion, ContentTip:
		return true
	}
	return false
}

// Post is a board entry: either top-level (ReplyTo == nil) or a reply to a
// top-level post. Threads are exactly one level deep; NewReply rejects a
// reply parent so the constraint holds at construction time.
type Post struct {
	ID             uuid.UUID   `json:"id"`
	Topic          string      `json:"topic"`
	AuthorID       uuid.UUID   `json:"authorId"`
	AuthorName     string      `json:"authorName,omitempty"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"contentType"`
	ReplyTo        *uuid.UUID  `json:"replyTo,omitempty"`
	LikeCount      int         `json:"likeCount"`
	ReplyCount     int         `json:"replyCount"`
	ViewerHasLiked bool        `json:"viewerHasLiked"`
	IsPinned       bool        `json:"isPinned"`
	CreatedAt      time.Time   `json:"createdAt"`
}

func (p *Post) IsReply() bool {
	return p.ReplyTo != nil
}

// NewTopLevelPost builds an unsaved top-level post. The store assigns ID and
// CreatedAt when the post is persisted.
func NewTopLevelPost(topic string, authorID uuid.UUID, authorName, content string, contentType ContentType) *Post {
	return &Post{
		Topic:       topic,
		AuthorID:    authorID,
		AuthorName:  authorName,
		Content:     content,
		ContentType: contentType,
	}
}

// NewReply builds an unsaved reply to parent. Returns false if the parent is
// itself a reply; nesting stops at one level.
func NewReply(parent *Post, authorID uuid.UUID, authorName, content string) (*Post, bool) {
	if parent.IsReply() {
		return nil, false
	}
	parentID := parent.ID
	return &Post{
		Topic:       parent.Topic,
		AuthorID:    authorID,
		AuthorName:  authorName,
		Content:     content,
		ContentType: ContentText,
		ReplyTo:     &parentID,
	}, true
}

// StatusResponse is the generic success/failure payload for write operations.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
