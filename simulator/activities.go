package simulator

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"boardroom/internal/board"
	"boardroom/internal/models"
)

var sampleStatuses = []string{"online", "away", "busy"}

var samplePages = []string{"feed", "thread", "settings", "profile"}

var contentTypes = []models.ContentType{
	models.ContentText,
	models.ContentText,
	models.ContentQuestion,
	models.ContentTip,
}

// simulateActivities runs the post, reply, like, and presence loops until the
// context expires.
func (s *Simulator) simulateActivities(ctx context.Context) {
	log.Printf("Starting activities simulation...")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulatePosts(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulateReplies(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulateLikes(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulatePresence(ctx)
	}()

	wg.Wait()
}

func (s *Simulator) simulatePosts(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, user := range s.users {
				if rand.Float64() >= s.config.PostFrequency {
					continue
				}
				seq++
				msg := &board.CreatePostMsg{
					Content:     fmt.Sprintf("Post %d from %s", seq, user.Username),
					ContentType: contentTypes[rand.Intn(len(contentTypes))],
				}
				if result, err := s.request(user, msg); err == nil && result != nil {
					s.stats.mu.Lock()
					s.stats.TotalPosts++
					s.stats.mu.Unlock()
				}
			}
		}
	}
}

func (s *Simulator) simulateReplies(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, user := range s.users {
				if rand.Float64() >= s.config.ReplyFrequency {
					continue
				}
				parentID, ok := s.randomKnownPost()
				if !ok {
					continue
				}
				seq++
				msg := &board.CreateReplyMsg{
					ParentID: parentID,
					Content:  fmt.Sprintf("Reply %d from %s", seq, user.Username),
				}
				if result, err := s.request(user, msg); err == nil && result != nil {
					s.stats.mu.Lock()
					s.stats.TotalReplies++
					s.stats.mu.Unlock()
				}
			}
		}
	}
}

func (s *Simulator) simulateLikes(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, user := range s.users {
				if rand.Float64() >= s.config.LikeFrequency {
					continue
				}
				postID, ok := s.randomKnownPost()
				if !ok {
					continue
				}
				// Repeat toggles against the same post exercise the
				// pending-toggle guard; rejections are expected.
				if result, err := s.request(user, &board.ToggleLikeMsg{PostID: postID}); err == nil && result != nil {
					s.stats.mu.Lock()
					s.stats.TotalLikes++
					s.stats.mu.Unlock()
				}
			}
		}
	}
}

func (s *Simulator) simulatePresence(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, user := range s.users {
				if rand.Float64() >= s.config.PresenceRate {
					continue
				}
				msg := &board.SetPresenceMsg{
					Status:      sampleStatuses[rand.Intn(len(sampleStatuses))],
					CurrentPage: samplePages[rand.Intn(len(samplePages))],
				}
				s.request(user, msg)
			}
		}
	}
}

// simulateConnectivity randomly severs client connections; the broker
// reattaches each one after its delay and the client re-fetches the snapshot,
// which is exactly the churn the convergence check validates.
func (s *Simulator) simulateConnectivity(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval * 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, user := range s.users {
				if rand.Float64() >= s.config.DropRate {
					continue
				}
				if _, err := s.request(user, &board.DropConnectionMsg{}); err == nil {
					s.stats.mu.Lock()
					s.stats.TotalDrops++
					s.stats.mu.Unlock()
				}
			}
		}
	}
}
