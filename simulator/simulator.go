package simulator

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"boardroom/internal/board"
	"boardroom/internal/channel"
	"boardroom/internal/config"
	"boardroom/internal/database"
	"boardroom/internal/models"
	"boardroom/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

type SimConfig struct {
	NumUsers       int
	Topic          string
	SimulationTime time.Duration
	PostFrequency  float64 // probability of posting per user per tick
	ReplyFrequency float64
	LikeFrequency  float64
	PresenceRate   float64
	DropRate       float64
	TickInterval   time.Duration
	RequestTimeout time.Duration
}

type SimulationStats struct {
	mu              sync.RWMutex
	StartTime       time.Time
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalPosts      int
	TotalReplies    int
	TotalLikes      int
	TotalDrops      int
}

func (st *SimulationStats) recordSuccess() {
	st.mu.Lock()
	st.TotalRequests++
	st.SuccessRequests++
	st.mu.Unlock()
}

func (st *SimulationStats) recordFailure() {
	st.mu.Lock()
	st.TotalRequests++
	st.FailedRequests++
	st.mu.Unlock()
}

// SimulatedUser is one live session: a client actor subscribed to the shared
// broker, driven by randomized activity.
type SimulatedUser struct {
	ID       uuid.UUID
	Username string
	PID      *actor.PID
}

// Metrics is the final snapshot reported after a run.
type Metrics struct {
	TotalUsers      int
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalPosts      int
	TotalReplies    int
	TotalLikes      int
	TotalDrops      int
	Converged       bool
	Elapsed         time.Duration
}

// Simulator drives N in-process board clients against one broker and one
// in-memory store, churning posts, replies, likes, presence, and connection
// drops, then checks that every client's feed converged to the store's.
type Simulator struct {
	config  SimConfig
	stats   *SimulationStats
	system   *actor.ActorSystem
	broker   *channel.Broker
	store    *database.MemoryStore
	metrics  *utils.MetricsCollector
	boardCfg *config.BoardConfig

	commands *board.Commands
	users    []*SimulatedUser

	mu         sync.RWMutex
	knownPosts []uuid.UUID
	converged  bool
}

func NewSimulator(cfg SimConfig) *Simulator {
	boardCfg := config.DefaultBoardConfig()
	boardCfg.DefaultTopic = cfg.Topic
	// Short reconnect windows keep drop churn observable within a run.
	boardCfg.ReconnectDelay = 250 * time.Millisecond

	metrics := utils.NewMetricsCollector()
	store := database.NewMemoryStore()
	broker := channel.NewBroker(boardCfg)
	commands := board.NewCommands(store, broker, boardCfg, metrics)

	return &Simulator{
		config:   cfg,
		stats:    &SimulationStats{StartTime: time.Now()},
		system:   actor.NewActorSystem(),
		broker:   broker,
		store:    store,
		metrics:  metrics,
		boardCfg: boardCfg,
		commands: commands,
	}
}

func (s *Simulator) Run(ctx context.Context) error {
	log.Printf("Starting board simulation...")
	go s.broker.Run()
	defer s.broker.Stop()

	if err := s.initialize(); err != nil {
		return fmt.Errorf("initialization failed: %v", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulateActivities(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulateConnectivity(ctx)
	}()

	wg.Wait()

	// Let in-flight events drain before judging convergence.
	time.Sleep(2 * time.Second)
	s.checkConvergence()

	for _, user := range s.users {
		s.system.Root.Stop(user.PID)
	}
	return nil
}

func (s *Simulator) initialize() error {
	log.Printf("Phase 1: Spawning %d board clients...", s.config.NumUsers)

	s.users = make([]*SimulatedUser, 0, s.config.NumUsers)
	for i := 0; i < s.config.NumUsers; i++ {
		userID := uuid.New()
		username := fmt.Sprintf("user_%d", i)

		props := actor.PropsFromProducer(func() actor.Actor {
			return board.NewClientActor(s.commands, s.broker, s.boardCfg, s.metrics, s.config.Topic, userID, username)
		})
		pid := s.system.Root.Spawn(props)

		s.users = append(s.users, &SimulatedUser{
			ID:       userID,
			Username: username,
			PID:      pid,
		})
	}

	log.Printf("Phase 2: Seeding initial posts...")
	for i := 0; i < min(5, s.config.NumUsers); i++ {
		user := s.users[i]
		content := fmt.Sprintf("Welcome post %d from %s", i, user.Username)
		if _, err := s.request(user, &board.CreatePostMsg{Content: content, ContentType: models.ContentAnnouncement}); err != nil {
			return err
		}
	}

	log.Printf("Initialization completed successfully")
	return nil
}

// request sends a message to a user's client actor and records the outcome.
// An AppError result counts as a failed request but not a run failure.
func (s *Simulator) request(user *SimulatedUser, msg interface{}) (interface{}, error) {
	future := s.system.Root.RequestFuture(user.PID, msg, s.config.RequestTimeout)
	result, err := future.Result()
	if err != nil {
		s.stats.recordFailure()
		return nil, err
	}

	if appErr, ok := result.(*utils.AppError); ok {
		s.stats.recordFailure()
		log.Printf("Simulated request by %s rejected: %v", user.Username, appErr)
		return nil, nil
	}

	s.stats.recordSuccess()

	if post, ok := result.(*models.Post); ok && !post.IsReply() {
		s.mu.Lock()
		s.knownPosts = append(s.knownPosts, post.ID)
		s.mu.Unlock()
	}
	return result, nil
}

func (s *Simulator) randomKnownPost() (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.knownPosts) == 0 {
		return uuid.Nil, false
	}
	return s.knownPosts[rand.Intn(len(s.knownPosts))], true
}

// checkConvergence compares every client's reconciled feed against the
// store's authoritative top-level listing.
func (s *Simulator) checkConvergence() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	authoritative, err := s.store.ListTopLevelPosts(ctx, s.config.Topic, uuid.Nil)
	if err != nil {
		log.Printf("Convergence check failed to read store: %v", err)
		return
	}
	want := make(map[uuid.UUID]bool, len(authoritative))
	for _, post := range authoritative {
		want[post.ID] = true
	}

	converged := true
	for _, user := range s.users {
		future := s.system.Root.RequestFuture(user.PID, &board.GetFeedMsg{}, s.config.RequestTimeout)
		result, err := future.Result()
		if err != nil {
			log.Printf("Convergence check: no feed from %s: %v", user.Username, err)
			converged = false
			continue
		}
		feed, ok := result.([]*models.Post)
		if !ok {
			converged = false
			continue
		}

		if len(feed) != len(want) {
			log.Printf("Convergence check: %s sees %d posts, store has %d", user.Username, len(feed), len(want))
			converged = false
			continue
		}
		for _, post := range feed {
			if !want[post.ID] {
				log.Printf("Convergence check: %s has unknown post %s", user.Username, post.ID)
				converged = false
				break
			}
		}
	}

	s.mu.Lock()
	s.converged = converged
	s.mu.Unlock()

	if converged {
		log.Printf("Convergence check passed: all %d clients match the store (%d posts)", len(s.users), len(want))
	} else {
		log.Printf("Convergence check FAILED")
	}
}

func (s *Simulator) GetMetrics() Metrics {
	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Metrics{
		TotalUsers:      len(s.users),
		TotalRequests:   s.stats.TotalRequests,
		SuccessRequests: s.stats.SuccessRequests,
		FailedRequests:  s.stats.FailedRequests,
		TotalPosts:      s.stats.TotalPosts,
		TotalReplies:    s.stats.TotalReplies,
		TotalLikes:      s.stats.TotalLikes,
		TotalDrops:      s.stats.TotalDrops,
		Converged:       s.converged,
		Elapsed:         time.Since(s.stats.StartTime),
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
