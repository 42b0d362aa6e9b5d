package main

import (
	"context"
	"log"
	"time"

	"boardroom/simulator"
)

func main() {
	config := simulator.SimConfig{
		NumUsers:       10,
		Topic:          "board-room",
		SimulationTime: 30 * time.Second,
		PostFrequency:  0.05,
		ReplyFrequency: 0.10,
		LikeFrequency:  0.20,
		PresenceRate:   0.15,
		DropRate:       0.05,
		TickInterval:   200 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}

	sim := simulator.NewSimulator(config)
	ctx, cancel := context.WithTimeout(context.Background(), config.SimulationTime)
	defer cancel()

	log.Printf("Starting simulation with configuration:")
	log.Printf("- Number of users: %d", config.NumUsers)
	log.Printf("- Topic: %s", config.Topic)
	log.Printf("- Simulation time: %v", config.SimulationTime)
	log.Printf("- Post frequency: %.2f per user per tick", config.PostFrequency)
	log.Printf("- Reply frequency: %.2f per user per tick", config.ReplyFrequency)
	log.Printf("- Like frequency: %.2f per user per tick", config.LikeFrequency)
	log.Printf("- Drop rate: %.2f per user per tick", config.DropRate)

	if err := sim.Run(ctx); err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}

	metrics := sim.GetMetrics()
	log.Printf("\nSimulation completed. Final metrics:")
	log.Printf("- Total users: %d", metrics.TotalUsers)
	log.Printf("- Total requests: %d (%d ok, %d failed)", metrics.TotalRequests, metrics.SuccessRequests, metrics.FailedRequests)
	log.Printf("- Posts: %d, Replies: %d, Likes: %d", metrics.TotalPosts, metrics.TotalReplies, metrics.TotalLikes)
	log.Printf("- Connection drops: %d", metrics.TotalDrops)
	log.Printf("- Converged: %v", metrics.Converged)
	log.Printf("- Elapsed: %v", metrics.Elapsed)
}
