package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// PointEvent is the point-earning event pushed onto the feed. Mirrors
// the server's ledger event shape.
type PointEvent struct {
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	Points     int64     `json:"points"`
	MerchantID string    `json:"merchant_id,omitempty"`
	CityID     string    `json:"city_id,omitempty"`
	CategoryID string    `json:"category_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

var userPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
	"Ace", "Bolt", "Crash", "Dash", "Edge", "Flash", "Glitch", "Haze", "Ion", "Jade",
	"Knight", "Luna", "Mystic", "Neon", "Orion", "Pulse", "Quantum", "Rebel", "Spark", "Turbo",
}

func getUserName(idx int) string {
	prefixIdx := idx % len(userPrefixes)
	suffix := idx/len(userPrefixes) + 1
	return fmt.Sprintf("%s%d", userPrefixes[prefixIdx], suffix)
}

var cities = []string{"istanbul", "ankara", "izmir", "bursa", "antalya"}
var categories = []string{"coffee", "grocery", "fashion", "electronics", "dining"}

// kindWeights drive how often each earning kind is produced, roughly
// matching production traffic: check-ins dominate, referrals are rare.
var kindWeights = []struct {
	kind      string
	weight    int
	minPoints int
	maxPoints int
}{
	{"CHECK_IN", 70, 5, 50},
	{"SHARE", 20, 10, 30},
	{"BOOST", 7, 50, 200},
	{"REFERRAL", 3, 100, 500},
}

func randomEvent(userIdx int) PointEvent {
	roll := rand.Intn(100)
	acc := 0
	chosen := kindWeights[0]
	for _, kw := range kindWeights {
		acc += kw.weight
		if roll < acc {
			chosen = kw
			break
		}
	}

	return PointEvent{
		UserID:     getUserName(userIdx),
		Kind:       chosen.kind,
		Points:     int64(rand.Intn(chosen.maxPoints-chosen.minPoints) + chosen.minPoints),
		CityID:     cities[rand.Intn(len(cities))],
		CategoryID: categories[rand.Intn(len(categories))],
		MerchantID: fmt.Sprintf("merchant-%d", rand.Intn(50)+1),
		Timestamp:  time.Now().UTC(),
	}
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "point-events", "Kafka topic")
	totalUsers := flag.Int("users", 1000, "Total number of users to generate events for")
	eventsPerSecond := flag.Int("rate", 100, "Events per second")
	initialEvents := flag.Int("initial", 5, "Initial events per user")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	initialOnly := flag.Bool("initial-only", false, "Only seed initial events, no continuous stream")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🚀 Point Event Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Total Users:      %d\n", *totalUsers)
	fmt.Printf("  Events/sec:       %d\n", *eventsPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	// Send message helper. Keyed by user so each user's events land on
	// one partition in order.
	sendEvent := func(event PointEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(event.UserID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	// Seed initial balances so leaderboards and heists have material
	fmt.Printf("Seeding %d initial events for %d users...\n", *initialEvents, *totalUsers)
	for i := 0; i < *totalUsers; i++ {
		for j := 0; j < *initialEvents; j++ {
			sendEvent(randomEvent(i))
		}

		if (i+1)%100 == 0 || i+1 == *totalUsers {
			progress := float64(i+1) / float64(*totalUsers) * 100
			fmt.Printf("\r  Progress: %d/%d users (%.1f%%)", i+1, *totalUsers, progress)
		}
	}
	fmt.Printf("\n✓ Seeded %d users\n\n", *totalUsers)

	if *initialOnly {
		fmt.Println("Initial-only mode: Exiting after seeding")
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
		return
	}

	// Start continuous stream
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Starting continuous stream (%d/sec)\n", *eventsPerSecond)
	fmt.Println("Active users have 70% chance to earn (to create leaderboard movement)")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*eventsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var eventCount int64

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nShutting down...")
			close(done)
			producer.AsyncClose()
			wg.Wait()
			fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\n\nDuration reached, shutting down...")
				close(done)
				producer.AsyncClose()
				wg.Wait()
				fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
				return
			}

			// 70% chance to pick from the 20 most active users
			var userIdx int
			if rand.Intn(100) < 70 {
				userIdx = rand.Intn(20)
			} else {
				userIdx = rand.Intn(*totalUsers-20) + 20
			}

			sendEvent(randomEvent(userIdx))
			atomic.AddInt64(&eventCount, 1)

		case <-statsTicker.C:
			events := atomic.LoadInt64(&eventCount)
			success := atomic.LoadInt64(&successCount)
			errors := atomic.LoadInt64(&errorCount)
			fmt.Printf("[%s] Events: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				events,
				success,
				errors,
			)
		}
	}
}
