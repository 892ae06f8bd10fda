package main

import (
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

	"github.com/ReemKish/chat-program/pkg/botlib"
	"github.com/ReemKish/chat-program/pkg/protocol"
)

const loremIpsum = "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat."

var loremWords = strings.Fields(loremIpsum)

// Stats tracks load-test counters
type Stats struct {
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	sendErrors       atomic.Int64
	connectionErrors atomic.Int64
}

func randomSentence() string {
	n := 3 + rand.Intn(10)
	words := make([]string, n)
	for i := range words {
		words[i] = loremWords[rand.Intn(len(loremWords))]
	}
	return strings.Join(words, " ")
}

func runBot(addr string, id int, interval time.Duration, stats *Stats, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	bot, err := botlib.New(addr, fmt.Sprintf("bot%03d", id))
	if err != nil {
		stats.connectionErrors.Add(1)
		return
	}
	if err := bot.Connect(); err != nil {
		stats.connectionErrors.Add(1)
		return
	}
	defer bot.Quit()

	bot.OnMessage(func(_ *botlib.Bot, _ *protocol.ServerMessage) string {
		stats.messagesReceived.Add(1)
		return ""
	})

	// Run drains the socket in the background so broadcasts keep flowing.
	go bot.Run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := bot.Say(randomSentence()); err != nil {
				stats.sendErrors.Add(1)
				return
			}
			stats.messagesSent.Add(1)
		}
	}
}

func main() {
	addr := flag.String("addr", "localhost:8000", "server address")
	bots := flag.Int("bots", 10, "number of concurrent bots")
	interval := flag.Duration("interval", 2*time.Second, "delay between messages per bot")
	flag.Parse()

	log.Printf("Starting %d bots against %s", *bots, *addr)

	stats := &Stats{}
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < *bots; i++ {
		wg.Add(1)
		go runBot(*addr, i, *interval, stats, stop, &wg)
		time.Sleep(50 * time.Millisecond) // stagger admissions
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

	for {
		select {
		case <-report.C:
			log.Printf("sent=%d received=%d send_errors=%d connection_errors=%d",
				stats.messagesSent.Load(), stats.messagesReceived.Load(),
				stats.sendErrors.Load(), stats.connectionErrors.Load())
		case <-sig:
			log.Println("Stopping bots...")
			close(stop)
			wg.Wait()
			return
		}
	}
}
