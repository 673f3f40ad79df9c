// Command chatprobe opens WebSocket sessions against a running Animegram API
// and reports what the server pushes back.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks the probe results.
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	FramesSent           int64
	MessagesPosted       int64
	Errors               int64

	mu       sync.Mutex
	received map[string]int64
}

func (m *Metrics) countEnvelope(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.received == nil {
		m.received = make(map[string]int64)
	}
	m.received[kind]++
}

var metrics Metrics

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	email := flag.String("email", "", "login email (ignored when -token is set)")
	password := flag.String("password", "password123", "login password")
	token := flag.String("token", "", "bearer token to use instead of logging in")
	clients := flag.Int("clients", 1, "number of concurrent WebSocket sessions")
	duration := flag.Duration("duration", 30*time.Second, "probe duration")
	to := flag.String("to", "", "user ID to send a direct message to every interval")
	interval := flag.Duration("interval", 5*time.Second, "ping and message interval")
	verbose := flag.Bool("v", false, "print every envelope")
	flag.Parse()

	if *token == "" {
		if *email == "" {
			log.Fatal("either -token or -email is required")
		}
		t, err := login(*host, *email, *password)
		if err != nil {
			log.Fatalf("login failed: %v", err)
		}
		*token = t
		log.Printf("logged in as %s", *email)
	}

	log.Printf("probing %s with %d client(s) for %v", *host, *clients, *duration)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go runClient(*host, *token, i, *interval, *verbose, stop, &wg)
		time.Sleep(50 * time.Millisecond)
	}

	if *to != "" {
		wg.Add(1)
		go runSender(*host, *token, *to, *interval, stop, &wg)
	}

	select {
	case <-time.After(*duration):
		log.Println("probe duration reached")
	case <-interrupt:
		log.Println("interrupted")
	}

	close(stop)
	wg.Wait()
	printMetrics()
}

func postJSON(rawURL, token string, payload any) (*http.Response, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequest(http.MethodPost, rawURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	return client.Do(req)
}

func login(host, email, password string) (string, error) {
	resp, err := postJSON(fmt.Sprintf("http://%s/api/auth/login", host), "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Token, nil
}

// getTicket returns "" without error when the server has no ticket store, in
// which case the caller falls back to the Authorization header.
func getTicket(host, token string) (string, error) {
	resp, err := postJSON(fmt.Sprintf("http://%s/api/ws/ticket", host), token, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		return "", nil
	default:
		return "", fmt.Errorf("ticket issuance failed with status %d", resp.StatusCode)
	}

	var result struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Ticket, nil
}

func runClient(host, token string, id int, interval time.Duration, verbose bool, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	ticket, err := getTicket(host, token)
	if err != nil {
		log.Printf("client %d: %v", id, err)
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}

	u := url.URL{Scheme: "ws", Host: host, Path: "/api/ws"}
	header := http.Header{}
	if ticket != "" {
		u.RawQuery = "ticket=" + url.QueryEscape(ticket)
	} else {
		header.Set("Authorization", "Bearer "+token)
	}

	c, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Printf("client %d: dial: %v", id, err)
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = c.Close() }()
	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	go func() {
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				atomic.AddInt64(&metrics.Errors, 1)
				continue
			}
			metrics.countEnvelope(env.Type)
			if verbose {
				log.Printf("client %d <- %s %s", id, env.Type, env.Payload)
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if err := c.WriteJSON(map[string]string{"type": "ping"}); err != nil {
				atomic.AddInt64(&metrics.Errors, 1)
				return
			}
			atomic.AddInt64(&metrics.FramesSent, 1)
		}
	}
}

func runSender(host, token, to string, interval time.Duration, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			resp, err := postJSON(fmt.Sprintf("http://%s/api/messages", host), token, map[string]string{
				"receiver_id": to,
				"content":     fmt.Sprintf("chatprobe message %d", n),
			})
			if err != nil {
				atomic.AddInt64(&metrics.Errors, 1)
				continue
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				log.Printf("send failed with status %d", resp.StatusCode)
				atomic.AddInt64(&metrics.Errors, 1)
				continue
			}
			atomic.AddInt64(&metrics.MessagesPosted, 1)
		}
	}
}

func printMetrics() {
	log.Println("probe results")
	log.Printf("connections attempted: %d", atomic.LoadInt64(&metrics.ConnectionsAttempted))
	log.Printf("connections successful: %d", atomic.LoadInt64(&metrics.ConnectionsSuccess))
	log.Printf("connections failed: %d", atomic.LoadInt64(&metrics.ConnectionsFailed))
	log.Printf("frames sent: %d", atomic.LoadInt64(&metrics.FramesSent))
	log.Printf("messages posted: %d", atomic.LoadInt64(&metrics.MessagesPosted))
	log.Printf("errors: %d", atomic.LoadInt64(&metrics.Errors))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	kinds := make([]string, 0, len(metrics.received))
	for k := range metrics.received {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		log.Printf("received %s: %d", k, metrics.received[k])
	}
}
