// chatline client: a terminal chat client around the conversation cache.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/ashvetsov/chatline/internal/chatclient"
	"github.com/ashvetsov/chatline/internal/domain"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=http://localhost:8080"`
	Token     string `env:"CHAT_TOKEN"`
	Username  string `env:"CHAT_USERNAME"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token := cfg.Token
	if token == "" {
		// No token provided: join as a guest.
		loginCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		userID, guestToken, err := chatclient.GuestLogin(loginCtx, cfg.ServerURL, cfg.Username)
		cancel()
		if err != nil {
			return exitRuntime, err
		}
		token = guestToken
		fmt.Printf("Joined as guest %s\n", userID)
	}

	cache := chatclient.NewCache(
		chatclient.NewHTTPGateway(cfg.ServerURL, token),
		chatclient.NewWebSocketStream(cfg.ServerURL, token),
	)
	defer cache.Unsubscribe()

	fmt.Println("Commands: /users, /select <id>, /quit; anything else is sent to the selected peer.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	printed := 0
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case <-ticker.C:
			printed = printNew(cache, printed)
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			done, err := handleLine(ctx, cache, line)
			if err != nil {
				if domain.IsClientFault(err) {
					fmt.Println("!", domain.FaultMessage(err, "invalid input"))
					continue
				}
				return exitRuntime, err
			}
			if done {
				return exitOK, nil
			}
			printed = printNew(cache, printed)
		}
	}
}

func handleLine(ctx context.Context, cache *chatclient.Cache, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false, nil
	case line == "/quit":
		return true, nil
	case line == "/users":
		if err := cache.LoadUsers(ctx); err != nil {
			return false, err
		}
		for _, u := range cache.Users() {
			fmt.Printf("  %s  %s\n", u.UserID, u.Username)
		}
		return false, nil
	case strings.HasPrefix(line, "/select "):
		peer := strings.TrimSpace(strings.TrimPrefix(line, "/select "))
		if err := cache.SelectPeer(ctx, peer); err != nil {
			return false, err
		}
		fmt.Printf("Talking to %s (%d earlier messages)\n", peer, len(cache.Messages()))
		return false, nil
	default:
		_, err := cache.Send(ctx, line)
		return false, err
	}
}

// printNew prints messages appended to the cache since the last call.
func printNew(cache *chatclient.Cache, printed int) int {
	messages := cache.Messages()
	if printed > len(messages) {
		// Selection changed and the cache was cleared.
		printed = 0
	}
	for ; printed < len(messages); printed++ {
		m := messages[printed]
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.SenderID, m.Body)
	}
	return printed
}
