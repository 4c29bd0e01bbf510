// retro-watch follows a board from the terminal: connection state, who is
// online and the shared countdown. Owners can drive the timer from stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/itchan-dev/retroboard/client/internal/apiclient"
	"github.com/itchan-dev/retroboard/client/internal/boardview"
	"github.com/itchan-dev/retroboard/client/internal/channel"
	"github.com/itchan-dev/retroboard/client/internal/session"
	"github.com/itchan-dev/retroboard/client/internal/timer"
	"github.com/itchan-dev/retroboard/shared/events"
	"github.com/itchan-dev/retroboard/shared/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Log.Warn("can't load .env", "error", err)
	}

	var (
		apiURL   string
		token    string
		boardId  string
		email    string
		logLevel string
	)
	flag.StringVar(&apiURL, "api", envOr("RETRO_API_URL", "http://localhost:8080"), "backend base url")
	flag.StringVar(&token, "token", os.Getenv("RETRO_TOKEN"), "access token (see issue-token)")
	flag.StringVar(&boardId, "board", "", "board to attach to")
	flag.StringVar(&email, "email", os.Getenv("RETRO_EMAIL"), "identity the token was issued for")
	flag.StringVar(&logLevel, "log_level", "warn", "debug, info, warn or error")
	flag.Parse()

	// stdout belongs to the countdown
	logger.InitializeWriter(os.Stderr, logLevel, false)
	if boardId == "" || token == "" || email == "" {
		fmt.Fprintln(os.Stderr, "-board, -token and -email are required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := channel.NewManager(channel.Config{})
	defer manager.Close()

	w := &watcher{}
	s, err := session.Open(ctx, apiclient.New(apiURL, token), manager, session.Config{
		BoardId: boardId,
		Email:   email,
		OnTick:  w.tick,
		OnError: func(err error) { fmt.Printf("\nserver: %v\n", err) },
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "attach %s: %v\n", boardId, err)
		os.Exit(1)
	}
	// detach on every exit path, signals included
	defer s.Close()

	s.OnState(func(st channel.State) { fmt.Printf("\n[%s]\n", st) })
	s.View().OnChange(func(t events.Type) {
		if t == events.PresenceList || t == events.PresenceJoined || t == events.PresenceLeft || t == boardview.Reloaded {
			online, offline := s.View().Counts()
			fmt.Printf("\nmembers: %d online, %d offline\n", online, offline)
		}
	})
	online, offline := s.View().Counts()
	fmt.Printf("attached to %s [%s], %d stickers, %d online, %d offline\n",
		boardId, s.State(), len(s.View().Stickers()), online, offline)

	go readCommands(ctx, s)
	<-ctx.Done()
	fmt.Println("\ndetaching")
}

type watcher struct {
	mu   sync.Mutex
	last string
}

// tick redraws the countdown line when the shown value changes.
func (w *watcher) tick(remaining time.Duration, phase timer.Phase, expired bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if expired {
		fmt.Print("\rtime is up          \n")
		w.last = ""
		return
	}
	line := ""
	if phase != timer.Idle {
		secs := int64(remaining / time.Second)
		line = fmt.Sprintf("%02d:%02d %s", secs/60, secs%60, phase)
	}
	if line != w.last {
		fmt.Printf("\r%-20s", line)
		w.last = line
	}
}

// readCommands accepts "start <duration>", "pause", "resume", "stop" and "refresh".
func readCommands(ctx context.Context, s *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		var err error
		switch fields[0] {
		case "start":
			d := 5 * time.Minute
			if len(fields) > 1 {
				if d, err = time.ParseDuration(fields[1]); err != nil {
					break
				}
			}
			err = s.StartTimer(d)
		case "pause":
			err = s.PauseTimer()
		case "resume":
			err = s.ResumeTimer()
		case "stop":
			err = s.StopTimer()
		case "refresh":
			err = s.Refresh(ctx)
		default:
			err = fmt.Errorf("unknown command %q", fields[0])
		}
		if err != nil {
			fmt.Printf("\n%v\n", err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
