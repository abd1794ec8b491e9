// Package main runs a terminal chat client for one room.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/chatsync/config"
	"github.com/orchestra-mcp/chatsync/providers"
	"github.com/orchestra-mcp/chatsync/src/scope"
	"github.com/orchestra-mcp/chatsync/src/service"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/rs/zerolog"
)

func main() {
	dept := flag.String("dept", "", "department of the room to join (default: last selected)")
	semester := flag.Int("semester", 0, "semester of the room to join")
	userID := flag.String("user", os.Getenv("USER"), "user id")
	userName := flag.String("name", "", "display name (default: user id)")
	email := flag.String("email", "", "email sent with messages")
	statusAddr := flag.String("status", "", "serve /chat/status on this address")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)

	if *userName == "" {
		*userName = *userID
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, options{
		room:       types.NewRoomIdentity(*dept, *semester),
		userID:     *userID,
		userName:   *userName,
		email:      *email,
		statusAddr: *statusAddr,
	}); err != nil {
		logger.Error().Err(err).Msg("chatsync failed")
		os.Exit(1)
	}
}

type options struct {
	room       types.RoomIdentity
	userID     string
	userName   string
	email      string
	statusAddr string
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().Timestamp().Logger()
}

func run(ctx context.Context, cfg *config.ChatConfig, logger zerolog.Logger, opts options) error {
	client := providers.NewChatClient(cfg, logger)
	if err := client.Activate(ctx); err != nil {
		return err
	}
	defer client.Deactivate()

	svc := client.Service()
	svc.OnScopeChange(func(c scope.Change) {
		if c.Cleared {
			logger.Info().Str("user_id", c.UserID).Msg("scope reset in another window")
			return
		}
		logger.Info().Str("user_id", c.UserID).Str("room", c.Room.Key()).Msg("scope changed in another window")
	})

	if !opts.room.IsZero() {
		if err := svc.SelectScope(ctx, opts.userID, opts.room); err != nil {
			return err
		}
	}

	if opts.statusAddr != "" {
		app := fiber.New()
		client.RegisterRoutes(app)
		go func() {
			if err := app.Listen(opts.statusAddr); err != nil {
				logger.Error().Err(err).Msg("status server stopped")
			}
		}()
		defer app.Shutdown()
	}

	sess, err := svc.Open(ctx, service.OpenOptions{
		UserID:    opts.userID,
		UserName:  opts.userName,
		UserEmail: opts.email,
		Surface:   "terminal",
	})
	if errors.Is(err, scope.ErrNoScope) {
		return fmt.Errorf("no room selected: pass -dept and -semester")
	}
	if err != nil {
		return err
	}
	defer sess.Close()

	fmt.Printf("joined %s as %s. Type a message, /delete <id>, /read or /unread.\n", sess.Room(), opts.userName)
	go render(os.Stdout, sess)

	lines := make(chan string)
	go readLines(os.Stdin, lines)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			handleLine(ctx, sess, line)
		}
	}
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}

func handleLine(ctx context.Context, sess *service.Session, line string) {
	line = strings.TrimSpace(line)
	var err error
	switch {
	case line == "":
		return
	case strings.HasPrefix(line, "/delete "):
		err = sess.DeleteMessage(strings.TrimSpace(strings.TrimPrefix(line, "/delete ")))
	case line == "/read":
		err = sess.MarkRead(ctx)
	case line == "/unread":
		fmt.Printf("unread: %d\n", sess.UnreadCount(ctx))
	default:
		err = sess.SendMessage(line, "")
	}
	if err != nil {
		fmt.Printf("! %v\n", err)
	}
}

// render prints each message once, and again if it is later deleted.
func render(w io.Writer, sess *service.Session) {
	printed := make(map[string]bool) // id -> printed as deleted
	active := -1
	var typist string

	for range sess.Updates() {
		for _, m := range sess.Messages() {
			deleted, seen := printed[m.ID]
			if seen && deleted == m.IsDeleted {
				continue
			}
			printed[m.ID] = m.IsDeleted
			fmt.Fprintf(w, "[%s] %s: %s  (%s)\n", m.CreatedAt.Local().Format(time.Kitchen), m.AuthorName, m.Text, m.ID)
		}
		if n := sess.ActiveCount(); n != active {
			active = n
			fmt.Fprintf(w, "-- %d online\n", n)
		}
		st, ok := sess.Typing()
		if !ok {
			st.UserName = ""
		}
		if st.UserName != typist {
			typist = st.UserName
			if typist != "" {
				fmt.Fprintf(w, "-- %s is typing...\n", typist)
			}
		}
	}
}
