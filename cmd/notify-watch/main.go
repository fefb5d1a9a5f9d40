package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"backoffice-notify/internal/pkg/logger"
	"backoffice-notify/pkg/notifysync"
	"backoffice-notify/pkg/notifysync/remote"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

func main() {
	baseURL := flag.String("server", "", "notification server base url (NOTIFY_SERVER_URL)")
	token := flag.String("token", "", "bearer token (NOTIFY_TOKEN)")
	logPath := flag.String("log", "logs/notify-watch.log", "log file")
	window := flag.Duration("window", notifysync.DefaultBatchWindow, "toast batching window")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}
	if *baseURL == "" {
		*baseURL = os.Getenv("NOTIFY_SERVER_URL")
	}
	if *token == "" {
		*token = os.Getenv("NOTIFY_TOKEN")
	}

	userID, err := userIDFromToken(*token)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	zapLog := logger.NewIsolatedLogger(*logPath)
	defer zapLog.Sync()

	api := remote.NewAPIClient(*baseURL, *token, nil)
	channel := remote.NewWSChannel(*baseURL, *token, nil, zapLog)
	engine := notifysync.NewEngine(api, channel, api, notifysync.PresenterFunc(printToast), notifysync.Options{
		BatchWindow: *window,
		Logger:      zapLog,
	})
	defer engine.Close()

	if err := engine.Init(userID); err != nil {
		log.Fatalf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go watchStatus(ctx, engine)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	color.New(color.Faint).Println("commands: list | read <id> | read-all | quit")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := runCommand(ctx, engine, strings.Fields(line)); quit {
				return
			}
		}
	}
}

// userIDFromToken reads the user_id claim without verifying the signature;
// the server verifies it on every request.
func userIDFromToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("a token is required (-token or NOTIFY_TOKEN)")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", errors.New("token missing user_id")
	}
	return userID, nil
}

func runCommand(ctx context.Context, engine *notifysync.Engine, args []string) bool {
	if len(args) == 0 {
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch args[0] {
	case "quit", "exit":
		return true
	case "list":
		printList(engine.State())
	case "read":
		if len(args) < 2 {
			color.Yellow("usage: read <id>")
			return false
		}
		if err := engine.MarkAsRead(opCtx, args[1]); err != nil {
			color.Red("mark as read failed: %v", err)
			return false
		}
		color.Green("marked %s as read", args[1])
	case "read-all":
		if err := engine.MarkAllAsRead(opCtx); err != nil {
			color.Red("mark all as read failed: %v", err)
			return false
		}
		color.Green("all notifications marked as read")
	default:
		color.Yellow("unknown command %q", args[0])
	}
	return false
}

func watchStatus(ctx context.Context, engine *notifysync.Engine) {
	var last notifysync.State
	for {
		changed := engine.Watch()
		st := engine.State()
		if st.Readiness != last.Readiness || st.Live != last.Live || st.UnreadCount != last.UnreadCount {
			status := color.New(color.FgCyan)
			if !st.Live && st.Readiness == notifysync.Ready {
				status = color.New(color.FgYellow)
			}
			status.Printf("[%s] unread=%d live=%t\n", st.Readiness, st.UnreadCount, st.Live)
		}
		if st.Err != nil && (last.Err == nil || st.Err.Error() != last.Err.Error()) {
			color.Red("error: %v", st.Err)
		}
		last = st

		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}

func printToast(t notifysync.Toast) {
	title := color.New(color.Bold, color.FgBlue)
	if t.Emphasis == notifysync.EmphasisSuccess {
		title = color.New(color.Bold, color.FgGreen)
	}
	title.Printf("🔔 %s\n", t.Title)
	fmt.Printf("   %s\n", t.Description)
}

func printList(st notifysync.State) {
	if len(st.Notifications) == 0 {
		color.New(color.Faint).Println("no notifications")
		return
	}
	for _, rec := range st.Notifications {
		marker := color.New(color.FgGreen).Sprint("●")
		if rec.IsRead() {
			marker = color.New(color.Faint).Sprint("○")
		}
		fmt.Printf("%s %s  %-28s %s\n", marker, rec.ID, notifysync.TypeTitle(rec.Type), rec.CreatedAt.Local().Format(time.DateTime))
	}
}
