package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Omdevsinh-Zala/chat-session/internal/models"
	"github.com/Omdevsinh-Zala/chat-session/internal/notify"
	"github.com/Omdevsinh-Zala/chat-session/internal/prefs"
	"github.com/Omdevsinh-Zala/chat-session/internal/session"
	"github.com/Omdevsinh-Zala/chat-session/internal/storage"
	"github.com/Omdevsinh-Zala/chat-session/internal/transport"
	"github.com/Omdevsinh-Zala/chat-session/internal/viewport"
)

// terminalNotifier prints notifications instead of raising OS ones; good
// enough for a terminal client.
type terminalNotifier struct{}

func (terminalNotifier) Notify(title, body, icon, tag string) {
	fmt.Printf("\n[%s] %s\n> ", title, body)
}

type bellSound struct{}

func (bellSound) Play() { fmt.Print("\a") }

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("init logger:", err)
	}
	defer logger.Sync()

	url := os.Getenv("CHAT_WS_URL")
	if url == "" {
		url = "ws://localhost:8080/ws"
	}
	viewerID := os.Getenv("CHAT_USER_ID")
	if viewerID == "" {
		logger.Fatal("CHAT_USER_ID is required")
	}
	displayName := os.Getenv("CHAT_DISPLAY_NAME")
	if displayName == "" {
		displayName = viewerID
	}
	if strings.Contains(url, "?") {
		url += "&user=" + viewerID
	} else {
		url += "?user=" + viewerID
	}

	// Durable settings live in Redis when available; defaults otherwise.
	var settingsStore *prefs.Store
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		db := 0
		if v := os.Getenv("REDIS_DB"); v != "" {
			if db, err = strconv.Atoi(v); err != nil {
				logger.Fatal("invalid REDIS_DB", zap.Error(err))
			}
		}
		rs := prefs.NewRedisStore(addr, os.Getenv("REDIS_PASSWORD"), db)
		if err := rs.Ping(); err != nil {
			logger.Warn("redis unavailable, settings disabled", zap.Error(err))
		} else {
			settingsStore = prefs.NewStore(rs)
			defer rs.Close()
		}
	}

	var uploader storage.Uploader
	if cfg, err := storage.LoadS3ConfigFromEnv(); err == nil {
		if uploader, err = storage.NewS3Uploader(cfg); err != nil {
			logger.Fatal("init uploader", zap.Error(err))
		}
	} else {
		logger.Info("attachment upload disabled", zap.Error(err))
	}

	tr := transport.New(transport.Options{
		URL:       url,
		AuthToken: os.Getenv("CHAT_AUTH_TOKEN"),
		Logger:    logger,
		OnDisconnected: func(err error) {
			logger.Warn("connection lost, reconnect with /resume", zap.Error(err))
		},
		OnUnauthorized: func() {
			logger.Error("authentication rejected, refresh CHAT_AUTH_TOKEN")
		},
	})

	var sess *session.Session
	fanout := notify.NewFanout(notify.Options{
		ViewerID: viewerID,
		ActiveConversation: func() string {
			if sess == nil {
				return ""
			}
			return sess.ActiveID()
		},
		Notifier: terminalNotifier{},
		Sound:    bellSound{},
		Prefs:    prefs.NewSoundPref(settingsStore, viewerID),
		Logger:   logger,
	})

	sess = session.New(tr, fanout, session.Options{
		ViewerID:    viewerID,
		DisplayName: displayName,
		Uploader:    uploader,
		Compressor: func(data []byte, mimeType string) ([]byte, string, error) {
			return compress(data)
		},
		Logger: logger,
	})
	defer sess.Close()

	ctx := context.Background()
	if err := tr.Connect(ctx); err != nil {
		logger.Fatal("connect", zap.Error(err))
	}
	defer tr.Disconnect()

	if st, ok := settingsStore.Settings(viewerID); ok && st.ActiveConversation != "" {
		if err := sess.Switch(models.ScopeDirect, st.ActiveConversation); err != nil {
			logger.Warn("restore conversation failed", zap.Error(err))
		}
	}

	fmt.Println("commands: /open <user|#channel>  /send <text>  /attach <path>  /read  /older  /who  /resume  /quit")
	runInputLoop(ctx, sess, settingsStore, viewerID, logger)
}

func runInputLoop(ctx context.Context, sess *session.Session, settings *prefs.Store, viewerID string, logger *zap.Logger) {
	// The terminal stands in for the scroll viewport: /read reports every
	// unread message as visible.
	vp := viewport.NewDispatcher(nil, sess)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return
		case line == "/resume":
			if err := sess.Resume(); err != nil {
				logger.Warn("resume failed", zap.Error(err))
			}
		case line == "/read":
			for _, m := range sess.Unread() {
				vp.MarkVisible(m.ID)
			}
		case line == "/older":
			if err := sess.RequestOlder(); err != nil {
				logger.Warn("pagination failed", zap.Error(err))
			}
		case line == "/who":
			for _, s := range sess.Summaries() {
				fmt.Printf("  %s [%s] unread=%d\n", s.Title, s.Kind, s.UnreadCount)
			}
		case strings.HasPrefix(line, "/open "):
			target := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
			kind := models.ScopeDirect
			if strings.HasPrefix(target, "#") {
				kind = models.ScopeChannel
				target = strings.TrimPrefix(target, "#")
			}
			if err := sess.Switch(kind, target); err != nil {
				logger.Warn("open failed", zap.Error(err))
				break
			}
			vp.Reset()
			st, _ := settings.Settings(viewerID)
			st.ActiveConversation = target
			if err := settings.Save(viewerID, st); err != nil {
				logger.Warn("save settings failed", zap.Error(err))
			}
		case strings.HasPrefix(line, "/attach "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/attach "))
			if err := sendFile(ctx, sess, path); err != nil {
				logger.Warn("attach failed", zap.String("path", path), zap.Error(err))
			}
		case strings.HasPrefix(line, "/send "):
			if _, err := sess.Send(ctx, strings.TrimPrefix(line, "/send "), nil); err != nil {
				logger.Warn("send failed", zap.Error(err))
			}
		default:
			if _, err := sess.Send(ctx, line, nil); err != nil {
				logger.Warn("send failed", zap.Error(err))
			}
		}
		fmt.Print("> ")
	}
}

func sendFile(ctx context.Context, sess *session.Session, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	_, err = sess.Send(ctx, "", []storage.File{{
		Name:     name,
		MimeType: mimeType,
		Data:     data,
	}})
	return err
}

// compress adapts the storage compressor to the session's callback shape.
func compress(data []byte) ([]byte, string, error) {
	return storage.CompressImage(bytes.NewReader(data), storage.DefaultCompressOptions())
}
