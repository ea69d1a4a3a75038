package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"marketchat/internal/app/session"
	"marketchat/internal/domain/chat"
	"marketchat/internal/infra/broker/kafka"
	"marketchat/internal/infra/config"
	"marketchat/internal/infra/obs"
	"marketchat/internal/infra/rest"
	"marketchat/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	userID := strings.TrimSpace(os.Getenv("CHAT_USER_ID"))
	if userID == "" {
		logger.Error("CHAT_USER_ID is required")
		os.Exit(1)
	}

	persistence, err := rest.NewClient(rest.Config{
		BaseURL:     cfg.ServerURL,
		CallTimeout: cfg.CallTimeout,
	}, nil, logger)
	if err != nil {
		logger.Error("rest client failed", "error", err)
		os.Exit(1)
	}

	var uploader session.Uploader
	if s3Client, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger); err != nil {
		logger.Warn("image uploads disabled", "error", err)
		uploader = s3.NoopUploader{}
	} else {
		uploader = s3Client
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
	if err != nil {
		logger.Error("kafka producer failed", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	channel := kafka.NewChannel(producer, cfg.KafkaTopic)

	conversations := session.NewConversationStore(userID, persistence, logger)
	messages := session.NewMessageStore(userID, persistence, logger)
	pipeline := &session.Pipeline{
		Messages:      messages,
		Conversations: conversations,
		Uploader:      uploader,
		Persistence:   persistence,
		Channel:       channel,
		Logger:        logger,
	}
	router := &session.Router{
		CurrentUserID: userID,
		Conversations: conversations,
		Messages:      messages,
		Persistence:   persistence,
		Logger:        logger,
	}
	typing := session.NewTypingSignal(channel, userID, cfg.TypingIdle, logger)
	defer typing.Stop()

	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = "chatcli-" + userID
	}
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, groupID, cfg.KafkaTopic, nil, router, logger)
	if err != nil {
		logger.Error("kafka consumer failed", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event subscription ended", "error", err)
		}
	}()

	if _, err := conversations.Load(ctx); err != nil {
		logger.Warn("initial conversation load failed", "error", err)
	}

	ui := &cli{
		userID:        userID,
		conversations: conversations,
		messages:      messages,
		pipeline:      pipeline,
		router:        router,
		typing:        typing,
	}
	ui.run(ctx)
}

// cli is a minimal line-oriented front end over the session stores. It exists
// so the session layer can be exercised end to end from a terminal; anything
// richer belongs in a real UI.
type cli struct {
	userID        string
	conversations *session.ConversationStore
	messages      *session.MessageStore
	pipeline      *session.Pipeline
	router        *session.Router
	typing        *session.TypingSignal
}

func (u *cli) run(ctx context.Context) {
	fmt.Println("commands: /list, /open <user-id>, /history, /read, /del <message-id>, /quit")
	fmt.Println("any other input is sent to the open conversation")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if u.handle(ctx, strings.TrimSpace(line)) {
				return
			}
		}
	}
}

// handle executes one input line; returns true when the session should end.
func (u *cli) handle(ctx context.Context, line string) bool {
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/list":
		u.printConversations()
	case strings.HasPrefix(line, "/open "):
		u.open(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
	case line == "/history":
		u.printHistory()
	case line == "/read":
		u.markRead(ctx)
	case strings.HasPrefix(line, "/del "):
		u.deleteMessage(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/del ")))
	default:
		u.send(ctx, line)
	}
	return false
}

func (u *cli) printConversations() {
	list := u.conversations.List()
	if len(list) == 0 {
		fmt.Println("no conversations yet, /open <user-id> to start one")
		return
	}
	for _, conv := range list {
		name := conv.OtherUser.Name
		if name == "" {
			name = conv.OtherUser.ID
		}
		marker := " "
		if conv.Key == u.conversations.Selected() {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s", marker, name)
		if conv.UnreadCount > 0 {
			line += fmt.Sprintf(" (%d unread)", conv.UnreadCount)
		}
		if conv.Last != nil {
			line += " — " + conv.Last.Preview
		}
		fmt.Println(line)
	}
}

func (u *cli) open(ctx context.Context, otherUserID string) {
	if otherUserID == "" {
		fmt.Println("usage: /open <user-id>")
		return
	}
	conv := u.conversations.StartDraft(ctx, otherUserID, "")
	u.conversations.Select(conv.Key)
	u.messages.Open(conv.Key)
	if _, err := u.messages.LoadHistory(ctx, conv.Key, otherUserID); err != nil {
		fmt.Println("history unavailable:", err)
	}
	u.printHistory()
}

func (u *cli) printHistory() {
	key := u.conversations.Selected()
	if key == "" {
		fmt.Println("no conversation open")
		return
	}
	for _, group := range chat.GroupMessages(u.messages.Messages()) {
		fmt.Println(group[0].CreatedAt.Local().Format("Jan 2 15:04"))
		for _, m := range group {
			u.printMessage(m)
		}
	}
	if u.router.PeerTyping(key) {
		fmt.Println("  …typing")
	}
}

func (u *cli) printMessage(m chat.Message) {
	who := m.SenderID
	if m.SenderID == u.userID {
		who = "me"
	}
	status := ""
	switch {
	case m.Delivery == chat.DeliveryPending:
		status = " (sending)"
	case m.SenderID == u.userID && m.IsRead():
		status = " (read)"
	}
	fmt.Printf("  [%s] %s: %s%s\n", m.ID, who, m.Preview(), status)
}

func (u *cli) send(ctx context.Context, body string) {
	key := u.conversations.Selected()
	if key == "" {
		fmt.Println("no conversation open, /open <user-id> first")
		return
	}
	conv, ok := u.conversations.Get(key)
	if !ok {
		fmt.Println("conversation vanished, /list to refresh")
		return
	}
	u.typing.NotifyActivity(key)
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := u.pipeline.Send(sendCtx, conv, chat.Draft{Body: body}); err != nil {
		var uploadErr *chat.UploadError
		var persistErr *chat.PersistenceError
		switch {
		case errors.Is(err, chat.ErrEmptyDraft):
			fmt.Println("nothing to send")
		case errors.As(err, &uploadErr):
			fmt.Println("image upload failed, message not sent:", uploadErr.Err)
		case errors.As(err, &persistErr):
			fmt.Println("send failed:", persistErr.Err)
		default:
			fmt.Println("send failed:", err)
		}
	}
}

func (u *cli) markRead(ctx context.Context) {
	key := u.conversations.Selected()
	if key == "" {
		fmt.Println("no conversation open")
		return
	}
	u.conversations.MarkRead(key)
	if err := u.pipeline.Persistence.MarkConversationRead(ctx, key, u.userID); err != nil {
		fmt.Println("read state not persisted:", err)
	}
}

func (u *cli) deleteMessage(ctx context.Context, messageID string) {
	key := u.conversations.Selected()
	if key == "" || messageID == "" {
		fmt.Println("usage: open a conversation, then /del <message-id>")
		return
	}
	if err := u.pipeline.Delete(ctx, key, messageID); err != nil {
		fmt.Println("delete failed:", err)
	}
}
