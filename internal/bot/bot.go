// Package bot is the Telegram front end: it answers commands and turns each
// shared post link into a photo or video reply.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"postfetch/internal/logging"
	"postfetch/internal/media"
	"postfetch/internal/resolve"
)

// Telegram rejects media captions longer than this.
const maxCaption = 1024

const welcomeText = `Welcome to postfetch!

I download photos and videos from:
Instagram
Facebook
LinkedIn

Send me a link to a public post and I'll reply with its media.

Commands:
/start - Show this welcome message
/help - Usage instructions
/status - Service status`

const helpText = `How to use this bot:

1. Copy the link of an Instagram post, reel or story, a Facebook post or video, or a LinkedIn post.
2. Send the link here.
3. Wait a few moments for the media to arrive.

Notes:
- Only public content can be downloaded.
- Large files take longer.
- Content protected by privacy settings cannot be fetched.`

// Sender is the part of the Telegram API the bot talks to. *tgbotapi.BotAPI
// satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Resolver turns links into stored media.
type Resolver interface {
	Resolve(ctx context.Context, req resolve.Request) *resolve.Result
	Release(res *resolve.Result) error
	Status() (resolve.Status, error)
}

// Bot dispatches incoming messages.
type Bot struct {
	sender   Sender
	resolver Resolver
	log      *zap.Logger
	wg       sync.WaitGroup
}

// New returns a Bot.
func New(sender Sender, resolver Resolver, log *zap.Logger) *Bot {
	return &Bot{sender: sender, resolver: resolver, log: logging.OrNop(log).Named("bot")}
}

// Run handles updates until ctx ends or the channel closes, one goroutine
// per message, and waits for in-flight messages before returning.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Message == nil {
				continue
			}
			b.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer b.wg.Done()
				b.HandleMessage(ctx, msg)
			}(u.Message)
		}
	}
}

// HandleMessage processes one message synchronously.
func (b *Bot) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.reply(chatID, welcomeText)
			b.log.Info("user started bot", zap.String("user", userName(msg)))
		case "help":
			b.reply(chatID, helpText)
		case "status":
			b.reply(chatID, b.statusText())
		default:
			b.reply(chatID, "Unknown command. Try /start, /help or /status.")
		}
		return
	}

	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	b.handleLink(ctx, msg)
}

func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	log := b.log.With(zap.String("user", userName(msg)), zap.Int64("chat_id", chatID))

	// The notice goes out only once the request is admitted and the link is
	// recognised.
	notice := 0
	started := func(p media.Platform) {
		sent, err := b.sender.Send(tgbotapi.NewMessage(chatID,
			fmt.Sprintf("Processing your %s link...\nThis may take a few moments.", p.DisplayName())))
		if err == nil {
			notice = sent.MessageID
		}
	}

	res := b.resolver.Resolve(ctx, resolve.Request{Text: msg.Text, UserID: userID(msg), Started: started})

	if notice != 0 {
		if _, err := b.sender.Request(tgbotapi.NewDeleteMessage(chatID, notice)); err != nil {
			log.Debug("deleting processing notice", zap.Error(err))
		}
	}

	if !res.Success {
		log.Info("request failed", zap.String("request_id", res.RequestID), zap.String("code", string(res.Code)))
		b.reply(chatID, res.Message)
		return
	}
	defer func() {
		if err := b.resolver.Release(res); err != nil {
			log.Warn("removing delivered file", zap.String("path", res.FilePath), zap.Error(err))
		}
	}()

	if err := b.sendMedia(chatID, res); err != nil {
		log.Error("sending media", zap.String("request_id", res.RequestID), zap.Error(err))
		b.reply(chatID, "Sorry, the media was downloaded but could not be sent. It may be too large for Telegram.")
		return
	}
	log.Info("media delivered",
		zap.String("request_id", res.RequestID),
		zap.Stringer("platform", res.Platform),
		zap.String("size", humanize.Bytes(uint64(res.SizeBytes))),
	)
}

func (b *Bot) sendMedia(chatID int64, res *resolve.Result) error {
	caption := Caption(res)
	file := tgbotapi.FilePath(res.FilePath)

	if res.Kind == media.Video {
		_, _ = b.sender.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadVideo))
		v := tgbotapi.NewVideo(chatID, file)
		v.Caption = caption
		v.SupportsStreaming = true
		_, err := b.sender.Send(v)
		return err
	}

	_, _ = b.sender.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadPhoto))
	p := tgbotapi.NewPhoto(chatID, file)
	p.Caption = caption
	_, err := b.sender.Send(p)
	return err
}

// Caption returns the text sent with delivered media: the post's caption,
// or a note naming the platform, cut to Telegram's limit.
func Caption(res *resolve.Result) string {
	c := strings.TrimSpace(res.Caption)
	if c == "" {
		return "Downloaded from " + res.Platform.DisplayName()
	}
	if utf8.RuneCountInString(c) > maxCaption {
		c = string([]rune(c)[:maxCaption-1]) + "…"
	}
	return c
}

func (b *Bot) statusText() string {
	st, err := b.resolver.Status()
	if err != nil {
		b.log.Warn("collecting status", zap.Error(err))
		return "Bot is running, but storage statistics are unavailable."
	}

	var sb strings.Builder
	sb.WriteString("Bot is running.\n")
	fmt.Fprintf(&sb, "Pending files: %d (%s)\n", st.Store.Files, humanize.Bytes(uint64(st.Store.TotalBytes)))
	if st.LimitEnabled {
		fmt.Fprintf(&sb, "Active users: %d of %d tracked", st.Limiter.ActiveUsers, st.Limiter.TrackedUsers)
	} else {
		sb.WriteString("Rate limiting is off")
	}
	return sb.String()
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Warn("sending reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func userID(msg *tgbotapi.Message) string {
	if msg.From != nil {
		return strconv.FormatInt(msg.From.ID, 10)
	}
	return strconv.FormatInt(msg.Chat.ID, 10)
}

func userName(msg *tgbotapi.Message) string {
	if msg.From == nil {
		return ""
	}
	if msg.From.UserName != "" {
		return msg.From.UserName
	}
	return msg.From.FirstName
}
