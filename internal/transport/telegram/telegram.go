package telegram

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "webnotifier/internal/transport"
	logx "webnotifier/pkg/logx"
)

type Config struct {
	Token string
	// Timeout bounds a single Bot API call.
	Timeout time.Duration
	// APIURL overrides the Bot API base URL (tests, self-hosted bot API).
	APIURL string
}

// Sender delivers messages through the Telegram Bot API (sendMessage).
// It never polls for updates.
type Sender struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

// recipient addresses a chat by "@username" or numeric id.
type recipient string

func (r recipient) Recipient() string { return string(r) }

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  strings.TrimSpace(cfg.Token),
		URL:    strings.TrimSpace(cfg.APIURL),
		Client: &http.Client{Timeout: timeout},
		// Offline skips the getMe round-trip; a bad token surfaces as failed
		// deliveries instead of aborting the run.
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{cfg: cfg, log: log, bot: b}, nil
}

const telegramTextLimit = 4000

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries and (best-effort) avoids splitting inside HTML tags when ParseMode is HTML.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			cut := -1
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' {
					// Avoid extremely small chunks.
					if i-start >= limit/3 {
						cut = i + 1
						break
					}
				}
			}
			if cut != -1 {
				end = cut
			}
		}

		if end < len(rs) {
			end = adjustForMarkup(rs, start, end, parseMode)
		}

		chunk := string(rs[start:end])
		chunk = strings.TrimRight(chunk, "\n")
		out = append(out, chunk)

		start = end
		// Skip leading newlines to avoid empty chunks.
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// adjustForMarkup moves end back so an HTML tag or entity is not cut in half.
func adjustForMarkup(rs []rune, start, end int, parseMode string) int {
	if !strings.EqualFold(parseMode, tele.ModeHTML) {
		return end
	}
	lastOpen, lastClose, lastAmp, lastSemi := -1, -1, -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			lastOpen = i
		case '>':
			lastClose = i
		case '&':
			lastAmp = i
		case ';':
			lastSemi = i
		}
	}
	if lastOpen > lastClose && lastOpen > start+1 {
		end = lastOpen
	}
	if lastAmp > lastSemi && lastAmp > start+1 && lastAmp < end {
		end = lastAmp
	}
	return end
}

func (s *Sender) target(to kit.ChatTarget) tele.Recipient {
	if u := strings.TrimSpace(to.Username); u != "" {
		if !strings.HasPrefix(u, "@") {
			u = "@" + u
		}
		return recipient(u)
	}
	return recipient(strconv.FormatInt(to.ChatID, 10))
}

func (s *Sender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if to.IsZero() {
		return kit.MessageRef{}, errors.New("telegram: empty chat target")
	}

	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	rcpt := s.target(to)

	// Chunks go out in order and a failure stops the rest. Chunks already
	// delivered stay in the chat, so retrying the same text repeats them.
	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}

		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}

		msg, err := s.send(ctx, rcpt, chunk, sendOpt)
		if err != nil {
			if i > 0 {
				s.log.Debug("message partially sent", logx.Int("chunks_sent", i), logx.Int("chunks", len(chunks)))
			}
			return first, err
		}

		if i == 0 {
			first = kit.MessageRef{ThreadID: to.ThreadID, MessageID: msg.ID}
			if msg.Chat != nil {
				first.ChatID = msg.Chat.ID
			}
		}
	}

	s.log.Trace("message sent", logx.Int("chunks", len(chunks)), logx.Int("message_id", first.MessageID))
	return first, nil
}

// send performs one sendMessage call. telebot's Send takes no context, so
// the call runs in its own goroutine and ctx bounds only the wait: the
// caller gets ctx.Err() as soon as ctx ends, while the request itself is
// still limited by Config.Timeout. The effective bound is the smaller of
// the two. A request abandoned this way may still reach the chat.
func (s *Sender) send(ctx context.Context, rcpt tele.Recipient, text string, opt *tele.SendOptions) (*tele.Message, error) {
	type result struct {
		msg *tele.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := s.bot.Send(rcpt, text, opt)
		done <- result{msg, err}
	}()
	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
