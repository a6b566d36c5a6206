package connector

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramPlatform is the Telegram-style Connector Router implementation,
// and the domain stack wiring of
// go-telegram-bot-api.
type telegramPlatform struct {
	id string
	bot *tgbotapi.BotAPI
	sink InboundSink

	mu sync.Mutex
	cancel context.CancelFunc
}

// NewTelegramPlatform constructs a telegram Platform. It satisfies the
// Factory signature the Router's typed-factory table expects.
func NewTelegramPlatform(id string, credentials map[string]string, settings map[string]interface{}, sink InboundSink) (Platform, error) {
	token:= credentials["token"]
	if token == "" {
		return nil, fmt.Errorf("telegram connector %s: missing credentials.token", id)
	}
	bot, err:= tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connector %s: %w", id, err)
	}
	return &telegramPlatform{id: id, bot: bot, sink: sink}, nil
}

func (p *telegramPlatform) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := p.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				p.handleUpdate(runCtx, update)
			}
		}
	}()
	return nil
}

func (p *telegramPlatform) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.bot.StopReceivingUpdates()
	return nil
}

func (p *telegramPlatform) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		cb:= update.CallbackQuery
		p.sink.HandleInbound(ctx, InboundMessage{
				ConnectorID: p.id,
				ChannelID: strconv.FormatInt(cb.Message.Chat.ID, 10),
				UserID: strconv.FormatInt(cb.From.ID, 10),
				ButtonCallback: cb.Data,
		})
		ack:= tgbotapi.NewCallback(cb.ID, "")
		_, _ = p.bot.Request(ack)
		return
	}
	if update.Message == nil {
		return
	}
	msg:= update.Message
	var attachments []Attachment
	if photos:= msg.Photo; len(photos) > 0 {
		largest:= photos[len(photos)-1]
		if path, err:= p.download(largest.FileID); err == nil {
			attachments = append(attachments, Attachment{LocalPath: path, Kind: MediaPhoto})
		}
	}
	if doc:= msg.Document; doc != nil {
		if path, err:= p.download(doc.FileID); err == nil {
			attachments = append(attachments, Attachment{LocalPath: path, FileName: doc.FileName, Kind: MediaDocument})
		}
	}
	p.sink.HandleInbound(ctx, InboundMessage{
			ConnectorID: p.id,
			ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
			UserID: strconv.FormatInt(msg.From.ID, 10),
			Text: msg.Text,
			Attachments: attachments,
	})
}

func (p *telegramPlatform) download(fileID string) (string, error) {
	file, err:= p.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", err
	}
	return downloadAttachment(file.Link(p.bot.Token), "")
}

func (p *telegramPlatform) SendText(ctx context.Context, channelID, text string, buttons []Button) error {
	chatID, err:= strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid channel id %q: %w", channelID, err)
	}
	msg:= tgbotapi.NewMessage(chatID, text)
	if len(buttons) > 0 {
		row:= make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
		for _, b:= range buttons {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.CallbackID))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}
	_, err = p.bot.Send(msg)
	return err
}

func (p *telegramPlatform) SendMedia(ctx context.Context, channelID, path string, kind MediaKind) error {
	chatID, err:= strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid channel id %q: %w", channelID, err)
	}
	file:= tgbotapi.FilePath(path)
	switch kind {
		case MediaPhoto:
		_, err = p.bot.Send(tgbotapi.NewPhoto(chatID, file))
		case MediaVideo:
		_, err = p.bot.Send(tgbotapi.NewVideo(chatID, file))
		case MediaAudio:
		_, err = p.bot.Send(tgbotapi.NewAudio(chatID, file))
		default:
		_, err = p.bot.Send(tgbotapi.NewDocument(chatID, file))
	}
	return err
}

func (p *telegramPlatform) ListChannels(ctx context.Context) ([]Channel, error) {
	// The Bot API exposes no "list all chats the bot is in" endpoint;
	// channels become known to the router as they send an inbound
	// message, so binding UX discovers them reactively instead.
	return nil, nil
}

func (p *telegramPlatform) ValidateChannel(ctx context.Context, channelID string) (bool, error) {
	chatID, err:= strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return false, nil
	}
	_, err = p.bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}})
	return err == nil, nil
}
