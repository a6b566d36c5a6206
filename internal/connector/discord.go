package connector

import (
	"context"
	"fmt"
	"os"

	"github.com/bwmarrin/discordgo"
)

// discordPlatform is the Discord-style Connector Router implementation,
// proving the uniform Platform contract against a gateway-with-components
// SDK rather than Telegram's polling-with-buttons one.
type discordPlatform struct {
	id      string
	session *discordgo.Session
	sink    InboundSink
}

// NewDiscordPlatform constructs a discord Platform, satisfying Factory.
func NewDiscordPlatform(id string, credentials map[string]string, settings map[string]interface{}, sink InboundSink) (Platform, error) {
	token := credentials["bot_token"]
	if token == "" {
		return nil, fmt.Errorf("discord connector %s: missing credentials.bot_token", id)
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord connector %s: %w", id, err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	p := &discordPlatform{id: id, session: session, sink: sink}
	session.AddHandler(p.onMessageCreate)
	session.AddHandler(p.onInteractionCreate)
	return p, nil
}

func (p *discordPlatform) Start(ctx context.Context) error {
	return p.session.Open()
}

func (p *discordPlatform) Stop(ctx context.Context) error {
	return p.session.Close()
}

func (p *discordPlatform) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	var attachments []Attachment
	for _, att := range m.Attachments {
		path, err := downloadAttachment(att.URL, att.Filename)
		if err != nil {
			continue
		}
		attachments = append(attachments, Attachment{LocalPath: path, FileName: att.Filename, Kind: classifyAttachment(att.ContentType)})
	}
	p.sink.HandleInbound(context.Background(), InboundMessage{
		ConnectorID: p.id,
		ChannelID:   m.ChannelID,
		UserID:      m.Author.ID,
		Text:        m.Content,
		Attachments: attachments,
	})
}

func (p *discordPlatform) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate})
	p.sink.HandleInbound(context.Background(), InboundMessage{
		ConnectorID:    p.id,
		ChannelID:      i.ChannelID,
		UserID:         i.Member.User.ID,
		ButtonCallback: i.MessageComponentData().CustomID,
	})
}

func (p *discordPlatform) SendText(ctx context.Context, channelID, text string, buttons []Button) error {
	if len(buttons) == 0 {
		_, err := p.session.ChannelMessageSend(channelID, text)
		return err
	}
	row := discordgo.ActionsRow{}
	for _, b := range buttons {
		row.Components = append(row.Components, discordgo.Button{Label: b.Label, Style: discordgo.PrimaryButton, CustomID: b.CallbackID})
	}
	_, err := p.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    text,
		Components: []discordgo.MessageComponent{row},
	})
	return err
}

func (p *discordPlatform) SendMedia(ctx context.Context, channelID, path string, kind MediaKind) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = p.session.ChannelFileSend(channelID, path, f)
	return err
}

func (p *discordPlatform) ListChannels(ctx context.Context) ([]Channel, error) {
	var out []Channel
	for _, guild := range p.session.State.Guilds {
		channels, err := p.session.GuildChannels(guild.ID)
		if err != nil {
			continue
		}
		for _, ch := range channels {
			if ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			out = append(out, Channel{ID: ch.ID, Name: ch.Name, Kind: "text"})
		}
	}
	return out, nil
}

func (p *discordPlatform) ValidateChannel(ctx context.Context, channelID string) (bool, error) {
	_, err := p.session.Channel(channelID)
	return err == nil, nil
}

func classifyAttachment(contentType string) MediaKind {
	switch {
	case len(contentType) >= 5 && contentType[:5] == "image":
		return MediaPhoto
	case len(contentType) >= 5 && contentType[:5] == "video":
		return MediaVideo
	case len(contentType) >= 5 && contentType[:5] == "audio":
		return MediaAudio
	default:
		return MediaDocument
	}
}
