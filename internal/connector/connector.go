// Package connector implements the Connector Router from section
// 4.9: a uniform contract every chat platform implements, plus the
// routing rules that turn inbound platform traffic into Agent Manager
// calls and agent transitions into outbound platform notifications.
package connector

import (
	"context"
)

// MediaKind is the closed set of attachment kinds send_media accepts.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaAudio MediaKind = "audio"
)

// Button is one reply-keyboard action a platform may render alongside a
// text message, e.g. approve/reject/interrupt on a waiting_input notice.
type Button struct {
	Label string
	CallbackID string
}

// Channel describes one chat surface a connector can send to, for
// binding UX (the list_channels).
type Channel struct {
	ID string
	Name string
	Kind string
}

// InboundMessage is what a connector pushes into the router when a
// platform event arrives.
type InboundMessage struct {
	ConnectorID string
	ChannelID string
	UserID string
	Text string
	Attachments []Attachment
	ButtonCallback string
}

// Attachment is one inbound file a connector has already fetched into a
// local temp path, awaiting staging into the target workspace's.media/.
type Attachment struct {
	LocalPath string
	FileName string
	Kind MediaKind
}

// Platform is the uniform contract every chat platform implements, per
// the capability interface.
type Platform interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, channelID, text string, buttons []Button) error
	SendMedia(ctx context.Context, channelID, path string, kind MediaKind) error
	ListChannels(ctx context.Context) ([]Channel, error)
	ValidateChannel(ctx context.Context, channelID string) (bool, error)
}

// InboundSink is implemented by the Router; connectors call it for every
// message they receive from the platform, regardless of transport
// (webhook push vs. long-poll).
type InboundSink interface {
	HandleInbound(ctx context.Context, msg InboundMessage)
}

// Factory constructs a Platform from connector credentials/settings. Kept
// narrow so each concrete connector only needs to satisfy this to be
// pluggable into the Router's typed-factory table (the
	// "Heterogeneous connectors" pattern).
type Factory func(id string, credentials map[string]string, settings map[string]interface{}, sink InboundSink) (Platform, error)
