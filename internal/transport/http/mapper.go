package http

import (
	"encoding/json"
	"time"

	"github.com/skillguru/chat-server/internal/core"
	"github.com/skillguru/chat-server/internal/proto"
	"github.com/skillguru/chat-server/internal/store"
)

// inboundToCommand decodes an inbound frame into a core command. A schema
// violation yields a protocol error for the client instead of a command; the
// connection stays alive either way.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.ErrorPayload) {
	switch inbound.Type {
	case proto.InboundTypeJoinRoom, proto.InboundTypeLeaveRoom:
		var data proto.JoinRoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, malformed("invalid join/leave payload")
		}
		if data.RoomID == "" {
			return nil, &proto.ErrorPayload{Code: core.ErrCodeBadRequest, Message: "room_id is required"}
		}
		kind := core.CommandJoinRoom
		if inbound.Type == proto.InboundTypeLeaveRoom {
			kind = core.CommandLeaveRoom
		}
		return &core.Command{Kind: kind, Room: data.RoomID}, nil

	case proto.InboundTypeMessage:
		var data proto.MessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, malformed("invalid message payload")
		}
		if data.RoomID == "" {
			return nil, &proto.ErrorPayload{Code: core.ErrCodeBadRequest, Message: "room_id is required"}
		}
		return &core.Command{
			Kind: core.CommandSendMessage,
			Room: data.RoomID,
			Draft: core.Draft{
				Content:     data.Content,
				Type:        messageType(data.MessageType),
				ReplyTo:     data.ReplyTo,
				Mentions:    data.Mentions,
				Attachments: attachmentsFromData(data.Attachments),
			},
		}, nil

	case proto.InboundTypeTyping:
		var data proto.TypingData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, malformed("invalid typing payload")
		}
		if data.RoomID == "" {
			return nil, &proto.ErrorPayload{Code: core.ErrCodeBadRequest, Message: "room_id is required"}
		}
		return &core.Command{Kind: core.CommandSetTyping, Room: data.RoomID, Typing: data.IsTyping}, nil

	case proto.InboundTypePing:
		return &core.Command{Kind: core.CommandPing}, nil

	default:
		return nil, malformed("unknown message type")
	}
}

func malformed(msg string) *proto.ErrorPayload {
	return &proto.ErrorPayload{Code: core.ErrCodeMalformedInput, Message: msg}
}

func messageType(s string) store.MessageType {
	switch store.MessageType(s) {
	case store.MessageTypeImage, store.MessageTypeFile, store.MessageTypeSystem:
		return store.MessageType(s)
	default:
		return store.MessageTypeText
	}
}

// outboundFromEvent converts a core event into the wire envelope.
func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessage:
		return proto.Outbound{
			Type: proto.OutboundTypeMessage,
			Data: messagePayload(event.Message),
		}
	case core.EventRecentMessages:
		messages := make([]proto.MessagePayload, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, messagePayload(msg))
		}
		return proto.Outbound{
			Type: proto.OutboundTypeRecentMessages,
			Data: proto.RecentMessagesPayload{RoomID: event.Room, Messages: messages},
		}
	case core.EventUserJoined:
		return proto.Outbound{
			Type: proto.OutboundTypeUserJoined,
			Data: proto.PresencePayload{RoomID: event.Room, UserID: event.User, Username: event.Username},
		}
	case core.EventUserLeft:
		return proto.Outbound{
			Type: proto.OutboundTypeUserLeft,
			Data: proto.PresencePayload{RoomID: event.Room, UserID: event.User, Username: event.Username},
		}
	case core.EventTyping:
		return proto.Outbound{
			Type: proto.OutboundTypeTyping,
			Data: proto.TypingPayload{RoomID: event.Room, UserID: event.User, IsTyping: event.Typing},
		}
	case core.EventPong:
		return proto.Outbound{
			Type: proto.OutboundTypePong,
			Data: proto.PongPayload{Timestamp: event.At.UTC().Format(time.RFC3339Nano)},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{
				Type: proto.OutboundTypeError,
				Data: proto.ErrorPayload{Code: "unknown", Message: "unknown error"},
			}
		}
		return proto.Outbound{
			Type: proto.OutboundTypeError,
			Data: proto.ErrorPayload{Code: event.Error.Code, Message: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Data: proto.ErrorPayload{Code: "unknown", Message: "unknown event"}}
	}
}

func messagePayload(m *store.Message) proto.MessagePayload {
	if m == nil {
		return proto.MessagePayload{}
	}
	return proto.MessagePayload{
		MessageID:   m.ID,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		Content:     m.Content,
		MessageType: string(m.Type),
		Timestamp:   m.CreatedAt.UTC().Format(time.RFC3339Nano),
		IsEdited:    m.Edited,
		IsDeleted:   m.Deleted,
		ReplyTo:     m.ReplyTo,
		Mentions:    emptyIfNil(m.Mentions),
		Attachments: attachmentsToData(m.Attachments),
		Reactions:   reactionsToData(m.Reactions),
	}
}

func attachmentsFromData(in []proto.AttachmentData) []store.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]store.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, store.Attachment{URL: a.URL, Name: a.Name, MimeType: a.MimeType, Size: a.Size})
	}
	return out
}

func attachmentsToData(in []store.Attachment) []proto.AttachmentData {
	out := make([]proto.AttachmentData, 0, len(in))
	for _, a := range in {
		out = append(out, proto.AttachmentData{URL: a.URL, Name: a.Name, MimeType: a.MimeType, Size: a.Size})
	}
	return out
}

func reactionsToData(in []store.Reaction) []proto.ReactionData {
	out := make([]proto.ReactionData, 0, len(in))
	for _, r := range in {
		out = append(out, proto.ReactionData{UserID: r.UserID, Emoji: r.Emoji})
	}
	return out
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
