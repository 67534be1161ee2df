package client

import (
	"context"

	"github.com/zeusync/otsync/internal/domain/chatroom"
	"github.com/zeusync/otsync/internal/domain/contacts"
	"github.com/zeusync/otsync/internal/domain/documents"
	"github.com/zeusync/otsync/internal/domain/profile"
	"github.com/zeusync/otsync/internal/domain/rooms"
)

type (
	ChatSession     = Session[chatroom.Operation, *chatroom.State, *chatroom.Service]
	ContactsSession = Session[contacts.Operation, *contacts.State, *contacts.Service]
	ProfileSession  = Session[profile.Operation, *profile.State, *profile.Service]
	RoomsSession    = Session[rooms.Operation, *rooms.State, *rooms.Service]
	TextSession     = Session[documents.Operation, *documents.State, *documents.TextService]
	LibrarySession  = Session[documents.ListOp, *documents.ListState, *documents.ListService]
)

// Document ids of each domain.
func ChatID(room string) string      { return "chatroom:" + room }
func ContactsID(owner string) string { return "contacts:" + owner }
func ProfileID(owner string) string  { return "profile:" + owner }
func RoomsID(owner string) string    { return "rooms:" + owner }
func TextID(document string) string  { return "text:" + document }
func LibraryID(owner string) string  { return "documents:" + owner }

// Chat opens the chat of room as the user publicKey reachable at peerID.
func (c *Client) Chat(ctx context.Context, room, publicKey, peerID string) (*ChatSession, error) {
	m, err := Open[chatroom.Operation, *chatroom.State](ctx, c, ChatID(room), chatroom.NewSystem(), chatroom.Codec{}, chatroom.NewState)
	if err != nil {
		return nil, err
	}
	return &ChatSession{Doc: m, Service: chatroom.NewService(m, publicKey, peerID)}, nil
}

// Contacts opens the address book of owner.
func (c *Client) Contacts(ctx context.Context, owner string) (*ContactsSession, error) {
	m, err := Open[contacts.Operation, *contacts.State](ctx, c, ContactsID(owner), contacts.NewSystem(), contacts.Codec{}, contacts.NewState)
	if err != nil {
		return nil, err
	}
	return &ContactsSession{Doc: m, Service: contacts.NewService(m)}, nil
}

// Profile opens the profile of owner.
func (c *Client) Profile(ctx context.Context, owner string) (*ProfileSession, error) {
	m, err := Open[profile.Operation, *profile.State](ctx, c, ProfileID(owner), profile.NewSystem(), profile.Codec{}, profile.NewState)
	if err != nil {
		return nil, err
	}
	return &ProfileSession{Doc: m, Service: profile.NewService(m)}, nil
}

// Rooms opens the room list of owner.
func (c *Client) Rooms(ctx context.Context, owner string) (*RoomsSession, error) {
	m, err := Open[rooms.Operation, *rooms.State](ctx, c, RoomsID(owner), rooms.NewSystem(), rooms.Codec{}, rooms.NewState)
	if err != nil {
		return nil, err
	}
	return &RoomsSession{Doc: m, Service: rooms.NewService(m, owner)}, nil
}

// Text opens the text of document. origin identifies this writer when two
// inserts land at the same position.
func (c *Client) Text(ctx context.Context, document, origin string) (*TextSession, error) {
	m, err := Open[documents.Operation, *documents.State](ctx, c, TextID(document), documents.NewSystem(), documents.Codec{}, documents.NewState)
	if err != nil {
		return nil, err
	}
	return &TextSession{Doc: m, Service: documents.NewTextService(m, origin)}, nil
}

// Library opens the list of documents shared with owner.
func (c *Client) Library(ctx context.Context, owner string) (*LibrarySession, error) {
	m, err := Open[documents.ListOp, *documents.ListState](ctx, c, LibraryID(owner), documents.NewListSystem(), documents.ListCodec{}, documents.NewListState)
	if err != nil {
		return nil, err
	}
	return &LibrarySession{Doc: m, Service: documents.NewListService(m)}, nil
}
