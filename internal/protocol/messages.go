package protocol

import "time"

// Type is the one-byte discriminator that follows the length prefix of every frame.
type Type uint8

// Client to server.
const (
	TypeJoin                Type = 0x01
	TypeLeave               Type = 0x02
	TypeChat                Type = 0x03
	TypeFileUpload          Type = 0x04
	TypeFileDownloadRequest Type = 0x05
	TypePresentRequest      Type = 0x06
	TypePresentRelease      Type = 0x07
	TypeScreenFrame         Type = 0x08
	TypePrivateChat         Type = 0x09
	TypePing                Type = 0x0A
)

// Server to client.
const (
	TypeJoinAck          Type = 0x41
	TypeUserJoined       Type = 0x42
	TypeUserLeft         Type = 0x43
	TypeChatMessage      Type = 0x44
	TypeFileAvailable    Type = 0x45
	TypeFileData         Type = 0x46
	TypePresenterChanged Type = 0x47
	TypePresentResult    Type = 0x48
	TypeScreenBroadcast  Type = 0x49
	TypePrivateMessage   Type = 0x4A
	TypeError            Type = 0x4B
	TypePong             Type = 0x4C
)

var typeNames = map[Type]string{
	TypeJoin:                "join",
	TypeLeave:               "leave",
	TypeChat:                "chat",
	TypeFileUpload:          "file_upload",
	TypeFileDownloadRequest: "file_download",
	TypePresentRequest:      "present_request",
	TypePresentRelease:      "present_release",
	TypeScreenFrame:         "screen_frame",
	TypePrivateChat:         "private_chat",
	TypePing:                "ping",
	TypeJoinAck:             "join_ack",
	TypeUserJoined:          "user_joined",
	TypeUserLeft:            "user_left",
	TypeChatMessage:         "chat_message",
	TypeFileAvailable:       "file_available",
	TypeFileData:            "file_data",
	TypePresenterChanged:    "presenter_changed",
	TypePresentResult:       "present_result",
	TypeScreenBroadcast:     "screen_broadcast",
	TypePrivateMessage:      "private_message",
	TypeError:               "error",
	TypePong:                "pong",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "unknown"
}

// Message is implemented by every frame body. The set is closed: Decode only
// produces the types registered in newMessage.
type Message interface {
	Type() Type
}

type Join struct {
	Username string `json:"username"`
}

type Leave struct{}

type Chat struct {
	Body string `json:"body"`
}

type FileUpload struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Data []byte `json:"data"`
}

type FileDownloadRequest struct {
	FileID string `json:"file_id"`
}

type PresentRequest struct{}

type PresentRelease struct{}

type ScreenFrame struct {
	Data []byte `json:"data"`
}

// PrivateChat addresses a single participant by session id or username.
type PrivateChat struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type Ping struct{}

type Member struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
}

type FileInfo struct {
	FileID       string    `json:"file_id"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	UploaderID   string    `json:"uploader_id"`
	UploaderName string    `json:"uploader_name"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

type JoinAck struct {
	SessionID   string        `json:"session_id"`
	Roster      []Member      `json:"roster"`
	PresenterID string        `json:"presenter_id,omitempty"`
	Files       []FileInfo    `json:"files"`
	History     []ChatMessage `json:"history"`
}

type UserJoined struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
}

type UserLeft struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
}

type ChatMessage struct {
	SenderID  string    `json:"sender_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
	Body      string    `json:"body"`
}

type FileAvailable struct {
	FileInfo
}

type FileData struct {
	FileID string `json:"file_id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Data   []byte `json:"data"`
}

// PresenterChanged carries an empty PresenterID when the slot becomes free.
type PresenterChanged struct {
	PresenterID string `json:"presenter_id"`
	Username    string `json:"username,omitempty"`
}

type PresentResult struct {
	Granted     bool   `json:"granted"`
	Reason      string `json:"reason,omitempty"`
	PresenterID string `json:"presenter_id,omitempty"`
}

type ScreenBroadcast struct {
	SenderID string `json:"sender_id"`
	Data     []byte `json:"data"`
}

type PrivateMessage struct {
	From      string    `json:"from"`
	FromName  string    `json:"from_name"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Body      string    `json:"body"`
}

type Error struct {
	Reason string `json:"reason"`
}

type Pong struct{}

func (Join) Type() Type                { return TypeJoin }
func (Leave) Type() Type               { return TypeLeave }
func (Chat) Type() Type                { return TypeChat }
func (FileUpload) Type() Type          { return TypeFileUpload }
func (FileDownloadRequest) Type() Type { return TypeFileDownloadRequest }
func (PresentRequest) Type() Type      { return TypePresentRequest }
func (PresentRelease) Type() Type      { return TypePresentRelease }
func (ScreenFrame) Type() Type         { return TypeScreenFrame }
func (PrivateChat) Type() Type         { return TypePrivateChat }
func (Ping) Type() Type                { return TypePing }
func (JoinAck) Type() Type             { return TypeJoinAck }
func (UserJoined) Type() Type          { return TypeUserJoined }
func (UserLeft) Type() Type            { return TypeUserLeft }
func (ChatMessage) Type() Type         { return TypeChatMessage }
func (FileAvailable) Type() Type       { return TypeFileAvailable }
func (FileData) Type() Type            { return TypeFileData }
func (PresenterChanged) Type() Type    { return TypePresenterChanged }
func (PresentResult) Type() Type       { return TypePresentResult }
func (ScreenBroadcast) Type() Type     { return TypeScreenBroadcast }
func (PrivateMessage) Type() Type      { return TypePrivateMessage }
func (Error) Type() Type               { return TypeError }
func (Pong) Type() Type                { return TypePong }

func newMessage(t Type) (Message, bool) {
	switch t {
	case TypeJoin:
		return &Join{}, true
	case TypeLeave:
		return &Leave{}, true
	case TypeChat:
		return &Chat{}, true
	case TypeFileUpload:
		return &FileUpload{}, true
	case TypeFileDownloadRequest:
		return &FileDownloadRequest{}, true
	case TypePresentRequest:
		return &PresentRequest{}, true
	case TypePresentRelease:
		return &PresentRelease{}, true
	case TypeScreenFrame:
		return &ScreenFrame{}, true
	case TypePrivateChat:
		return &PrivateChat{}, true
	case TypePing:
		return &Ping{}, true
	case TypeJoinAck:
		return &JoinAck{}, true
	case TypeUserJoined:
		return &UserJoined{}, true
	case TypeUserLeft:
		return &UserLeft{}, true
	case TypeChatMessage:
		return &ChatMessage{}, true
	case TypeFileAvailable:
		return &FileAvailable{}, true
	case TypeFileData:
		return &FileData{}, true
	case TypePresenterChanged:
		return &PresenterChanged{}, true
	case TypePresentResult:
		return &PresentResult{}, true
	case TypeScreenBroadcast:
		return &ScreenBroadcast{}, true
	case TypePrivateMessage:
		return &PrivateMessage{}, true
	case TypeError:
		return &Error{}, true
	case TypePong:
		return &Pong{}, true
	}
	return nil, false
}
