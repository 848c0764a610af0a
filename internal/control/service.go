package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/chatstate"
	"github.com/matheus3301/chatsync/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

var errInvalidRequest = errors.New("invalid request")

// Account signs the session in and out.
type Account interface {
	Login(ctx context.Context, token string) (auth.Identity, error)
	Logout(ctx context.Context) error
	Identity() auth.Identity
}

// Presence answers on-demand presence queries.
type Presence interface {
	Query(ctx context.Context, userID string) (bool, error)
}

// Directory searches the user directory.
type Directory interface {
	Search(ctx context.Context, query string) ([]chat.User, error)
}

// UserCounter reports the size of the local user cache.
type UserCounter interface {
	UserCount() (int64, error)
}

// Deps are the collaborators of Service.
type Deps struct {
	Session   string
	Machine   *status.Machine
	Store     *chatstate.Store
	Account   Account
	Presence  Presence
	Directory Directory
	Users     UserCounter
	Bus       *bus.Bus
	Logger    *zap.Logger
}

// Service implements ControlServer on top of the conversation store.
type Service struct {
	Deps
	startedAt time.Time
}

// NewService creates the control service.
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{Deps: d, startedAt: time.Now()}
}

var _ ControlServer = (*Service)(nil)

func decode[T any](in *structpb.Struct) (T, error) {
	var v T
	if err := fromStruct(in, &v); err != nil {
		return v, fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return v, nil
}

func required(field, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", errInvalidRequest, field)
	}
	return nil
}

func reply(op string, v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(op, err)
	}
	s, err := toStruct(v)
	if err != nil {
		return nil, toStatus(op, err)
	}
	return s, nil
}

func (s *Service) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	id := s.Account.Identity()
	resp := StatusReply{
		Session:       s.Session,
		State:         string(s.Machine.Current()),
		UserID:        id.UserID,
		ExpiresAt:     id.ExpiresAt,
		UptimeMs:      time.Since(s.startedAt).Milliseconds(),
		Active:        s.Store.Active(),
		Conversations: len(s.Store.Conversations()),
		Online:        len(s.Store.OnlineUsers()),
	}
	if s.Users != nil {
		if n, err := s.Users.UserCount(); err == nil {
			resp.CachedUsers = n
		}
	}
	return reply("get status", resp, nil)
}

func (s *Service) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode[LoginRequest](in)
	if err == nil {
		err = required("token", req.Token)
	}
	if err != nil {
		return nil, toStatus("login", err)
	}
	id, err := s.Account.Login(ctx, req.Token)
	return reply("login", LoginReply{UserID: id.UserID, ExpiresAt: id.ExpiresAt}, err)
}

func (s *Service) Logout(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.Account.Logout(ctx); err != nil {
		return nil, toStatus("logout", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) ListConversations(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap := s.Store.Snapshot()
	return reply("list conversations", ConversationsReply{Active: snap.Active, Conversations: snap.Conversations}, nil)
}

func (s *Service) messages(id string) MessagesReply {
	return MessagesReply{
		ConversationID: id,
		Pane:           s.Store.PaneState(id),
		HasMore:        s.Store.HasMore(id),
		Unread:         s.Store.Unread(id),
		Typing:         s.Store.TypingUsers(id),
		Messages:       s.Store.Messages(id),
	}
}

func (s *Service) conversationID(in *structpb.Struct) (string, error) {
	req, err := decode[ConversationRequest](in)
	if err != nil {
		return "", err
	}
	return req.ConversationID, required("conversationId", req.ConversationID)
}

func (s *Service) GetMessages(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.conversationID(in)
	if err != nil {
		return nil, toStatus("get messages", err)
	}
	return reply("get messages", s.messages(id), nil)
}

func (s *Service) SelectConversation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.conversationID(in)
	if err == nil {
		err = s.Store.SelectConversation(ctx, id)
	}
	if err != nil {
		return nil, toStatus("select conversation", err)
	}
	return reply("select conversation", s.messages(id), nil)
}

func (s *Service) Deselect(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.Store.Deselect(ctx); err != nil {
		return nil, toStatus("deselect", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) SendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode[SendRequest](in)
	if err != nil {
		return nil, toStatus("send message", err)
	}
	clientID, err := s.Store.SendMessage(ctx, chatstate.SendRequest{
		ConversationID: req.ConversationID,
		Type:           req.Type,
		Content:        req.Content,
		File:           req.File,
		ReplyTo:        req.ReplyTo,
		Mentions:       req.Mentions,
	})
	return reply("send message", SendReply{ClientID: clientID}, err)
}

func (s *Service) LoadMore(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.conversationID(in)
	if err == nil {
		err = s.Store.LoadMoreMessages(ctx, id)
	}
	if err != nil {
		return nil, toStatus("load more", err)
	}
	return reply("load more", s.messages(id), nil)
}

func (s *Service) NotifyTyping(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	id, err := s.conversationID(in)
	if err == nil {
		err = s.Store.NotifyTyping(ctx, id)
	}
	if err != nil {
		return nil, toStatus("notify typing", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) QueryPresence(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode[UserRequest](in)
	if err == nil {
		err = required("userId", req.UserID)
	}
	if err != nil {
		return nil, toStatus("query presence", err)
	}
	online, err := s.Presence.Query(ctx, req.UserID)
	return reply("query presence", PresenceReply{UserID: req.UserID, Online: online}, err)
}

func (s *Service) SearchUsers(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode[SearchRequest](in)
	if err == nil {
		err = required("query", req.Query)
	}
	if err != nil {
		return nil, toStatus("search users", err)
	}
	users, err := s.Directory.Search(ctx, req.Query)
	return reply("search users", UsersReply{Users: users}, err)
}

func (s *Service) CreateGroup(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode[CreateGroupRequest](in)
	if err != nil {
		return nil, toStatus("create group", err)
	}
	c, err := s.Store.CreateGroup(ctx, req.Name, req.Members)
	return reply("create group", ConversationReply{Conversation: c}, err)
}

func (s *Service) RenameGroup(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decode[RenameRequest](in)
	if err == nil {
		err = required("conversationId", req.ConversationID)
	}
	if err != nil {
		return nil, toStatus("rename group", err)
	}
	c, err := s.Store.RenameGroup(ctx, req.ConversationID, req.Name)
	return reply("rename group", ConversationReply{Conversation: c}, err)
}

func (s *Service) member(in *structpb.Struct) (MemberRequest, error) {
	req, err := decode[MemberRequest](in)
	if err != nil {
		return req, err
	}
	if err := required("conversationId", req.ConversationID); err != nil {
		return req, err
	}
	return req, required("userId", req.UserID)
}

func (s *Service) AddMember(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.member(in)
	if err != nil {
		return nil, toStatus("add member", err)
	}
	c, err := s.Store.AddMember(ctx, req.ConversationID, req.UserID)
	return reply("add member", ConversationReply{Conversation: c}, err)
}

func (s *Service) RemoveMember(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.member(in)
	if err != nil {
		return nil, toStatus("remove member", err)
	}
	c, err := s.Store.RemoveMember(ctx, req.ConversationID, req.UserID)
	return reply("remove member", ConversationReply{Conversation: c}, err)
}

// WatchEvents streams bus events matching the requested namespace until the
// client goes away.
func (s *Service) WatchEvents(in *structpb.Struct, stream grpc.ServerStream) error {
	req, err := decode[WatchRequest](in)
	if err != nil {
		return toStatus("watch events", err)
	}
	ch, unsub := s.Bus.Subscribe(req.Namespace, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			env := EventEnvelope{
				ID:         uuid.NewString(),
				Session:    s.Session,
				Kind:       evt.Kind,
				OccurredAt: evt.Timestamp,
			}
			if evt.Payload != nil {
				raw, err := json.Marshal(evt.Payload)
				if err != nil {
					s.Logger.Warn("unencodable event payload", zap.String("kind", evt.Kind), zap.Error(err))
					continue
				}
				env.Payload = raw
			}
			msg, err := toStruct(env)
			if err != nil {
				s.Logger.Warn("unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}
