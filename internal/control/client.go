package control

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/matheus3301/chatsync/internal/chat"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client talks to a session daemon over its Unix domain socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (Resp, error) {
	var resp Resp
	var in proto.Message = &emptypb.Empty{}
	if req != nil {
		s, err := toStruct(req)
		if err != nil {
			return resp, err
		}
		in = s
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return resp, err
	}
	if err := fromStruct(out, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

func (c *Client) invokeEmpty(ctx context.Context, method string, req any) error {
	var in proto.Message = &emptypb.Empty{}
	if req != nil {
		s, err := toStruct(req)
		if err != nil {
			return err
		}
		in = s
	}
	return c.conn.Invoke(ctx, fullMethod(method), in, &emptypb.Empty{})
}

func (c *Client) Status(ctx context.Context) (StatusReply, error) {
	return invoke[StatusReply](ctx, c, "GetStatus", nil)
}

func (c *Client) Login(ctx context.Context, token string) (LoginReply, error) {
	return invoke[LoginReply](ctx, c, "Login", LoginRequest{Token: token})
}

func (c *Client) Logout(ctx context.Context) error {
	return c.invokeEmpty(ctx, "Logout", nil)
}

func (c *Client) Conversations(ctx context.Context) (ConversationsReply, error) {
	return invoke[ConversationsReply](ctx, c, "ListConversations", nil)
}

func (c *Client) Messages(ctx context.Context, conversationID string) (MessagesReply, error) {
	return invoke[MessagesReply](ctx, c, "GetMessages", ConversationRequest{ConversationID: conversationID})
}

func (c *Client) Select(ctx context.Context, conversationID string) (MessagesReply, error) {
	return invoke[MessagesReply](ctx, c, "SelectConversation", ConversationRequest{ConversationID: conversationID})
}

func (c *Client) Deselect(ctx context.Context) error {
	return c.invokeEmpty(ctx, "Deselect", nil)
}

func (c *Client) Send(ctx context.Context, req SendRequest) (SendReply, error) {
	return invoke[SendReply](ctx, c, "SendMessage", req)
}

func (c *Client) LoadMore(ctx context.Context, conversationID string) (MessagesReply, error) {
	return invoke[MessagesReply](ctx, c, "LoadMore", ConversationRequest{ConversationID: conversationID})
}

func (c *Client) Typing(ctx context.Context, conversationID string) error {
	return c.invokeEmpty(ctx, "NotifyTyping", ConversationRequest{ConversationID: conversationID})
}

func (c *Client) Presence(ctx context.Context, userID string) (PresenceReply, error) {
	return invoke[PresenceReply](ctx, c, "QueryPresence", UserRequest{UserID: userID})
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]chat.User, error) {
	resp, err := invoke[UsersReply](ctx, c, "SearchUsers", SearchRequest{Query: query})
	return resp.Users, err
}

func (c *Client) CreateGroup(ctx context.Context, name string, members []string) (chat.Conversation, error) {
	resp, err := invoke[ConversationReply](ctx, c, "CreateGroup", CreateGroupRequest{Name: name, Members: members})
	return resp.Conversation, err
}

func (c *Client) RenameGroup(ctx context.Context, conversationID, name string) (chat.Conversation, error) {
	resp, err := invoke[ConversationReply](ctx, c, "RenameGroup", RenameRequest{ConversationID: conversationID, Name: name})
	return resp.Conversation, err
}

func (c *Client) AddMember(ctx context.Context, conversationID, userID string) (chat.Conversation, error) {
	resp, err := invoke[ConversationReply](ctx, c, "AddMember", MemberRequest{ConversationID: conversationID, UserID: userID})
	return resp.Conversation, err
}

func (c *Client) RemoveMember(ctx context.Context, conversationID, userID string) (chat.Conversation, error) {
	resp, err := invoke[ConversationReply](ctx, c, "RemoveMember", MemberRequest{ConversationID: conversationID, UserID: userID})
	return resp.Conversation, err
}

// Watch streams daemon events whose kind starts with namespace and calls fn
// for each one. It returns when ctx is done, the stream ends, or fn fails.
func (c *Client) Watch(ctx context.Context, namespace string, fn func(EventEnvelope) error) error {
	req, err := toStruct(WatchRequest{Namespace: namespace})
	if err != nil {
		return err
	}
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("WatchEvents"))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := &structpb.Struct{}
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		var env EventEnvelope
		if err := fromStruct(msg, &env); err != nil {
			return err
		}
		if err := fn(env); err != nil {
			return err
		}
	}
}
