package restapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend serves the REST routes from memory.
type fakeBackend struct {
	history []chat.Message
	groups  map[string]*chat.Conversation
	auth    []string
}

func setupRouter(f *fakeBackend) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		f.auth = append(f.auth, c.GetHeader("Authorization"))
		if c.GetHeader("Authorization") != "Bearer secret" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "not authorized, token failed"})
			return
		}
		c.Next()
	})
	r.GET("/api/chat", func(c *gin.Context) {
		c.JSON(http.StatusOK, []chat.Conversation{{ID: "c1", Kind: chat.Direct, Participants: []string{"u1", "u2"}}})
	})
	r.GET("/api/message/:chatId", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		offset, _ := strconv.Atoi(c.Query("offset"))
		end := max(len(f.history)-offset, 0)
		start := max(end-limit, 0)
		c.JSON(http.StatusOK, f.history[start:end])
	})
	r.POST("/api/chat/group", func(c *gin.Context) {
		var req createGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.Users) < 2 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "more than 2 users are required to form a group chat"})
			return
		}
		g := &chat.Conversation{ID: "g1", Kind: chat.Group, Name: req.Name, Participants: append([]string{"u1"}, req.Users...)}
		f.groups[g.ID] = g
		c.JSON(http.StatusOK, g)
	})
	r.PUT("/api/chat/rename", func(c *gin.Context) {
		var req renameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		g, ok := f.groups[req.ChatID]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		g.Name = req.ChatName
		c.JSON(http.StatusOK, g)
	})
	r.PUT("/api/chat/groupadd", func(c *gin.Context) {
		var req memberRequest
		_ = c.ShouldBindJSON(&req)
		g := f.groups[req.ChatID]
		g.Participants = append(g.Participants, req.UserID)
		c.JSON(http.StatusOK, g)
	})
	r.GET("/api/user", func(c *gin.Context) {
		c.JSON(http.StatusOK, []chat.User{{ID: "u2", Name: c.Query("search")}})
	})
	return r
}

func newClient(t *testing.T, token string) (*Client, *fakeBackend) {
	t.Helper()
	f := &fakeBackend{groups: map[string]*chat.Conversation{}}
	for i := 1; i <= 5; i++ {
		f.history = append(f.history, chat.Message{ID: "m" + strconv.Itoa(i), ConversationID: "c1", SenderID: "u2", Type: chat.TextMessage, Content: "x"})
	}
	srv := httptest.NewServer(setupRouter(f))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, func() string { return token }, time.Second)
	require.NoError(t, err)
	return c, f
}

func TestListConversations(t *testing.T) {
	c, f := newClient(t, "secret")
	convs, err := c.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "c1", convs[0].ID)
	assert.Equal(t, []string{"Bearer secret"}, f.auth)
}

func TestFetchMessagesPages(t *testing.T) {
	c, _ := newClient(t, "secret")
	ctx := context.Background()

	page, err := c.FetchMessages(ctx, "c1", 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m4", page[0].ID)

	page, err = c.FetchMessages(ctx, "c1", 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "m1", page[0].ID)
}

func TestGroupOperations(t *testing.T) {
	c, _ := newClient(t, "secret")
	ctx := context.Background()

	_, err := c.CreateGroup(ctx, "team", []string{"u2"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Message, "more than 2 users")

	g, err := c.CreateGroup(ctx, "team", []string{"u2", "u3"})
	require.NoError(t, err)
	assert.Equal(t, chat.Group, g.Kind)

	g, err = c.RenameGroup(ctx, g.ID, "crew")
	require.NoError(t, err)
	assert.Equal(t, "crew", g.Name)

	g, err = c.AddMember(ctx, g.ID, "u4")
	require.NoError(t, err)
	assert.True(t, g.HasParticipant("u4"))

	_, err = c.RenameGroup(ctx, "missing", "x")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "chat not found", apiErr.Message)
}

func TestUnauthorized(t *testing.T) {
	c, _ := newClient(t, "wrong")
	_, err := c.SearchUsers(context.Background(), "bob")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestSearchUsers(t *testing.T) {
	c, _ := newClient(t, "secret")
	users, err := c.SearchUsers(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Name)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com", nil, 0)
	assert.Error(t, err)
}
