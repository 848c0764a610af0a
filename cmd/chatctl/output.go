package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/control"
)

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printStatus(w io.Writer, st control.StatusReply) error {
	if jsonFlag {
		return outputJSON(w, st)
	}
	user := st.UserID
	if user == "" {
		user = "(signed out)"
	}
	fmt.Fprintf(w, "Session:       %s\n", st.Session)
	fmt.Fprintf(w, "Connection:    %s\n", st.State)
	fmt.Fprintf(w, "User:          %s\n", user)
	if !st.ExpiresAt.IsZero() {
		fmt.Fprintf(w, "Token expires: %s\n", st.ExpiresAt.Local().Format(time.RFC1123))
	}
	fmt.Fprintf(w, "Conversations: %d\n", st.Conversations)
	if st.Active != "" {
		fmt.Fprintf(w, "Active:        %s\n", st.Active)
	}
	fmt.Fprintf(w, "Online users:  %d\n", st.Online)
	fmt.Fprintf(w, "Uptime:        %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
	return nil
}

func printConversations(w io.Writer, resp control.ConversationsReply) error {
	if jsonFlag {
		return outputJSON(w, resp)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "\tID\tNAME\tKIND\tUNREAD\tLAST MESSAGE")
	for _, c := range resp.Conversations {
		marker := ""
		if c.ID == resp.Active {
			marker = "*"
		}
		name := c.Name
		if name == "" {
			name = strings.Join(c.Participants, ", ")
		}
		last := ""
		if c.LatestMessage != nil {
			last = c.LatestMessage.Preview()
		}
		if len(c.Typing) > 0 {
			last = strings.Join(c.Typing, ", ") + " typing..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", marker, c.ID, name, c.Kind, c.Unread, last)
	}
	return tw.Flush()
}

func printMessages(w io.Writer, resp control.MessagesReply) error {
	if jsonFlag {
		return outputJSON(w, resp)
	}
	if resp.HasMore && len(resp.Messages) > 0 {
		fmt.Fprintln(w, "(older messages available: chatctl more "+resp.ConversationID+")")
	}
	for _, m := range resp.Messages {
		fmt.Fprintln(w, formatMessage(m))
	}
	if len(resp.Typing) > 0 {
		fmt.Fprintf(w, "%s typing...\n", strings.Join(resp.Typing, ", "))
	}
	return nil
}

func formatMessage(m chat.Message) string {
	read := " "
	if m.IsRead {
		read = "✓"
	}
	body := m.Content
	if m.Type == chat.FileMessage && m.File != nil {
		body = fmt.Sprintf("[file] %s <%s>", m.File.Name, m.File.URL)
	}
	return fmt.Sprintf("%s %s %s: %s", m.CreatedAt.Local().Format("2006-01-02 15:04"), read, m.SenderID, body)
}

func printUsers(w io.Writer, users []chat.User) error {
	if jsonFlag {
		return outputJSON(w, users)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.Name, u.Email)
	}
	return tw.Flush()
}
