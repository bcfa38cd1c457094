package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// typingInterval throttles how often keystrokes are reported to the server.
const typingInterval = time.Second

// this model holds the bubbletea state for the chat client: the input, the
// rendered event log, the roster, and the websocket connection.
type TUIModel struct {
	textInput       textinput.Model
	lines           []chatLine
	members         []Member
	typers          []string
	serverURL       string
	room            string
	username        string
	websocketConn   *websocket.Conn
	writeMutex      sync.Mutex
	isConnected     bool
	connectionError error
	lastTypingSent  time.Time
}

// chatLine is one rendered row of the event log: either a message record or
// a system notification.
type chatLine struct {
	record   MessageRecord
	notice   string
	isNotice bool
	deleted  bool
}

// bubbletea messages representing asynchronous events.
type (
	connectedMsg     struct{}
	incomingMsg      Envelope
	errorMsg         error
	connectFailedMsg struct{ err error }
	reconnectMsg     struct{}
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("109"))
	okStyle      = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	waitStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	senderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("117"))
	bodyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	rosterStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("110"))
	typingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("178")).Italic(true)
	inputStyle   = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	messageStyle = lipgloss.NewStyle().MarginTop(1)
)

func NewTUIModel(serverURL, room, username string) *TUIModel {
	input := textinput.New()
	input.Placeholder = "Type a message…"
	input.CharLimit = 0
	input.Focus()
	input.Prompt = "> "

	if username == "" {
		username = defaultUsername()
	}
	return &TUIModel{
		textInput: input,
		lines:     make([]chatLine, 0, 64),
		serverURL: serverURL,
		room:      room,
		username:  username,
	}
}

func defaultUsername() string {
	if user := os.Getenv("RELAY_USER"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "anon"
}

func (model *TUIModel) Init() tea.Cmd {
	return model.connectCmd()
}

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		if typedMessage.Type == tea.KeyCtrlC || typedMessage.Type == tea.KeyEsc {
			if model.websocketConn != nil {
				_ = model.websocketConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = model.websocketConn.Close()
			}
			return model, tea.Quit
		}
		if typedMessage.Type == tea.KeyEnter {
			trimmed := strings.TrimSpace(model.textInput.Value())
			if trimmed == "" {
				return model, nil
			}
			return model, model.sendEventCmd(EventSendMessage, SendMessagePayload{
				Room:    model.room,
				Message: OutgoingMessage{Text: trimmed},
			}, true)
		}
		var cmd tea.Cmd
		model.textInput, cmd = model.textInput.Update(typedMessage)
		if typingCmd := model.maybeSendTyping(); typingCmd != nil {
			return model, tea.Batch(cmd, typingCmd)
		}
		return model, cmd

	case connectedMsg:
		model.isConnected = true
		model.connectionError = nil
		join := model.sendEventCmd(EventJoin, JoinPayload{Room: model.room, UserName: model.username}, false)
		return model, tea.Batch(join, model.readOnceCmd())

	case incomingMsg:
		model.applyIncoming(Envelope(typedMessage))
		return model, model.readOnceCmd()

	case connectFailedMsg:
		model.isConnected = false
		model.connectionError = typedMessage.err
		return model, model.scheduleReconnect()

	case errorMsg:
		model.isConnected = false
		model.connectionError = typedMessage
		return model, model.scheduleReconnect()

	case reconnectMsg:
		return model, model.connectCmd()
	}

	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(message)
	return model, cmd
}

// maybeSendTyping reports keystroke activity at most once per typingInterval.
func (model *TUIModel) maybeSendTyping() tea.Cmd {
	if !model.isConnected || model.textInput.Value() == "" {
		return nil
	}
	if time.Since(model.lastTypingSent) < typingInterval {
		return nil
	}
	model.lastTypingSent = time.Now()
	return model.sendEventCmd(EventTyping, TypingPayload{Room: model.room}, false)
}

// applyIncoming folds one server event into the model.
func (model *TUIModel) applyIncoming(envelope Envelope) {
	switch envelope.Event {
	case EventRecentMessages:
		var records []MessageRecord
		if json.Unmarshal(envelope.Data, &records) != nil {
			return
		}
		model.lines = model.lines[:0]
		for _, rec := range records {
			model.lines = append(model.lines, chatLine{record: rec})
		}
	case EventReceiveMessage:
		var rec MessageRecord
		if json.Unmarshal(envelope.Data, &rec) != nil {
			return
		}
		model.lines = append(model.lines, chatLine{record: rec})
	case EventNotification:
		var notice string
		if json.Unmarshal(envelope.Data, &notice) != nil {
			return
		}
		model.lines = append(model.lines, chatLine{notice: notice, isNotice: true})
	case EventUserList:
		var members []Member
		if json.Unmarshal(envelope.Data, &members) != nil {
			return
		}
		model.members = members
	case EventTypers:
		var typers []string
		if json.Unmarshal(envelope.Data, &typers) != nil {
			return
		}
		model.typers = lo.Filter(typers, func(name string, _ int) bool {
			return name != model.username
		})
	case EventUpdateMessage:
		var update UpdateBroadcast
		if json.Unmarshal(envelope.Data, &update) != nil {
			return
		}
		for i := range model.lines {
			if model.lines[i].record.ID == update.MessageID {
				model.lines[i].record.Text = update.NewText
			}
		}
	case EventMessageReaction:
		var reaction ReactionBroadcast
		if json.Unmarshal(envelope.Data, &reaction) != nil {
			return
		}
		for i := range model.lines {
			if model.lines[i].record.ID == reaction.MessageID {
				model.lines[i].record.Text += " " + reaction.Reaction
			}
		}
	case EventRemoveMessage:
		var removal RemoveBroadcast
		if json.Unmarshal(envelope.Data, &removal) != nil {
			return
		}
		for i := range model.lines {
			if model.lines[i].record.ID == removal.MessageID {
				model.lines[i].deleted = true
			}
		}
	}
}

func (model TUIModel) View() string {
	header := headerStyle.Render(strings.Join([]string{
		"RelayChat",
		fmt.Sprintf("Room %s", model.room),
		fmt.Sprintf("User %s", model.username),
	}, "  •  "))

	var statusLine string
	switch {
	case model.connectionError != nil:
		statusLine = errorStyle.Render("Connection error: " + model.connectionError.Error())
	case model.isConnected:
		statusLine = okStyle.Render("Connected")
	default:
		statusLine = waitStyle.Render("Connecting…")
	}

	var messageLines []string
	for _, line := range model.lines {
		messageLines = append(messageLines, renderLine(line))
	}
	if len(messageLines) == 0 {
		messageLines = append(messageLines, noticeStyle.Render("No messages yet. Say hi and start the conversation."))
	}

	roster := rosterStyle.Render("Here: " + strings.Join(memberNames(model.members), ", "))
	sections := []string{
		header,
		statusLine,
		messageStyle.Render(lipgloss.JoinVertical(lipgloss.Left, messageLines...)),
		roster,
	}
	if len(model.typers) > 0 {
		sections = append(sections, typingStyle.Render(strings.Join(model.typers, ", ")+" typing…"))
	}
	sections = append(sections, inputStyle.Render(model.textInput.View()))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderLine(line chatLine) string {
	if line.isNotice {
		return noticeStyle.Render("• " + line.notice)
	}
	if line.deleted {
		return noticeStyle.Render("(message removed)")
	}
	sender := line.record.Sender
	if sender == "" {
		sender = "unknown"
	}
	return senderStyle.Render(sender+": ") + bodyStyle.Render(line.record.Text)
}

func memberNames(members []Member) []string {
	return lo.Map(members, func(member Member, _ int) string {
		return member.UserName
	})
}

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	const retryDelay = 2 * time.Second
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func (model *TUIModel) connectCmd() tea.Cmd {
	return func() tea.Msg {
		conn, _, err := websocket.DefaultDialer.Dial(model.serverURL, http.Header{})
		if err != nil {
			return connectFailedMsg{err: err}
		}
		model.websocketConn = conn
		return connectedMsg{}
	}
}

// readOnceCmd reads a single frame from the websocket and converts it into a
// bubbletea message; Update schedules it again to keep reading.
func (model *TUIModel) readOnceCmd() tea.Cmd {
	return func() tea.Msg {
		if model.websocketConn == nil {
			return errorMsg(fmt.Errorf("websocket not connected"))
		}
		messageType, payload, err := model.websocketConn.ReadMessage()
		if err != nil {
			return errorMsg(err)
		}
		if messageType != websocket.TextMessage {
			return incomingMsg(Envelope{})
		}
		var envelope Envelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return incomingMsg(Envelope{})
		}
		return incomingMsg(envelope)
	}
}

// sendEventCmd encodes an event envelope and writes it to the websocket.
// When clearInput is set the input field resets after a successful write.
func (model *TUIModel) sendEventCmd(event string, payload any, clearInput bool) tea.Cmd {
	return func() tea.Msg {
		if model.websocketConn == nil {
			return errorMsg(fmt.Errorf("websocket not connected"))
		}
		encoded, err := encodeEvent(event, payload)
		if err != nil {
			return errorMsg(err)
		}
		model.writeMutex.Lock()
		err = model.websocketConn.WriteMessage(websocket.TextMessage, encoded)
		model.writeMutex.Unlock()
		if err != nil {
			return errorMsg(err)
		}
		if clearInput {
			model.textInput.SetValue("")
		}
		return nil
	}
}

// RunClient launches the bubbletea program so the user can chat from the
// terminal.
func RunClient(serverURL, room, username string) error {
	program := tea.NewProgram(NewTUIModel(serverURL, room, username))
	_, err := program.Run()
	return err
}
