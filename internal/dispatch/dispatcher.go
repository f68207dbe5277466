package dispatch

import (
	"github.com/rs/zerolog"

	apperrors "github.com/chatlink/client/internal/errors"
	"github.com/chatlink/client/internal/state"
)

// Default user-facing texts.
const (
	TextLoginSuccess   = "Logged in"
	TextMissingToken   = "Login succeeded but no token was issued, please try again"
	TextNewFriendTitle = "New friend"
	TextNewFriendBody  = "You have a new friend request"
)

// Session is the authenticated-session store.
type Session interface {
	// Login persists the credential and profile and marks the session
	// authenticated.
	Login(token string, profile state.Profile) error

	// Expire clears the credential, profile and authenticated flag together.
	Expire() error
}

// LoginState tracks the login flow.
type LoginState interface {
	SetQrCode(url string)
	SetStatus(status state.LoginStatus)
}

// History is the chat message history.
type History interface {
	Push(m state.ChatMessage)
	FilterUser(uid int64)
	UpdateMarkCount(items []state.MarkItem)
	UpdateRecall(r state.Recall) bool
}

// Roster is the current group's member list.
type Roster interface {
	SetOnlineNum(n int)
	BatchUpdateStatus(changes []state.Member)
	AddMember(m state.Member)
	FilterUser(uid int64)
}

// Global holds cross-page counters and the current room.
type Global interface {
	AddNewFriendUnread(n int)
	CurrentRoom() state.Room
}

// Notifier surfaces messages to the user.
type Notifier interface {
	Success(text string)
	Error(text string)
	// Notify raises a notification. onClick runs when the user opens it.
	Notify(title, text string, onClick func())
	// ShowQRCode renders a login challenge for scanning.
	ShowQRCode(url string)
}

// Navigator is the route controller.
type Navigator interface {
	Path() string
	Push(path string)
}

// Alert is the attention indicator for unseen messages.
type Alert interface {
	Flash()
}

// Watchdog is the login timeout timer.
type Watchdog interface {
	Disarm()
}

// Config holds the dispatcher's collaborators. All fields are required.
type Config struct {
	Session  Session
	Login    LoginState
	History  History
	Roster   Roster
	Global   Global
	Notifier Notifier
	Router   Navigator
	Alert    Alert
	Watchdog Watchdog
	Logger   zerolog.Logger
}

// Dispatcher applies inbound events. It is not safe for concurrent use; the
// engine calls it from its single consumer loop.
type Dispatcher struct {
	cfg    Config
	logger zerolog.Logger
}

var _ Handler = (*Dispatcher)(nil)

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "dispatch").Logger(),
	}
}

// Dispatch decodes raw and applies its effect. Decode failures are logged and
// returned; the frame is dropped.
func (d *Dispatcher) Dispatch(raw string) error {
	ev, err := Decode(raw)
	if err != nil {
		d.logger.Warn().Err(err).Str("code", apperrors.GetCode(err)).Msg("dropping undecodable frame")
		return err
	}
	d.logger.Debug().Stringer("kind", ev.Kind()).Msg("inbound event")
	return Apply(ev, d)
}

func (d *Dispatcher) OnLoginQrCode(e LoginQrCode) error {
	d.cfg.Login.SetQrCode(e.LoginURL)
	d.cfg.Notifier.ShowQRCode(e.LoginURL)
	return nil
}

func (d *Dispatcher) OnWaitingAuthorize(WaitingAuthorize) error {
	d.cfg.Login.SetStatus(state.LoginWaiting)
	return nil
}

// OnLoginSuccess adopts the issued credential. A success without a token
// changes nothing but the user-facing error.
func (d *Dispatcher) OnLoginSuccess(e LoginSuccess) error {
	if e.Token == "" {
		d.logger.Error().Msg("login success without token")
		d.cfg.Notifier.Error(TextMissingToken)
		return apperrors.MissingToken()
	}

	if err := d.cfg.Session.Login(e.Token, e.Profile()); err != nil {
		d.cfg.Notifier.Error(apperrors.GetMessage(err))
		return err
	}
	d.cfg.Login.SetStatus(state.LoginSuccess)
	d.cfg.Watchdog.Disarm()
	d.cfg.Notifier.Success(TextLoginSuccess)

	if d.cfg.Router.Path() == state.RouteLogin {
		d.cfg.Router.Push(state.RouteHome)
	}

	d.logger.Info().Int64("uid", e.UID).Msg("logged in")
	return nil
}

func (d *Dispatcher) OnLoginError(e LoginError) error {
	text := e.Msg
	if text == "" {
		text = apperrors.GetMessage(apperrors.LoginFailed(""))
	}
	d.cfg.Watchdog.Disarm()
	d.cfg.Notifier.Error(text)
	d.logger.Info().Str("msg", e.Msg).Msg("login rejected")
	return nil
}

func (d *Dispatcher) OnReceiveMessage(e ReceiveMessage) error {
	d.cfg.History.Push(e.ChatMessage)
	d.cfg.Alert.Flash()
	return nil
}

func (d *Dispatcher) OnOnOffLine(e OnOffLine) error {
	d.cfg.Roster.SetOnlineNum(e.OnlineNum)
	d.cfg.Roster.BatchUpdateStatus(e.ChangeList)
	return nil
}

func (d *Dispatcher) OnTokenExpired(TokenExpired) error {
	d.cfg.Login.SetStatus(state.LoginInit)
	if err := d.cfg.Session.Expire(); err != nil {
		d.logger.Error().Err(err).Msg("failed to clear expired session")
		return err
	}
	d.logger.Info().Msg("token expired")
	return nil
}

func (d *Dispatcher) OnInValidUser(e InValidUser) error {
	d.cfg.History.FilterUser(e.UID)
	d.cfg.Roster.FilterUser(e.UID)
	return nil
}

func (d *Dispatcher) OnMarkItem(e MarkItem) error {
	d.cfg.History.UpdateMarkCount(e.MarkList)
	return nil
}

func (d *Dispatcher) OnRecall(e Recall) error {
	if !d.cfg.History.UpdateRecall(e.Recall) {
		d.logger.Debug().Int64("msg_id", e.MsgID).Msg("recall for message not in history")
	}
	return nil
}

// OnRequestNewFriend adds the delivered count as is. The server reports
// increments, so repeated deliveries accumulate.
func (d *Dispatcher) OnRequestNewFriend(e RequestNewFriend) error {
	d.cfg.Global.AddNewFriendUnread(e.UnreadCount)
	router := d.cfg.Router
	d.cfg.Notifier.Notify(TextNewFriendTitle, TextNewFriendBody, func() {
		router.Push(state.RouteContact)
	})
	return nil
}

// OnNewFriendSession applies a membership change to the roster only when it
// concerns the group room currently on screen.
func (d *Dispatcher) OnNewFriendSession(e NewFriendSession) error {
	room := d.cfg.Global.CurrentRoom()
	if e.RoomID != room.ID || room.Type != state.RoomGroup {
		return nil
	}
	switch e.ChangeType {
	case state.MemberRemoved:
		d.cfg.Roster.FilterUser(e.UID)
	case state.MemberAdded:
		d.cfg.Roster.AddMember(state.Member{
			UID:          e.UID,
			ActiveStatus: e.ActiveStatus,
			LastOptTime:  e.LastOptTime,
		})
	default:
		d.logger.Warn().Int("change_type", int(e.ChangeType)).Msg("unknown membership change")
	}
	return nil
}

func (d *Dispatcher) OnUnknown(e Unknown) error {
	d.logger.Warn().
		Stringer("kind", e.Type).
		RawJSON("data", rawOrNull(e.Data)).
		Msg("unhandled message kind")
	return nil
}

func rawOrNull(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
