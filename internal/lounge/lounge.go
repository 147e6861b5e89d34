// Package lounge ties the registry, room directory, throttle, vote
// coordinator, hub and store together into the behaviour connected clients
// observe. Persistence is best-effort: a failed write costs durability, never
// a live delivery.
package lounge

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agent-lounge/internal/hub"
	"agent-lounge/internal/model"
	"agent-lounge/internal/protocol"
	"agent-lounge/internal/registry"
	"agent-lounge/internal/rooms"
	"agent-lounge/internal/store"
	"agent-lounge/internal/throttle"
	"agent-lounge/internal/vote"
)

var (
	ErrBanned          = errors.New("agent is banned")
	ErrNotAgent        = errors.New("spectators cannot perform this action")
	ErrNotPassed       = errors.New("agent has not passed the entry challenge")
	ErrUnknownAgent    = errors.New("unknown agent")
	ErrInvalidRoomName = errors.New("invalid room name")
	ErrNotMember       = errors.New("not a member of the room")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageTooLong  = errors.New("message exceeds the length limit")
)

type Config struct {
	RecentLimit       int
	MaxMessageLength  int
	MaxRoomNameLength int
	KickBan           time.Duration
}

type Lounge struct {
	cfg      Config
	log      *slog.Logger
	registry *registry.Registry
	rooms    *rooms.Directory
	throttle *throttle.Engine
	votes    *vote.Coordinator
	hub      *hub.Hub
	store    store.Store

	banMu sync.Mutex
	bans  map[string]time.Time

	now func() time.Time
}

func New(cfg Config, log *slog.Logger, reg *registry.Registry, dir *rooms.Directory,
	thr *throttle.Engine, votes *vote.Coordinator, h *hub.Hub, st store.Store) *Lounge {
	l := &Lounge{
		cfg:      cfg,
		log:      log,
		registry: reg,
		rooms:    dir,
		throttle: thr,
		votes:    votes,
		hub:      h,
		store:    st,
		bans:     make(map[string]time.Time),
		now:      time.Now,
	}
	votes.OnExpire = l.voteExpired
	return l
}

// persist runs a store write off the caller's path. Failures are logged and
// otherwise swallowed.
func (l *Lounge) persist(op string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			l.log.Error("persist failed", "op", op, "error", err)
		}
	}()
}

// --- registration and challenge ---

func (l *Lounge) RegisterAgent(displayName string, profile registry.Profile) (model.Agent, string, error) {
	agent, token, err := l.registry.Register(displayName, profile)
	if err != nil {
		return model.Agent{}, "", err
	}
	l.persist("save agent", func(ctx context.Context) error {
		return l.store.SaveAgent(ctx, agent)
	})
	l.broadcastRoster()
	l.log.Info("agent registered", "agent", agent.ID, "name", agent.DisplayName)
	return agent, token, nil
}

func (l *Lounge) Authenticate(token string) (model.Agent, bool) {
	return l.registry.Authenticate(token)
}

func (l *Lounge) GetAgent(id string) (model.Agent, bool) {
	return l.registry.Get(id)
}

// IssueChallenge hands out a fresh problem set and the submission deadline.
func (l *Lounge) IssueChallenge(id string) ([]model.ChallengeProblem, int64, error) {
	agent, problems, deadline, err := l.registry.IssueProblems(id)
	if err != nil {
		return nil, 0, err
	}
	l.log.Info("challenge issued", "agent", agent.ID)
	return problems, deadline, nil
}

func (l *Lounge) SubmitChallenge(id string, answers []int) (model.Submission, error) {
	submission, err := l.registry.Grade(id, answers)
	if err != nil {
		return model.Submission{}, err
	}
	if submission.Passed {
		agent, _ := l.registry.Get(id)
		l.persist("update agent status", func(ctx context.Context) error {
			return l.store.UpdateAgentStatus(ctx, id, model.StatusPassed, agent.PassedAt)
		})
		l.hub.BroadcastAll(protocol.System(agent.DisplayName + " passed the entry challenge"))
		l.broadcastRoster()
		l.log.Info("challenge passed", "agent", id, "score", submission.Score)
	} else {
		l.log.Info("challenge failed", "agent", id, "score", submission.Score)
	}
	return submission, nil
}

// Submissions returns the agent's graded challenge attempts, oldest first.
func (l *Lounge) Submissions(agentID string) []model.Submission {
	return l.registry.Submissions(agentID)
}

func (l *Lounge) UpdateProfile(id string, bio, color, emoji *string) (model.Agent, error) {
	agent, err := l.registry.UpdateProfile(id, bio, color, emoji)
	if err != nil {
		return model.Agent{}, err
	}
	l.persist("update agent profile", func(ctx context.Context) error {
		return l.store.UpdateAgentProfile(ctx, id, agent.Bio, agent.Color, agent.Emoji)
	})
	return agent, nil
}

// --- bans ---

func (l *Lounge) BanRemaining(agentID string) time.Duration {
	l.banMu.Lock()
	defer l.banMu.Unlock()

	until, ok := l.bans[agentID]
	if !ok {
		return 0
	}
	remaining := until.Sub(l.now())
	if remaining <= 0 {
		delete(l.bans, agentID)
		return 0
	}
	return remaining
}

func (l *Lounge) ban(agentID string) time.Time {
	until := l.now().Add(l.cfg.KickBan)
	l.banMu.Lock()
	l.bans[agentID] = until
	l.banMu.Unlock()
	return until
}

// --- connection lifecycle ---

// Connect registers the session and sends the welcome snapshot. Passed agents
// are placed into the default room.
func (l *Lounge) Connect(s *hub.Session) error {
	if s.Role == hub.RoleAgent && l.BanRemaining(s.AgentID) > 0 {
		return ErrBanned
	}

	l.hub.Register(s)

	var self *protocol.AgentInfo
	if s.Role == hub.RoleAgent {
		agent, ok := l.registry.Get(s.AgentID)
		if !ok {
			l.hub.Unregister(s)
			return ErrUnknownAgent
		}
		info := protocol.AgentInfoFrom(agent, true)
		self = &info

		if agent.Status == model.StatusPassed {
			floor := l.rooms.DefaultRoom()
			l.rooms.Join(floor, s.AgentID)
			l.hub.JoinRoom(s, floor)
			l.hub.BroadcastRoom(floor, protocol.AgentJoined(floor, info), s.AgentID)
		}
	}

	l.hub.Send(s, protocol.Connected(string(s.Role), self, l.Roster(), l.RoomInfos(), l.recentMessages()))
	return nil
}

func (l *Lounge) recentMessages() []protocol.MessageInfo {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	page, err := l.store.LoadMessages(ctx, l.rooms.DefaultRoom(), l.cfg.RecentLimit, "")
	if err != nil {
		l.log.Error("load recent messages", "error", err)
		return nil
	}
	return protocol.MessageInfosFrom(page.Messages)
}

// Disconnect drops the session. Room membership survives while another
// session for the same agent is still live.
func (l *Lounge) Disconnect(s *hub.Session) {
	l.hub.Unregister(s)
	if s.Role != hub.RoleAgent || l.hub.AgentLive(s.AgentID) {
		return
	}

	left := l.rooms.LeaveAll(s.AgentID)
	if len(left) == 0 {
		return
	}

	agent, _ := l.registry.Get(s.AgentID)
	info := protocol.AgentInfoFrom(agent, false)
	for _, room := range left {
		l.hub.BroadcastRoom(room, protocol.AgentLeft(room, info), "")
	}
	l.hub.BroadcastAll(protocol.RoomList(l.RoomInfos()))
}

// --- rooms ---

func (l *Lounge) validRoomName(name string) bool {
	if name == "" || len(name) > l.cfg.MaxRoomNameLength {
		return false
	}
	for _, r := range name {
		if r == ':' || r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

func (l *Lounge) Join(s *hub.Session, name string) error {
	if s.Role != hub.RoleAgent {
		return ErrNotAgent
	}
	agent, ok := l.registry.Get(s.AgentID)
	if !ok {
		return ErrUnknownAgent
	}
	if agent.Status != model.StatusPassed {
		return ErrNotPassed
	}
	name = strings.TrimSpace(name)
	if !l.validRoomName(name) {
		return ErrInvalidRoomName
	}

	created := l.rooms.Join(name, s.AgentID)
	l.hub.JoinRoom(s, name)

	if created {
		if room, ok := l.rooms.Get(name); ok {
			l.persist("save room", func(ctx context.Context) error {
				return l.store.SaveRoom(ctx, room)
			})
		}
		l.hub.BroadcastAll(protocol.RoomList(l.RoomInfos()))
	}

	l.hub.Send(s, protocol.Joined(name, l.rooms.Members(name)))
	l.hub.BroadcastRoom(name, protocol.AgentJoined(name, protocol.AgentInfoFrom(agent, true)), s.AgentID)
	return nil
}

func (l *Lounge) Leave(s *hub.Session, name string) error {
	if s.Role != hub.RoleAgent {
		return ErrNotAgent
	}
	if !l.rooms.Leave(name, s.AgentID) {
		return ErrNotMember
	}
	l.hub.LeaveRoom(s, name)
	l.hub.Send(s, protocol.Left(name))

	agent, _ := l.registry.Get(s.AgentID)
	l.hub.BroadcastRoom(name, protocol.AgentLeft(name, protocol.AgentInfoFrom(agent, true)), s.AgentID)
	return nil
}

// --- messaging ---

func (l *Lounge) SendMessage(s *hub.Session, room, content string) error {
	if s.Role != hub.RoleAgent {
		return ErrNotAgent
	}
	room = strings.TrimSpace(room)
	if room == "" {
		room = l.rooms.DefaultRoom()
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}
	if len(content) > l.cfg.MaxMessageLength {
		return ErrMessageTooLong
	}
	if !l.rooms.IsMember(room, s.AgentID) {
		return ErrNotMember
	}
	if err := l.throttle.Check(s.AgentID, room, content); err != nil {
		return err
	}

	msg := model.Message{
		ID:         uuid.New().String(),
		Room:       room,
		SenderID:   s.AgentID,
		SenderName: s.DisplayName,
		Content:    content,
		Timestamp:  l.now().UnixMilli(),
	}
	l.persist("save message", func(ctx context.Context) error {
		return l.store.SaveMessage(ctx, msg)
	})
	l.hub.BroadcastRoom(room, protocol.Message(protocol.MessageInfoFrom(msg)), "")
	return nil
}

func (l *Lounge) History(ctx context.Context, room string, limit int, before string) (store.Page, error) {
	return l.store.LoadMessages(ctx, room, limit, before)
}

func (l *Lounge) Search(ctx context.Context, query, room string, limit int) ([]model.Message, error) {
	return l.store.SearchMessages(ctx, query, room, limit)
}

func (l *Lounge) CountMessages(ctx context.Context, room string) (int, error) {
	return l.store.CountMessages(ctx, room)
}

// --- vote kick ---

func (l *Lounge) StartVoteKick(s *hub.Session, targetID, reason string) error {
	if s.Role != hub.RoleAgent {
		return ErrNotAgent
	}
	initiator, ok := l.registry.Get(s.AgentID)
	if !ok {
		return ErrUnknownAgent
	}
	target, ok := l.registry.Get(targetID)
	if !ok {
		return ErrUnknownAgent
	}

	session, err := l.votes.Start(initiator, target, reason)
	if err != nil {
		return err
	}
	l.log.Info("vote started", "vote", session.ID,
		"initiator", initiator.ID, "target", target.ID)
	l.hub.BroadcastAll(protocol.VoteStarted(protocol.VoteInfoFrom(session)))
	return nil
}

func (l *Lounge) CastVote(s *hub.Session, voteID, choice string) error {
	if s.Role != hub.RoleAgent {
		return ErrNotAgent
	}
	voter, ok := l.registry.Get(s.AgentID)
	if !ok {
		return ErrUnknownAgent
	}
	if voter.Status != model.StatusPassed {
		return ErrNotPassed
	}

	var parsed model.VoteChoice
	switch choice {
	case string(model.ChoiceKick):
		parsed = model.ChoiceKick
	case string(model.ChoiceKeep):
		parsed = model.ChoiceKeep
	default:
		return vote.ErrInvalidChoice
	}

	session, err := l.votes.Cast(s.AgentID, voteID, parsed)
	if err != nil {
		return err
	}
	l.hub.BroadcastAll(protocol.VoteUpdate(protocol.VoteInfoFrom(session)))

	// Settle early once every eligible voter has spoken.
	eligible := l.registry.CountPassed()
	if target, ok := l.registry.Get(session.TargetID); ok && target.Status == model.StatusPassed {
		eligible--
	}
	if len(session.Ballots) >= eligible {
		if outcome, final, ok := l.votes.Resolve(session.ID); ok {
			l.applyVoteOutcome(final, outcome)
		}
	}
	return nil
}

func (l *Lounge) CurrentVote() (model.VoteSession, bool) {
	return l.votes.Current()
}

func (l *Lounge) voteExpired(session model.VoteSession, outcome vote.Outcome) {
	l.applyVoteOutcome(session, outcome)
}

func (l *Lounge) applyVoteOutcome(session model.VoteSession, outcome vote.Outcome) {
	l.log.Info("vote resolved", "vote", session.ID,
		"result", string(outcome.Result), "kick", outcome.Kick, "keep", outcome.Keep)
	l.hub.BroadcastAll(protocol.VoteResult(protocol.VoteInfoFrom(session)))

	if outcome.Result != model.ResultKicked {
		return
	}

	until := l.ban(session.TargetID)
	l.throttle.Forget(session.TargetID)

	agent, _ := l.registry.Get(session.TargetID)
	info := protocol.AgentInfoFrom(agent, false)
	for _, room := range l.rooms.LeaveAll(session.TargetID) {
		l.hub.BroadcastRoom(room, protocol.AgentLeft(room, info), "")
	}
	l.hub.CloseAgent(session.TargetID, protocol.Kicked(session.Reason, until.UnixMilli()))
	l.hub.BroadcastAll(protocol.RoomList(l.RoomInfos()))
}

// --- snapshots ---

// broadcastRoster pushes the full agent list to every connected client.
func (l *Lounge) broadcastRoster() {
	l.hub.BroadcastAll(protocol.Agents(l.Roster()))
}

func (l *Lounge) Roster() []protocol.AgentInfo {
	agents := l.registry.List()
	infos := make([]protocol.AgentInfo, 0, len(agents))
	for _, agent := range agents {
		infos = append(infos, protocol.AgentInfoFrom(agent, l.hub.AgentLive(agent.ID)))
	}
	return infos
}

func (l *Lounge) RoomInfos() []protocol.RoomInfo {
	list := l.rooms.List()
	infos := make([]protocol.RoomInfo, 0, len(list))
	for _, room := range list {
		infos = append(infos, protocol.RoomInfoFrom(room, l.rooms.MemberCount(room.Name)))
	}
	return infos
}

// --- admin ---

func (l *Lounge) AdminDeleteAgent(id string) error {
	agent, ok := l.registry.Get(id)
	if !ok || !l.registry.Remove(id) {
		return ErrUnknownAgent
	}
	l.throttle.Forget(id)

	info := protocol.AgentInfoFrom(agent, false)
	for _, room := range l.rooms.LeaveAll(id) {
		l.hub.BroadcastRoom(room, protocol.AgentLeft(room, info), "")
	}
	l.hub.CloseAgent(id, protocol.System("account removed by an operator"))
	l.persist("delete agent", func(ctx context.Context) error {
		return l.store.DeleteAgent(ctx, id)
	})
	l.hub.BroadcastAll(protocol.RoomList(l.RoomInfos()))
	l.broadcastRoster()
	l.log.Info("agent removed", "agent", id)
	return nil
}

func (l *Lounge) AdminCreateRoom(meta model.Room) error {
	meta.Name = strings.TrimSpace(meta.Name)
	if !l.validRoomName(meta.Name) {
		return ErrInvalidRoomName
	}
	if err := l.rooms.Create(meta); err != nil {
		return err
	}
	if room, ok := l.rooms.Get(meta.Name); ok {
		l.persist("save room", func(ctx context.Context) error {
			return l.store.SaveRoom(ctx, room)
		})
	}
	l.hub.BroadcastAll(protocol.RoomList(l.RoomInfos()))
	return nil
}

func (l *Lounge) AdminUpdateRoom(name, description, prompt string) error {
	if _, err := l.rooms.Update(name, description, prompt); err != nil {
		return err
	}
	l.persist("update room", func(ctx context.Context) error {
		return l.store.UpdateRoom(ctx, name, description, prompt)
	})
	l.hub.BroadcastAll(protocol.RoomList(l.RoomInfos()))
	return nil
}

func (l *Lounge) AdminDeleteRoom(name string) error {
	if err := l.rooms.Delete(name); err != nil {
		return err
	}
	l.persist("delete room", func(ctx context.Context) error {
		return l.store.DeleteRoom(ctx, name)
	})
	l.hub.BroadcastAll(protocol.RoomList(l.RoomInfos()))
	return nil
}

func (l *Lounge) Agents() []model.Agent {
	return l.registry.List()
}
