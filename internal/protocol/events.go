// Package protocol defines the JSON frames exchanged over the websocket.
package protocol

import (
	"encoding/json"
	"time"

	"agent-lounge/internal/model"
)

// Inbound is a frame received from a connected agent.
type Inbound struct {
	Type     string `json:"type"`
	Room     string `json:"room,omitempty"`
	Content  string `json:"content,omitempty"`
	TargetID string `json:"targetId,omitempty"`
	VoteID   string `json:"voteId,omitempty"`
	Choice   string `json:"choice,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Inbound frame types.
const (
	TypeMessage  = "message"
	TypeJoin     = "join"
	TypeLeave    = "leave"
	TypeVoteKick = "vote_kick"
	TypeVote     = "vote"
	TypePing     = "ping"
)

// AgentInfo is the wire view of an agent. Token material never leaves the
// registry.
type AgentInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	Online       bool   `json:"online"`
	Bio          string `json:"bio,omitempty"`
	Color        string `json:"color,omitempty"`
	Emoji        string `json:"emoji,omitempty"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	PassedAt     int64  `json:"passedAt,omitempty"`
	RegisteredAt int64  `json:"registeredAt,omitempty"`
}

func AgentInfoFrom(agent model.Agent, online bool) AgentInfo {
	return AgentInfo{
		ID:           agent.ID,
		Name:         agent.DisplayName,
		Status:       string(agent.Status),
		Online:       online,
		Bio:          agent.Bio,
		Color:        agent.Color,
		Emoji:        agent.Emoji,
		Model:        agent.Model,
		Provider:     agent.Provider,
		PassedAt:     agent.PassedAt,
		RegisteredAt: agent.CreatedAt,
	}
}

type RoomInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	Members     int    `json:"members"`
	Messages    int    `json:"messages,omitempty"`
}

func RoomInfoFrom(room model.Room, members int) RoomInfo {
	return RoomInfo{
		Name:        room.Name,
		Description: room.Description,
		Prompt:      room.Prompt,
		Members:     members,
	}
}

type MessageInfo struct {
	ID         string `json:"id"`
	Room       string `json:"room"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
}

func MessageInfoFrom(msg model.Message) MessageInfo {
	return MessageInfo{
		ID:         msg.ID,
		Room:       msg.Room,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		Timestamp:  msg.Timestamp,
	}
}

func MessageInfosFrom(msgs []model.Message) []MessageInfo {
	infos := make([]MessageInfo, 0, len(msgs))
	for _, msg := range msgs {
		infos = append(infos, MessageInfoFrom(msg))
	}
	return infos
}

type VoteInfo struct {
	ID            string `json:"id"`
	InitiatorID   string `json:"initiatorId"`
	InitiatorName string `json:"initiatorName"`
	TargetID      string `json:"targetId"`
	TargetName    string `json:"targetName"`
	Reason        string `json:"reason"`
	Kick          int    `json:"kick"`
	Keep          int    `json:"keep"`
	ExpiresAt     int64  `json:"expiresAt"`
	Result        string `json:"result,omitempty"`
}

func VoteInfoFrom(session model.VoteSession) VoteInfo {
	info := VoteInfo{
		ID:            session.ID,
		InitiatorID:   session.InitiatorID,
		InitiatorName: session.InitiatorName,
		TargetID:      session.TargetID,
		TargetName:    session.TargetName,
		Reason:        session.Reason,
		ExpiresAt:     session.ExpiresAt,
		Result:        string(session.Result),
	}
	for _, choice := range session.Ballots {
		switch choice {
		case model.ChoiceKick:
			info.Kick++
		case model.ChoiceKeep:
			info.Keep++
		}
	}
	return info
}

type event struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`

	Role    string        `json:"role,omitempty"`
	Agent   *AgentInfo    `json:"agent,omitempty"`
	Agents  []AgentInfo   `json:"agents,omitempty"`
	Rooms   []RoomInfo    `json:"rooms,omitempty"`
	Room    string        `json:"room,omitempty"`
	Members []string      `json:"members,omitempty"`
	Recent  []MessageInfo `json:"recent,omitempty"`
	Message *MessageInfo  `json:"message,omitempty"`
	Vote    *VoteInfo     `json:"vote,omitempty"`
	Text    string        `json:"text,omitempty"`
	Code    string        `json:"code,omitempty"`
	Error   string        `json:"error,omitempty"`

	BannedUntil int64  `json:"bannedUntil,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func encode(e event) []byte {
	e.Timestamp = time.Now().UnixMilli()
	payload, _ := json.Marshal(e)
	return payload
}

// Connected is the welcome frame sent once per accepted connection.
func Connected(role string, self *AgentInfo, agents []AgentInfo, rooms []RoomInfo, recent []MessageInfo) []byte {
	return encode(event{
		Type:   "connected",
		Role:   role,
		Agent:  self,
		Agents: agents,
		Rooms:  rooms,
		Recent: recent,
	})
}

// Agents is the full roster snapshot, broadcast whenever the agent list or
// any agent's status changes.
func Agents(agents []AgentInfo) []byte {
	return encode(event{Type: "agents", Agents: agents})
}

func RoomList(rooms []RoomInfo) []byte {
	return encode(event{Type: "room_list", Rooms: rooms})
}

func Message(msg MessageInfo) []byte {
	return encode(event{Type: "message", Message: &msg})
}

// Joined acknowledges the joining agent; AgentJoined tells everyone else.
func Joined(room string, members []string) []byte {
	return encode(event{Type: "joined", Room: room, Members: members})
}

func Left(room string) []byte {
	return encode(event{Type: "left", Room: room})
}

func AgentJoined(room string, agent AgentInfo) []byte {
	return encode(event{Type: "agent_joined", Room: room, Agent: &agent})
}

func AgentLeft(room string, agent AgentInfo) []byte {
	return encode(event{Type: "agent_left", Room: room, Agent: &agent})
}

func VoteStarted(vote VoteInfo) []byte {
	return encode(event{Type: "vote_started", Vote: &vote})
}

func VoteUpdate(vote VoteInfo) []byte {
	return encode(event{Type: "vote_update", Vote: &vote})
}

func VoteResult(vote VoteInfo) []byte {
	return encode(event{Type: "vote_result", Vote: &vote})
}

func Kicked(reason string, bannedUntil int64) []byte {
	return encode(event{Type: "kicked", Reason: reason, BannedUntil: bannedUntil})
}

func System(text string) []byte {
	return encode(event{Type: "system", Text: text})
}

func Error(code, message string) []byte {
	return encode(event{Type: "error", Code: code, Error: message})
}

func Pong() []byte {
	return encode(event{Type: "pong"})
}
