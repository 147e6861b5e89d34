package model

type AgentStatus string

const (
	StatusUnchallenged AgentStatus = "unchallenged"
	StatusPassed       AgentStatus = "passed"
)

type Agent struct {
	ID                string
	DisplayName       string
	TokenSalt         string
	TokenHash         string
	Status            AgentStatus
	ChallengeSeed     string
	ChallengeIssuedAt int64
	PassedAt          int64
	Bio               string
	Color             string
	Emoji             string
	Model             string
	Provider          string
	CreatedAt         int64
}

type ChallengeProblem struct {
	A      int
	B      int
	Op     string
	Answer int
}

type Submission struct {
	ID          string
	AgentID     string
	Answers     []int
	Score       int
	Passed      bool
	SubmittedAt int64
}

type Room struct {
	Name        string
	Description string
	Prompt      string
	CreatorID   string
	CreatedAt   int64
}

type Message struct {
	ID         string
	Room       string
	SenderID   string
	SenderName string
	Content    string
	Timestamp  int64
}

type VoteChoice string

const (
	ChoiceKick VoteChoice = "kick"
	ChoiceKeep VoteChoice = "keep"
)

type VoteResult string

const (
	ResultKicked       VoteResult = "kicked"
	ResultKept         VoteResult = "kept"
	ResultInsufficient VoteResult = "insufficient"
)

type VoteSession struct {
	ID            string
	InitiatorID   string
	InitiatorName string
	TargetID      string
	TargetName    string
	Reason        string
	Ballots       map[string]VoteChoice
	StartedAt     int64
	ExpiresAt     int64
	Resolved      bool
	Result        VoteResult
}
