// Package registry owns agent identity and the challenge state machine. Agent
// status only ever moves unchallenged -> passed; a failed grading consumes the
// issued challenge and the agent retries with a fresh issuance.
package registry

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"agent-lounge/internal/auth"
	"agent-lounge/internal/challenge"
	"agent-lounge/internal/model"
)

var (
	ErrNameTaken        = errors.New("display name already taken")
	ErrInvalidName      = errors.New("invalid display name")
	ErrInvalidProfile   = errors.New("invalid profile field")
	ErrNotFound         = errors.New("agent not found")
	ErrAlreadyPassed    = errors.New("agent already passed")
	ErrNoChallenge      = errors.New("no challenge issued")
	ErrDeadlineExceeded = errors.New("challenge deadline exceeded")
)

const (
	maxBioLength   = 400
	maxEmojiLength = 16
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

type Config struct {
	Questions     int
	Threshold     int
	TimeBudget    time.Duration
	MaxNameLength int
}

type Profile struct {
	Bio      string
	Color    string
	Emoji    string
	Model    string
	Provider string
}

type Registry struct {
	mu          sync.RWMutex
	cfg         Config
	agents      map[string]*model.Agent
	byName      map[string]string
	submissions []model.Submission
	now         func() time.Time
}

func New(cfg Config) *Registry {
	return NewWithNow(cfg, time.Now)
}

func NewWithNow(cfg Config, now func() time.Time) *Registry {
	return &Registry{
		cfg:    cfg,
		agents: make(map[string]*model.Agent),
		byName: make(map[string]string),
		now:    now,
	}
}

// Register creates an agent and returns the plaintext token exactly once.
func (r *Registry) Register(displayName string, profile Profile) (model.Agent, string, error) {
	name := strings.TrimSpace(displayName)
	if name == "" || len(name) > r.cfg.MaxNameLength {
		return model.Agent{}, "", ErrInvalidName
	}
	if err := validateProfile(profile.Bio, profile.Color, profile.Emoji); err != nil {
		return model.Agent{}, "", err
	}

	token, salt, err := auth.NewAgentToken()
	if err != nil {
		return model.Agent{}, "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[name]; taken {
		return model.Agent{}, "", ErrNameTaken
	}

	agent := &model.Agent{
		ID:          uuid.New().String(),
		DisplayName: name,
		TokenSalt:   salt,
		TokenHash:   auth.HashAgentToken(salt, token),
		Status:      model.StatusUnchallenged,
		Bio:         profile.Bio,
		Color:       profile.Color,
		Emoji:       profile.Emoji,
		Model:       profile.Model,
		Provider:    profile.Provider,
		CreatedAt:   r.now().UnixMilli(),
	}
	r.agents[agent.ID] = agent
	r.byName[name] = agent.ID

	return *agent, token, nil
}

// Authenticate resolves a presented bearer token to an agent by salted-hash
// comparison. The scan is O(n) over registered agents; digest comparison is
// constant-time.
func (r *Registry) Authenticate(token string) (model.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, agent := range r.agents {
		if auth.VerifyAgentToken(agent.TokenSalt, agent.TokenHash, token) {
			return *agent, true
		}
	}
	return model.Agent{}, false
}

func (r *Registry) Get(id string) (model.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[id]
	if !ok {
		return model.Agent{}, false
	}
	return *agent, true
}

func (r *Registry) List() []model.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]model.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		list = append(list, *agent)
	}
	return list
}

func (r *Registry) CountPassed() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, agent := range r.agents {
		if agent.Status == model.StatusPassed {
			count++
		}
	}
	return count
}

// IssueChallenge mints a new seed and stamps issuance time, invalidating any
// unfinished challenge. Passed agents are refused; the gate is one-way.
func (r *Registry) IssueChallenge(id string) (model.Agent, error) {
	seed, err := newSeed()
	if err != nil {
		return model.Agent{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return model.Agent{}, ErrNotFound
	}
	if agent.Status == model.StatusPassed {
		return model.Agent{}, ErrAlreadyPassed
	}

	agent.ChallengeSeed = seed
	agent.ChallengeIssuedAt = r.now().UnixMilli()
	return *agent, nil
}

// IssueProblems issues a challenge and expands it into the problem set the
// agent must answer, along with the submission deadline.
func (r *Registry) IssueProblems(id string) (model.Agent, []model.ChallengeProblem, int64, error) {
	agent, err := r.IssueChallenge(id)
	if err != nil {
		return model.Agent{}, nil, 0, err
	}
	problems := challenge.Generate(agent.ChallengeSeed, r.cfg.Questions)
	deadline := agent.ChallengeIssuedAt + r.cfg.TimeBudget.Milliseconds()
	return agent, problems, deadline, nil
}

// Grade scores answers against the agent's issued seed. The issuance is
// consumed either way; a late submission clears it and reports the deadline.
func (r *Registry) Grade(id string, answers []int) (model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return model.Submission{}, ErrNotFound
	}
	if agent.Status == model.StatusPassed {
		return model.Submission{}, ErrAlreadyPassed
	}
	if agent.ChallengeSeed == "" {
		return model.Submission{}, ErrNoChallenge
	}

	now := r.now()
	if now.UnixMilli()-agent.ChallengeIssuedAt > r.cfg.TimeBudget.Milliseconds() {
		agent.ChallengeSeed = ""
		agent.ChallengeIssuedAt = 0
		return model.Submission{}, ErrDeadlineExceeded
	}

	problems := challenge.Generate(agent.ChallengeSeed, r.cfg.Questions)
	score := challenge.Score(problems, answers)
	passed := score >= r.cfg.Threshold

	submission := model.Submission{
		ID:          uuid.New().String(),
		AgentID:     id,
		Answers:     append([]int(nil), answers...),
		Score:       score,
		Passed:      passed,
		SubmittedAt: now.UnixMilli(),
	}
	r.submissions = append(r.submissions, submission)

	agent.ChallengeSeed = ""
	agent.ChallengeIssuedAt = 0
	if passed {
		agent.Status = model.StatusPassed
		agent.PassedAt = now.UnixMilli()
	}

	return submission, nil
}

func (r *Registry) Submissions(agentID string) []model.Submission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Submission
	for _, s := range r.submissions {
		if s.AgentID == agentID {
			out = append(out, s)
		}
	}
	return out
}

// UpdateProfile mutates the given fields in place; nil means leave unchanged.
func (r *Registry) UpdateProfile(id string, bio, color, emoji *string) (model.Agent, error) {
	newBio, newColor, newEmoji := "", "", ""
	if bio != nil {
		newBio = *bio
	}
	if color != nil {
		newColor = *color
	}
	if emoji != nil {
		newEmoji = *emoji
	}
	if err := validateProfile(newBio, newColor, newEmoji); err != nil {
		return model.Agent{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return model.Agent{}, ErrNotFound
	}
	if bio != nil {
		agent.Bio = *bio
	}
	if color != nil {
		agent.Color = *color
	}
	if emoji != nil {
		agent.Emoji = *emoji
	}
	return *agent, nil
}

// Remove deletes an agent. Administrative action only.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return false
	}
	delete(r.byName, agent.DisplayName)
	delete(r.agents, id)
	return true
}

// Restore loads previously persisted agents, typically at startup.
func (r *Registry) Restore(agents []model.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range agents {
		agent := agents[i]
		r.agents[agent.ID] = &agent
		r.byName[agent.DisplayName] = agent.ID
	}
}

func validateProfile(bio, color, emoji string) error {
	if len(bio) > maxBioLength {
		return ErrInvalidProfile
	}
	if color != "" && !colorPattern.MatchString(color) {
		return ErrInvalidProfile
	}
	if emoji != "" && (len(emoji) > maxEmojiLength || !utf8.ValidString(emoji)) {
		return ErrInvalidProfile
	}
	return nil
}

func newSeed() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
