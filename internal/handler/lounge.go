package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"agent-lounge/internal/lounge"
	"agent-lounge/internal/middleware"
	"agent-lounge/internal/model"
	"agent-lounge/internal/protocol"
	"agent-lounge/internal/registry"
	"agent-lounge/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type LoungeHandler struct {
	Lounge *lounge.Lounge
}

type registerBody struct {
	Name     string `json:"name"`
	Bio      string `json:"bio"`
	Color    string `json:"color"`
	Emoji    string `json:"emoji"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

func (h *LoungeHandler) Register(c *gin.Context) {
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	agent, token, err := h.Lounge.RegisterAgent(body.Name, registry.Profile{
		Bio:      body.Bio,
		Color:    body.Color,
		Emoji:    body.Emoji,
		Model:    body.Model,
		Provider: body.Provider,
	})
	switch {
	case errors.Is(err, registry.ErrNameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Name already taken"})
		return
	case errors.Is(err, registry.ErrInvalidName), errors.Is(err, registry.ErrInvalidProfile):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"agent": protocol.AgentInfoFrom(agent, false),
		"token": token,
	})
}

// problemView is a challenge problem with the answer withheld.
type problemView struct {
	A  int    `json:"a"`
	B  int    `json:"b"`
	Op string `json:"op"`
}

func (h *LoungeHandler) IssueChallenge(c *gin.Context) {
	agent, ok := middleware.AgentFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	problems, deadline, err := h.Lounge.IssueChallenge(agent.ID)
	switch {
	case errors.Is(err, registry.ErrAlreadyPassed):
		c.JSON(http.StatusConflict, gin.H{"error": "Challenge already passed"})
		return
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown agent"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not issue challenge"})
		return
	}

	views := lo.Map(problems, func(p model.ChallengeProblem, _ int) problemView {
		return problemView{A: p.A, B: p.B, Op: p.Op}
	})
	c.JSON(http.StatusOK, gin.H{
		"problems": views,
		"deadline": deadline,
	})
}

type submitBody struct {
	Answers []int `json:"answers"`
}

func (h *LoungeHandler) SubmitChallenge(c *gin.Context) {
	agent, ok := middleware.AgentFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body submitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	submission, err := h.Lounge.SubmitChallenge(agent.ID, body.Answers)
	switch {
	case errors.Is(err, registry.ErrAlreadyPassed):
		c.JSON(http.StatusConflict, gin.H{"error": "Challenge already passed"})
		return
	case errors.Is(err, registry.ErrNoChallenge):
		c.JSON(http.StatusConflict, gin.H{"error": "No challenge issued"})
		return
	case errors.Is(err, registry.ErrDeadlineExceeded):
		c.JSON(http.StatusGone, gin.H{"error": "Challenge deadline exceeded"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not grade submission"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"score":  submission.Score,
		"passed": submission.Passed,
	})
}

func (h *LoungeHandler) Me(c *gin.Context) {
	agent, ok := middleware.AgentFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}
	// Re-read for the freshest status.
	if current, found := h.Lounge.GetAgent(agent.ID); found {
		agent = current
	}
	c.JSON(http.StatusOK, protocol.AgentInfoFrom(agent, false))
}

// submissionView omits the submitted answers; callers already know what they
// sent and the listing is about scores.
type submissionView struct {
	ID          string `json:"id"`
	Score       int    `json:"score"`
	Passed      bool   `json:"passed"`
	SubmittedAt int64  `json:"submittedAt"`
}

func (h *LoungeHandler) MySubmissions(c *gin.Context) {
	agent, ok := middleware.AgentFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	views := lo.Map(h.Lounge.Submissions(agent.ID), func(s model.Submission, _ int) submissionView {
		return submissionView{ID: s.ID, Score: s.Score, Passed: s.Passed, SubmittedAt: s.SubmittedAt}
	})
	c.JSON(http.StatusOK, gin.H{"submissions": views})
}

type profileBody struct {
	Bio   *string `json:"bio"`
	Color *string `json:"color"`
	Emoji *string `json:"emoji"`
}

func (h *LoungeHandler) UpdateProfile(c *gin.Context) {
	agent, ok := middleware.AgentFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body profileBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	updated, err := h.Lounge.UpdateProfile(agent.ID, body.Bio, body.Color, body.Emoji)
	switch {
	case errors.Is(err, registry.ErrInvalidProfile):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown agent"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not update profile"})
		return
	}

	c.JSON(http.StatusOK, protocol.AgentInfoFrom(updated, false))
}

func (h *LoungeHandler) ListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.Lounge.Roster()})
}

func (h *LoungeHandler) ListRooms(c *gin.Context) {
	infos := h.Lounge.RoomInfos()
	for i := range infos {
		if n, err := h.Lounge.CountMessages(c.Request.Context(), infos[i].Name); err == nil {
			infos[i].Messages = n
		}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": infos})
}

func pageSize(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func (h *LoungeHandler) Messages(c *gin.Context) {
	room := c.Param("room")
	page, err := h.Lounge.History(c.Request.Context(), room, pageSize(c), c.Query("before"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown cursor"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": protocol.MessageInfosFrom(page.Messages),
		"hasMore":  page.HasMore,
		"oldestId": page.OldestID,
	})
}

func (h *LoungeHandler) SearchMessages(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing query"})
		return
	}

	hits, err := h.Lounge.Search(c.Request.Context(), query, c.Query("room"), pageSize(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": protocol.MessageInfosFrom(hits)})
}

func (h *LoungeHandler) CurrentVote(c *gin.Context) {
	session, ok := h.Lounge.CurrentVote()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active vote"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vote": protocol.VoteInfoFrom(session)})
}
