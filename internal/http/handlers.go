package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sujalbistaa/krishi/internal/auth"
	"github.com/sujalbistaa/krishi/internal/errorz"
	"github.com/sujalbistaa/krishi/internal/models"
	"github.com/sujalbistaa/krishi/internal/qa"
	"github.com/sujalbistaa/krishi/internal/ws"
)

// --- Structs for request binding ---
type RegisterInput struct {
	Phone      string            `json:"phone" binding:"required"`
	Password   string            `json:"password" binding:"required,min=4"`
	Name       string            `json:"name" binding:"required"`
	Region     models.Region     `json:"region"`
	Background models.Background `json:"background"`
}

type LoginInput struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ProfileInput struct {
	Name       *string            `json:"name"`
	Region     *models.Region     `json:"region"`
	Background *models.Background `json:"background"`
}

type AdminLoginInput struct {
	Password string `json:"password" binding:"required"`
}

// Required-field checks for questions and answers live in the qa service.
type AskQuestionInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

type PostAnswerInput struct {
	QuestionID uint   `json:"questionId"`
	AnswerText string `json:"answerText"`
}

type VoteInput struct {
	VoteType models.VoteType `json:"voteType" binding:"required,oneof=up down"`
}

// WsMessage is the envelope pushed to the live community feed.
type WsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// --- Handlers ---
type Env struct {
	QA            *qa.Service
	Auth          *auth.Service
	AuthConfig    auth.Config
	Hub           *ws.Hub
	Metrics       *Metrics
	Log           *zap.Logger
	AdminToken    string
	AdminPassword string
}

func (e *Env) Register(c *gin.Context) {
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	user, token, err := e.Auth.Register(c.Request.Context(), auth.RegisterInput{
		Phone:      input.Phone,
		Password:   input.Password,
		Name:       input.Name,
		Region:     input.Region,
		Background: input.Background,
	})
	if err != nil {
		e.respondError(c, err, "Failed to register")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Registered successfully", "token": token, "user": user})
}

func (e *Env) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	user, token, err := e.Auth.Login(c.Request.Context(), input.Phone, input.Password)
	if err != nil {
		e.respondError(c, err, "Failed to log in")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Login successful", "token": token, "user": user})
}

func (e *Env) GetProfile(c *gin.Context) {
	user, err := e.Auth.Profile(c.Request.Context(), currentUser(c))
	if err != nil {
		e.respondError(c, err, "Failed to fetch profile")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (e *Env) UpdateProfile(c *gin.Context) {
	var input ProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	user, err := e.Auth.UpdateProfile(c.Request.Context(), currentUser(c), auth.ProfileInput{
		Name:       input.Name,
		Region:     input.Region,
		Background: input.Background,
	})
	if err != nil {
		e.respondError(c, err, "Failed to update profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated", "user": user})
}

// adminSessionTTL bounds the lifetime of tokens handed out by AdminLogin.
const adminSessionTTL = time.Hour

// AdminLogin exchanges the admin password for a short-lived admin session
// token accepted in X-Admin-Token. The configured static token is never returned.
func (e *Env) AdminLogin(c *gin.Context) {
	if e.AdminPassword == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Admin login is disabled"})
		return
	}
	var input AdminLoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	if subtle.ConstantTimeCompare([]byte(input.Password), []byte(e.AdminPassword)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin password"})
		return
	}
	token, err := auth.GenerateAdminToken(e.AuthConfig, adminSessionTTL)
	if err != nil {
		e.Log.Error("sign admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Admin logged in successfully",
		"token":     token,
		"expiresIn": int(adminSessionTTL.Seconds()),
	})
}

func (e *Env) ApproveExpert(c *gin.Context) {
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}
	user, err := e.QA.ApproveExpert(c.Request.Context(), userID)
	if err != nil {
		e.respondError(c, err, "Failed to approve expert")
		return
	}
	e.Metrics.ExpertsApproved.Inc()
	c.JSON(http.StatusOK, gin.H{"message": "Expert approved", "user": user})
}

func (e *Env) GetQuestions(c *gin.Context) {
	questions, err := e.QA.ListQuestions(c.Request.Context())
	if err != nil {
		e.respondError(c, err, "Failed to fetch questions")
		return
	}
	c.JSON(http.StatusOK, questions)
}

func (e *Env) AskQuestion(c *gin.Context) {
	var input AskQuestionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	question, err := e.QA.AskQuestion(c.Request.Context(), currentUser(c), qa.QuestionInput{
		Title:       input.Title,
		Description: input.Description,
		Tags:        input.Tags,
	})
	if err != nil {
		e.respondError(c, err, "Failed to post question")
		return
	}
	e.Metrics.QuestionsAsked.Inc()
	e.broadcastMessage(WsMessage{Type: "new_question", Data: question})

	c.JSON(http.StatusCreated, gin.H{"message": "Question posted successfully", "question": question})
}

func (e *Env) PostAnswer(c *gin.Context) {
	var input PostAnswerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	answer, err := e.QA.PostAnswer(c.Request.Context(), currentUser(c), qa.AnswerInput{
		QuestionID: input.QuestionID,
		AnswerText: input.AnswerText,
	})
	if err != nil {
		e.respondError(c, err, "Failed to post answer")
		return
	}
	e.Metrics.AnswersPosted.WithLabelValues(strconv.FormatBool(answer.IsExpertAnswer)).Inc()
	e.broadcastMessage(WsMessage{Type: "new_answer", Data: answer})

	c.JSON(http.StatusCreated, gin.H{"message": "Answer posted successfully", "answer": answer})
}

func (e *Env) GetAnswers(c *gin.Context) {
	questionID, ok := parseID(c, "questionId")
	if !ok {
		return
	}
	answers, err := e.QA.GetAnswersByQuestion(c.Request.Context(), questionID)
	if err != nil {
		e.respondError(c, err, "Failed to fetch answers")
		return
	}
	c.JSON(http.StatusOK, answers)
}

func (e *Env) VoteAnswer(c *gin.Context) {
	answerID, ok := parseID(c, "answerId")
	if !ok {
		return
	}
	var input VoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	vote, err := e.QA.VoteAnswer(c.Request.Context(), answerID, currentUser(c), input.VoteType)
	if err != nil {
		if errors.Is(err, qa.ErrDuplicateVote) {
			e.Metrics.DuplicateVotes.Inc()
		}
		e.respondError(c, err, "Failed to process vote")
		return
	}
	e.Metrics.VotesTotal.WithLabelValues(string(vote.VoteType)).Inc()
	e.broadcastMessage(WsMessage{Type: "vote", Data: gin.H{"answerId": vote.AnswerID, "voteType": vote.VoteType}})

	c.JSON(http.StatusOK, gin.H{"message": "Vote recorded", "vote": vote})
}

func (e *Env) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps service errors onto HTTP statuses. Unknown errors are
// logged and hidden behind fallback.
func (e *Env) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, errorz.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errorz.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, qa.ErrDuplicateVote), errors.Is(err, auth.ErrPhoneTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		e.Log.Error(fallback, zap.Error(err), zap.String("request_id", c.GetString(ctxRequestID)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param})
		return 0, false
	}
	return uint(id), true
}

func (e *Env) broadcastMessage(msg WsMessage) {
	if e.Hub == nil {
		return
	}
	jsonMsg, err := json.Marshal(msg)
	if err != nil {
		e.Log.Error("marshal ws message", zap.Error(err))
		return
	}
	e.Hub.Publish(jsonMsg)
}
