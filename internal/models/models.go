package models

import (
	"time"
)

// Role is the community role of a user.
type Role string

const (
	RoleFarmer Role = "farmer"
	RoleExpert Role = "expert"
)

// QuestionStatus is informational only; nothing transitions it yet.
type QuestionStatus string

const (
	QuestionOpen     QuestionStatus = "open"
	QuestionAnswered QuestionStatus = "answered"
	QuestionClosed   QuestionStatus = "closed"
)

// VoteType is the direction of a vote on an answer.
type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

// Valid reports whether v is one of the known vote directions.
func (v VoteType) Valid() bool {
	return v == VoteUp || v == VoteDown
}

// Region is where a farmer works.
type Region struct {
	State    string `json:"state"`
	District string `json:"district"`
	Village  string `json:"village"`
}

// Background holds the optional socio-economic details used for scheme matching.
type Background struct {
	Age         int     `json:"age"`
	LandHolding float64 `json:"landHolding"`
	Income      float64 `json:"income"`
	FarmerType  string  `json:"farmerType"`
	Category    string  `json:"category"`
	Gender      string  `json:"gender"`
}

// User is a registered farmer or expert.
type User struct {
	ID               uint       `gorm:"primarykey" json:"id"`
	Phone            string     `gorm:"not null;uniqueIndex" json:"phone"`
	PasswordHash     string     `gorm:"not null" json:"-"` // Never leaves the server
	Name             string     `gorm:"not null" json:"name"`
	Role             Role       `gorm:"not null;default:farmer" json:"role"`
	IsExpertApproved bool       `gorm:"not null;default:false" json:"isExpertApproved"`
	Region           Region     `gorm:"embedded;embeddedPrefix:region_" json:"region"`
	Background       Background `gorm:"embedded;embeddedPrefix:background_" json:"background"`
	Reputation       int        `gorm:"not null;default:0" json:"reputation"` // May go negative
	QuestionsAsked   int        `gorm:"not null;default:0" json:"questionsAsked"`
	AnswersGiven     int        `gorm:"not null;default:0" json:"answersGiven"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// CanGiveExpertAnswers reports whether answers posted by u right now count as expert answers.
func (u User) CanGiveExpertAnswers() bool {
	return u.Role == RoleExpert && u.IsExpertApproved
}

// Author is the public view of a user shown next to their questions and answers.
type Author struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Reputation int    `json:"reputation"`
	Role       Role   `json:"role"`
}

func (Author) TableName() string {
	return "users"
}

// AuthorColumns are the user columns loaded into an Author.
var AuthorColumns = []string{"id", "name", "reputation", "role"}

// Question is a community question.
type Question struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	Title        string         `gorm:"not null" json:"title"`
	Description  string         `gorm:"type:text;not null" json:"description"`
	Tags         []string       `gorm:"type:text;serializer:json" json:"tags"`
	AskedBy      uint           `gorm:"not null;index" json:"askedBy"`
	Author       *Author        `gorm:"foreignKey:AskedBy" json:"author,omitempty"`
	AnswersCount int            `gorm:"not null;default:0" json:"answersCount"`
	Status       QuestionStatus `gorm:"not null;default:open" json:"status"`
	CreatedAt    time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Answer is a reply to a Question. IsExpertAnswer is fixed when the answer is created.
type Answer struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	QuestionID     uint      `gorm:"not null;index" json:"questionId"`
	AnswerText     string    `gorm:"type:text;not null" json:"answerText"`
	AnsweredBy     uint      `gorm:"not null;index" json:"answeredBy"`
	Author         *Author   `gorm:"foreignKey:AnsweredBy" json:"author,omitempty"`
	IsExpertAnswer bool      `gorm:"not null;default:false" json:"isExpertAnswer"`
	IsAccepted     bool      `gorm:"not null;default:false" json:"isAccepted"`
	Upvotes        int       `gorm:"not null;default:0" json:"upvotes"`
	Downvotes      int       `gorm:"not null;default:0" json:"downvotes"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Vote is one user's vote on one answer. The (answer, user) pair is unique.
type Vote struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	AnswerID  uint      `gorm:"not null;uniqueIndex:idx_votes_answer_user" json:"answerId"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_votes_answer_user" json:"userId"`
	VoteType  VoteType  `gorm:"not null" json:"voteType"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReputationEvent is an append-only audit record of a reputation change.
type ReputationEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	Change    int       `gorm:"not null" json:"change"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// All lists every model in migration order.
func All() []any {
	return []any{&User{}, &Question{}, &Answer{}, &Vote{}, &ReputationEvent{}}
}
