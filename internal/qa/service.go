// Package qa implements the community question and answer engine: asking,
// answering, ranked answer listing, single-vote-per-user voting with
// reputation updates, and expert approval.
//
// Every mutating operation runs in one database transaction, so the
// denormalized counters never drift from the rows that triggered them.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/sujalbistaa/krishi/internal/models"
)

// Reputation deltas applied to an answer's author per vote.
const (
	UpvoteReputation   = 5
	DownvoteReputation = -2
)

// answerRanking orders answers expert first, then by upvotes, newest last tie-break.
const answerRanking = "is_expert_answer desc, upvotes desc, created_at desc, id desc"

// QuestionInput carries the caller supplied fields of a new question.
type QuestionInput struct {
	Title       string
	Description string
	Tags        []string
}

// AnswerInput carries the caller supplied fields of a new answer.
type AnswerInput struct {
	QuestionID uint
	AnswerText string
}

// Service orchestrates the user, question, answer, vote and reputation stores.
type Service struct {
	db *gorm.DB
}

// NewService returns a Service backed by db.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// AskQuestion creates an open question owned by askerID and bumps the
// asker's questionsAsked counter.
func (s *Service) AskQuestion(ctx context.Context, askerID uint, in QuestionInput) (models.Question, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Question{}, required("title")
	}
	if strings.TrimSpace(in.Description) == "" {
		return models.Question{}, required("description")
	}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	question := models.Question{
		Title:       title,
		Description: in.Description,
		Tags:        tags,
		AskedBy:     askerID,
		Status:      models.QuestionOpen,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := increment(tx, &models.User{}, askerID, "questions_asked", 1); err != nil {
			if errors.Is(err, ErrNotFound) {
				return notFound("user", askerID)
			}
			return fmt.Errorf("count question for user %d: %w", askerID, err)
		}
		if err := tx.Create(&question).Error; err != nil {
			return fmt.Errorf("create question: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Question{}, err
	}
	return question, nil
}

// ListQuestions returns every question, newest first, with its author.
func (s *Service) ListQuestions(ctx context.Context) ([]models.Question, error) {
	questions := []models.Question{}
	err := s.db.WithContext(ctx).
		Preload("Author", selectAuthor).
		Order("created_at desc, id desc").
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

// PostAnswer records an answer by answererID. Whether it counts as an expert
// answer is decided from the author's role and approval at this moment and
// never recomputed.
func (s *Service) PostAnswer(ctx context.Context, answererID uint, in AnswerInput) (models.Answer, error) {
	if in.QuestionID == 0 {
		return models.Answer{}, required("questionId")
	}
	if strings.TrimSpace(in.AnswerText) == "" {
		return models.Answer{}, required("answerText")
	}

	var answer models.Answer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var author models.User
		if err := first(tx, &author, answererID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return notFound("user", answererID)
			}
			return fmt.Errorf("load user %d: %w", answererID, err)
		}

		if err := increment(tx, &models.Question{}, in.QuestionID, "answers_count", 1); err != nil {
			if errors.Is(err, ErrNotFound) {
				return notFound("question", in.QuestionID)
			}
			return fmt.Errorf("count answer for question %d: %w", in.QuestionID, err)
		}

		answer = models.Answer{
			QuestionID:     in.QuestionID,
			AnswerText:     in.AnswerText,
			AnsweredBy:     answererID,
			IsExpertAnswer: author.CanGiveExpertAnswers(),
		}
		if err := tx.Create(&answer).Error; err != nil {
			return fmt.Errorf("create answer: %w", err)
		}

		if err := increment(tx, &models.User{}, answererID, "answers_given", 1); err != nil {
			return fmt.Errorf("count answer for user %d: %w", answererID, err)
		}
		return nil
	})
	if err != nil {
		return models.Answer{}, err
	}
	return answer, nil
}

// GetAnswersByQuestion returns the answers to questionID ranked expert
// answers first, then by upvotes, then newest first. Each answer carries its
// author's current name and reputation. An unknown question yields an empty
// list.
func (s *Service) GetAnswersByQuestion(ctx context.Context, questionID uint) ([]models.Answer, error) {
	answers := []models.Answer{}
	err := s.db.WithContext(ctx).
		Preload("Author", selectAuthor).
		Where("question_id = ?", questionID).
		Order(answerRanking).
		Find(&answers).Error
	if err != nil {
		return nil, fmt.Errorf("list answers for question %d: %w", questionID, err)
	}
	return answers, nil
}

// VoteAnswer records voterID's vote on answerID, bumps the matching tally and
// adjusts the reputation of the answer's author. A voter gets one vote per
// answer; a second attempt fails with ErrDuplicateVote and changes nothing.
// Authors may vote on their own answers.
func (s *Service) VoteAnswer(ctx context.Context, answerID, voterID uint, voteType models.VoteType) (models.Vote, error) {
	if !voteType.Valid() {
		return models.Vote{}, fmt.Errorf("%w: voteType must be %q or %q", ErrValidation, models.VoteUp, models.VoteDown)
	}

	vote := models.Vote{AnswerID: answerID, UserID: voterID, VoteType: voteType}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var answer models.Answer
		if err := first(tx, &answer, answerID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return notFound("answer", answerID)
			}
			return fmt.Errorf("load answer %d: %w", answerID, err)
		}
		var voter models.User
		if err := first(tx, &voter, voterID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return notFound("user", voterID)
			}
			return fmt.Errorf("load user %d: %w", voterID, err)
		}

		var existing int64
		if err := tx.Model(&models.Vote{}).
			Where("answer_id = ? AND user_id = ?", answerID, voterID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check vote: %w", err)
		}
		if existing > 0 {
			return ErrDuplicateVote
		}
		// Concurrent voters that both pass the check above are settled by the unique index.
		if err := tx.Create(&vote).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateVote
			}
			return fmt.Errorf("create vote: %w", err)
		}

		column, change, reason := "upvotes", UpvoteReputation, "upvote"
		if voteType == models.VoteDown {
			column, change, reason = "downvotes", DownvoteReputation, "downvote"
		}

		if err := increment(tx, &models.Answer{}, answerID, column, 1); err != nil {
			return fmt.Errorf("tally vote on answer %d: %w", answerID, err)
		}
		if err := increment(tx, &models.User{}, answer.AnsweredBy, "reputation", change); err != nil {
			return fmt.Errorf("apply reputation to user %d: %w", answer.AnsweredBy, err)
		}
		event := models.ReputationEvent{UserID: answer.AnsweredBy, Change: change, Reason: reason}
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("record reputation event: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Vote{}, err
	}
	return vote, nil
}

// ApproveExpert makes userID an approved expert. Calling it again is a no-op.
func (s *Service) ApproveExpert(ctx context.Context, userID uint) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
			"role":               models.RoleExpert,
			"is_expert_approved": true,
		})
		if res.Error != nil {
			return fmt.Errorf("approve expert %d: %w", userID, res.Error)
		}
		if err := first(tx, &user, userID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return notFound("user", userID)
			}
			return fmt.Errorf("load user %d: %w", userID, err)
		}
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// increment atomically adds delta to column on the row of model with the given id.
func increment(tx *gorm.DB, model any, id uint, column string, delta int) error {
	res := tx.Model(model).Where("id = ?", id).UpdateColumn(column, gorm.Expr(column+" + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func selectAuthor(tx *gorm.DB) *gorm.DB {
	return tx.Select(models.AuthorColumns)
}

func first(tx *gorm.DB, dest any, id uint) error {
	err := tx.First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
