package checkout

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mercatolabs/mercato-backend/pkg/db/models"
)

// SessionRepository persists checkout sessions.
type SessionRepository interface {
	WithTx(tx *gorm.DB) SessionRepository
	Create(ctx context.Context, session *models.CheckoutSession) (*models.CheckoutSession, error)
	FindByKey(ctx context.Context, sessionKey string) (*models.CheckoutSession, error)
	FindByKeyForUpdate(ctx context.Context, sessionKey string) (*models.CheckoutSession, error)
	Save(ctx context.Context, session *models.CheckoutSession) error
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository builds a session repository bound to the provided DB.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) WithTx(tx *gorm.DB) SessionRepository {
	if tx == nil {
		return r
	}
	return &sessionRepository{db: tx}
}

func (r *sessionRepository) Create(ctx context.Context, session *models.CheckoutSession) (*models.CheckoutSession, error) {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (r *sessionRepository) FindByKey(ctx context.Context, sessionKey string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("session_key = ?", sessionKey).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByKeyForUpdate locks the session row for the surrounding transaction,
// serializing concurrent mutations of the same session.
func (r *sessionRepository) FindByKeyForUpdate(ctx context.Context, sessionKey string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("session_key = ?", sessionKey).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) Save(ctx context.Context, session *models.CheckoutSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}
