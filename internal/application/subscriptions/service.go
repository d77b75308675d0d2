package subscriptions

import (
	"context"
	"errors"
	"time"

	"bloodbank-ledger/internal/application/directory"
	"bloodbank-ledger/internal/domain"
	"bloodbank-ledger/internal/infrastructure/locks"
	"bloodbank-ledger/internal/infrastructure/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Service struct {
	DB        *gorm.DB
	Directory *directory.Service
	Locks     locks.Locker
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// SubscriptionView is an edge with the party on the other end attached.
type SubscriptionView struct {
	domain.Relationship
	Organisation domain.Party `json:"organisation"`
}

type SubscriberView struct {
	domain.Relationship
	Subscriber domain.Party `json:"subscriber"`
}

type StatusView struct {
	IsSubscribed bool                 `json:"is_subscribed"`
	Subscription *domain.Relationship `json:"subscription"`
}

// PairKey is the lock key for one (subject, object) edge.
func PairKey(subjectID, objectID uuid.UUID) string {
	return "subscription:" + subjectID.String() + ":" + objectID.String()
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Subscribe makes a donor or hospital follow an organisation. An inactive
// edge is reactivated in place; an active one is AlreadySubscribed.
func (s *Service) Subscribe(ctx context.Context, subscriberID, organisationID uuid.UUID) (domain.Relationship, error) {
	subscriber, err := s.Directory.Resolve(ctx, subscriberID)
	if err != nil {
		return domain.Relationship{}, err
	}
	if subscriber.Role != domain.RoleDonor && subscriber.Role != domain.RoleHospital {
		return domain.Relationship{}, domain.NewError(domain.ErrInvalidCounterparty, "Only donors and hospitals can subscribe to organisations")
	}
	org, err := s.Directory.ResolveRole(ctx, organisationID, domain.RoleOrganisation)
	if err != nil {
		return domain.Relationship{}, err
	}
	return s.follow(ctx, subscriber, org, "Already subscribed to this organisation")
}

// SubscribeToHospital is the reverse edge: an organisation following a hospital it supplies.
func (s *Service) SubscribeToHospital(ctx context.Context, organisationID, hospitalID uuid.UUID) (domain.Relationship, error) {
	org, err := s.Directory.ResolveRole(ctx, organisationID, domain.RoleOrganisation)
	if err != nil {
		return domain.Relationship{}, err
	}
	hospital, err := s.Directory.ResolveRole(ctx, hospitalID, domain.RoleHospital)
	if err != nil {
		return domain.Relationship{}, err
	}
	return s.follow(ctx, org, hospital, "Already subscribed to this hospital")
}

func (s *Service) Unsubscribe(ctx context.Context, subscriberID, organisationID uuid.UUID) error {
	return s.unfollow(ctx, subscriberID, organisationID)
}

func (s *Service) UnsubscribeFromHospital(ctx context.Context, organisationID, hospitalID uuid.UUID) error {
	return s.unfollow(ctx, organisationID, hospitalID)
}

func (s *Service) follow(ctx context.Context, subject, object domain.Party, alreadyMsg string) (domain.Relationship, error) {
	release, err := s.Locks.Acquire(ctx, PairKey(subject.ID, object.ID))
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.Metrics.IncLockConflict("subscription")
		}
		return domain.Relationship{}, err
	}
	defer release()

	var edge domain.Relationship
	action := "created"
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("subject_id = ? AND object_id = ?", subject.ID, object.ID).First(&edge).Error
		switch {
		case err == nil:
			if edge.Active() {
				return domain.NewError(domain.ErrAlreadySubscribed, alreadyMsg)
			}
			action = "reactivated"
			edge.Status = domain.StatusActive
			edge.SubscribedAt = s.now()
			return tx.Model(&edge).Updates(map[string]interface{}{
				"status":        edge.Status,
				"subscribed_at": edge.SubscribedAt,
			}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			edge = domain.Relationship{
				SubjectID:     subject.ID,
				SubjectRole:   subject.Role,
				ObjectID:      object.ID,
				ObjectRole:    object.Role,
				Status:        domain.StatusActive,
				SubscribedAt:  s.now(),
				Notifications: domain.DefaultNotificationPreferences(),
			}
			return tx.Create(&edge).Error
		default:
			return err
		}
	})
	if err != nil {
		return domain.Relationship{}, err
	}
	s.Metrics.IncSubscription(action)
	log.Info().Str("subject_id", subject.ID.String()).Str("object_id", object.ID.String()).Str("action", action).Msg("subscription active")
	return edge, nil
}

func (s *Service) unfollow(ctx context.Context, subjectID, objectID uuid.UUID) error {
	release, err := s.Locks.Acquire(ctx, PairKey(subjectID, objectID))
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.Metrics.IncLockConflict("subscription")
		}
		return err
	}
	defer release()

	res := s.DB.WithContext(ctx).Model(&domain.Relationship{}).
		Where("subject_id = ? AND object_id = ? AND status = ?", subjectID, objectID, domain.StatusActive).
		Update("status", domain.StatusInactive)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("Subscription not found")
	}
	s.Metrics.IncSubscription("deactivated")
	return nil
}

// IsActive reads the edge's current status.
func (s *Service) IsActive(ctx context.Context, subjectID, objectID uuid.UUID) (bool, error) {
	_, ok, err := s.ActiveTx(s.DB.WithContext(ctx), subjectID, objectID)
	return ok, err
}

// ActiveTx loads the active edge inside tx. Callers that go on to write based
// on the answer must hold PairKey(subjectID, objectID).
func (s *Service) ActiveTx(tx *gorm.DB, subjectID, objectID uuid.UUID) (domain.Relationship, bool, error) {
	var edge domain.Relationship
	err := tx.Where("subject_id = ? AND object_id = ? AND status = ?", subjectID, objectID, domain.StatusActive).First(&edge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return edge, false, nil
	}
	if err != nil {
		return edge, false, err
	}
	return edge, true, nil
}

func (s *Service) Status(ctx context.Context, subscriberID, organisationID uuid.UUID) (StatusView, error) {
	edge, ok, err := s.ActiveTx(s.DB.WithContext(ctx), subscriberID, organisationID)
	if err != nil || !ok {
		return StatusView{}, err
	}
	return StatusView{IsSubscribed: true, Subscription: &edge}, nil
}

// ListActiveFor returns the organisations subjectID follows, newest subscription first.
func (s *Service) ListActiveFor(ctx context.Context, subjectID uuid.UUID) ([]SubscriptionView, error) {
	var edges []domain.Relationship
	if err := s.DB.WithContext(ctx).
		Where("subject_id = ? AND status = ?", subjectID, domain.StatusActive).
		Order("subscribed_at DESC").Find(&edges).Error; err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.ObjectID)
	}
	parties, err := s.partiesByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]SubscriptionView, 0, len(edges))
	for _, e := range edges {
		p, ok := parties[e.ObjectID]
		if !ok {
			continue
		}
		out = append(out, SubscriptionView{Relationship: e, Organisation: p})
	}
	return out, nil
}

// ListSubscribersOf returns who follows objectID. A non-empty role keeps only subjects of that role.
func (s *Service) ListSubscribersOf(ctx context.Context, objectID uuid.UUID, role domain.Role) ([]SubscriberView, error) {
	q := s.DB.WithContext(ctx).Where("object_id = ? AND status = ?", objectID, domain.StatusActive)
	if role != "" {
		q = q.Where("subject_role = ?", role)
	}
	var edges []domain.Relationship
	if err := q.Order("subscribed_at DESC").Find(&edges).Error; err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.SubjectID)
	}
	parties, err := s.partiesByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]SubscriberView, 0, len(edges))
	for _, e := range edges {
		p, ok := parties[e.SubjectID]
		if !ok {
			continue
		}
		out = append(out, SubscriberView{Relationship: e, Subscriber: p})
	}
	return out, nil
}

// AvailableOrganisations lists organisations subscriberID does not actively follow.
func (s *Service) AvailableOrganisations(ctx context.Context, subscriberID uuid.UUID) ([]domain.Party, error) {
	followed := s.DB.Model(&domain.Relationship{}).Select("object_id").
		Where("subject_id = ? AND status = ?", subscriberID, domain.StatusActive)
	out := []domain.Party{}
	err := s.DB.WithContext(ctx).
		Where("role = ? AND id NOT IN (?)", domain.RoleOrganisation, followed).
		Order("organisation_name ASC").Find(&out).Error
	return out, err
}

func (s *Service) partiesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Party, error) {
	parties, err := s.Directory.FindMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	m := make(map[uuid.UUID]domain.Party, len(parties))
	for _, p := range parties {
		m[p.ID] = p
	}
	return m, nil
}
