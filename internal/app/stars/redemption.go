package stars

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/peopledesk/starled/internal/domain"
	"github.com/peopledesk/starled/internal/infra/observability"
)

// Redemption validates and atomically records star grants.
type Redemption struct {
	store     domain.LedgerStore
	directory domain.EmployeeDirectory
	quota     *Tracker
}

// NewRedemption creates the redemption service.
func NewRedemption(store domain.LedgerStore, directory domain.EmployeeDirectory, quota *Tracker) *Redemption {
	return &Redemption{store: store, directory: directory, quota: quota}
}

// GiveStar validates the request and appends exactly one grant on success.
// Validation fails fast, first violation wins; no failure path leaves a
// partially applied grant. A detected optimistic conflict is retried once;
// a second conflict surfaces as quota exhaustion.
func (r *Redemption) GiveStar(ctx context.Context, giverID, recipientID string, reason domain.ReasonCode, message string, now time.Time) (domain.StarGrant, error) {
	// Identity comparison needs no directory lookup.
	if giverID == recipientID {
		observability.GrantRejections.WithLabelValues(observability.RejectSelfRecognition).Inc()
		return domain.StarGrant{}, domain.ErrSelfRecognition
	}

	ok, err := r.directory.Exists(ctx, recipientID)
	if err != nil {
		observability.GrantRejections.WithLabelValues(observability.RejectStorage).Inc()
		return domain.StarGrant{}, err
	}
	if !ok {
		observability.GrantRejections.WithLabelValues(observability.RejectRecipientNotFound).Inc()
		return domain.StarGrant{}, domain.ErrRecipientNotFound
	}

	if !reason.Valid() {
		observability.GrantRejections.WithLabelValues(observability.RejectInvalidReason).Inc()
		return domain.StarGrant{}, domain.ErrInvalidReason
	}

	msg := strings.TrimSpace(message)
	if msg == "" {
		observability.GrantRejections.WithLabelValues(observability.RejectEmptyMessage).Inc()
		return domain.StarGrant{}, domain.ErrEmptyMessage
	}

	// Fail fast on an already-spent quota; the store re-checks atomically.
	status, err := r.quota.Check(ctx, giverID, now)
	if err != nil {
		observability.GrantRejections.WithLabelValues(observability.RejectStorage).Inc()
		return domain.StarGrant{}, err
	}
	if status.Available <= 0 {
		observability.GrantRejections.WithLabelValues(observability.RejectQuotaExhausted).Inc()
		return domain.StarGrant{}, domain.ErrQuotaExhausted
	}

	grant := domain.StarGrant{
		ID:          uuid.NewString(),
		GiverID:     giverID,
		RecipientID: recipientID,
		Reason:      reason,
		Message:     msg,
		CreatedAt:   now.UTC(),
	}
	idemKey := domain.IdempotencyKey(giverID, recipientID, reason, msg, now)

	opStart := time.Now()
	stored, err := r.store.AppendGrant(ctx, grant, idemKey)
	observability.ObserveStoreOp("append_grant", opStart)

	if errors.Is(err, domain.ErrConflict) {
		observability.ConflictRetries.Inc()
		log.WithFields(log.Fields{
			"giver":     giverID,
			"recipient": recipientID,
		}).Debug("grant append conflicted, retrying once")

		grant.ID = uuid.NewString()
		stored, err = r.store.AppendGrant(ctx, grant, idemKey)
		if errors.Is(err, domain.ErrConflict) {
			err = domain.ErrQuotaExhausted
		}
	}
	if err != nil {
		label := observability.RejectStorage
		if errors.Is(err, domain.ErrQuotaExhausted) {
			label = observability.RejectQuotaExhausted
		}
		observability.GrantRejections.WithLabelValues(label).Inc()
		return domain.StarGrant{}, err
	}

	observability.GrantsIssued.Inc()
	log.WithFields(log.Fields{
		"grant":     stored.ID,
		"giver":     stored.GiverID,
		"recipient": stored.RecipientID,
		"reason":    stored.Reason,
	}).Info("star granted")
	return stored, nil
}
