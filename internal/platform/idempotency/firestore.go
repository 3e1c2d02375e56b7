package idempotency

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

const (
	collection           = "idempotencyKeys"
	defaultCleanupLimit  = 200
	maxDeletesPerCleanup = 450
)

type recordDocument struct {
	Fingerprint string              `firestore:"fingerprint"`
	Completed   bool                `firestore:"completed"`
	Status      int                 `firestore:"status"`
	Header      map[string][]string `firestore:"header"`
	Body        []byte              `firestore:"body"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func (d recordDocument) record() Record {
	return Record{
		Fingerprint: d.Fingerprint,
		Completed:   d.Completed,
		Status:      d.Status,
		Header:      http.Header(d.Header),
		Body:        d.Body,
		CreatedAt:   d.CreatedAt,
		ExpiresAt:   d.ExpiresAt,
	}
}

func documentFrom(r Record) recordDocument {
	return recordDocument{
		Fingerprint: r.Fingerprint,
		Completed:   r.Completed,
		Status:      r.Status,
		Header:      map[string][]string(r.Header),
		Body:        r.Body,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

// FirestoreStore shares reservations across instances.
type FirestoreStore struct {
	provider *pfirestore.Provider
	records  *pfirestore.BaseRepository[recordDocument]
}

// NewFirestoreStore constructs a store on provider.
func NewFirestoreStore(provider *pfirestore.Provider) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency: firestore provider is required")
	}
	return &FirestoreStore{
		provider: provider,
		records:  pfirestore.NewBaseRepository[recordDocument](provider, collection),
	}, nil
}

func (s *FirestoreStore) Reserve(ctx context.Context, key Key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	var (
		state  State
		result Record
	)
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		var existing *Record
		doc, err := s.records.Get(ctx, key.ID())
		switch {
		case err == nil:
			record := doc.Data.record()
			existing = &record
		case !pfirestore.IsNotFound(err):
			return err
		}

		state, result, err = reserve(existing, fingerprint, now.UTC(), ttl)
		if err != nil || state != StateNew {
			return err
		}
		_, err = s.records.Set(ctx, key.ID(), documentFrom(result))
		return err
	})
	if err != nil {
		return 0, Record{}, err
	}
	return state, result, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key Key, fingerprint string, record Record, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return s.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		createdAt := now.UTC()
		doc, err := s.records.Get(ctx, key.ID())
		switch {
		case err == nil:
			if doc.Data.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
			createdAt = doc.Data.CreatedAt
		case !pfirestore.IsNotFound(err):
			return err
		}

		record.Fingerprint = fingerprint
		record.Completed = true
		record.Header = storableHeader(record.Header)
		record.CreatedAt = createdAt
		record.ExpiresAt = now.UTC().Add(ttl)
		_, err = s.records.Set(ctx, key.ID(), documentFrom(record))
		return err
	})
}

func (s *FirestoreStore) Release(ctx context.Context, key Key) error {
	err := s.records.Delete(ctx, key.ID())
	if pfirestore.IsNotFound(err) {
		return nil
	}
	return err
}

// CleanupExpired deletes up to limit expired records in one transaction.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultCleanupLimit
	}
	if limit > maxDeletesPerCleanup {
		limit = maxDeletesPerCleanup
	}

	docs, err := s.records.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now.UTC()).Limit(limit)
	})
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		for _, doc := range docs {
			if err := s.records.Delete(ctx, doc.ID); err != nil && !pfirestore.IsNotFound(err) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}
