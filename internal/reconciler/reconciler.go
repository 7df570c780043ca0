// Package reconciler applies a run's posts to storage: new posts are
// inserted, changed ones updated in place and identical ones left alone.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"sjsage522/hotissueworker/internal/model"
	"sjsage522/hotissueworker/internal/normalizer"
	"sjsage522/hotissueworker/logger"
	apperrors "sjsage522/hotissueworker/pkg/errors"
)

// Tx is the storage view inside one transaction
type Tx interface {
	// Lookup returns the stored row for key, or nil when there is none
	Lookup(key model.Key) (*model.StoredPost, error)
	// Insert stores a new row and fills its Seq
	Insert(row *model.StoredPost) error
	// Update sets columns of the row with the given seq
	Update(seq int64, columns map[string]any) error
}

// Store runs fn inside a transaction on the table of domain. Returning an
// error from fn rolls the transaction back.
type Store interface {
	WithinTx(ctx context.Context, domain model.Domain, fn func(tx Tx) error) error
}

// Result summarizes one reconciliation
type Result struct {
	Inserted int
	Updated  int
	Skipped  int
	Rejected int
	Events   []model.IngestEvent
}

// Reconciler dedups and upserts normalized posts
type Reconciler struct {
	store Store
	norm  *normalizer.Normalizer
	loc   *time.Location
	log   *logger.Logger
}

// New creates a reconciler comparing dates in loc
func New(store Store, norm *normalizer.Normalizer, loc *time.Location) *Reconciler {
	if loc == nil {
		loc = time.Local
	}
	return &Reconciler{
		store: store,
		norm:  norm,
		loc:   loc,
		log:   logger.ForReconciler(),
	}
}

// Reconcile normalizes raws and applies them to the table of domain in a
// single transaction. Records that cannot be normalized or keyed are counted
// as rejected; a storage error rolls everything back.
func (r *Reconciler) Reconcile(ctx context.Context, domain model.Domain, raws []model.RawPost, runID string) (Result, error) {
	var res Result

	err := r.store.WithinTx(ctx, domain, func(tx Tx) error {
		res = Result{}
		for i, raw := range raws {
			post, err := r.prepare(raw)
			if err != nil {
				res.Rejected++
				r.log.Warn().Err(err).Int("record", i).Str("run_id", runID).Msg("Record rejected")
				continue
			}

			ev, action, err := r.apply(tx, post)
			if err != nil {
				return apperrors.NewPersistence(string(domain), fmt.Sprintf("apply %s", post.Key()), err)
			}

			switch action {
			case model.ActionInsert:
				res.Inserted++
			case model.ActionUpdate:
				res.Updated++
			default:
				res.Skipped++
				continue
			}
			ev.Domain = domain
			ev.RunID = runID
			res.Events = append(res.Events, ev)
		}
		return nil
	})
	if err != nil {
		r.log.Error().Err(err).Str("domain", string(domain)).Str("run_id", runID).Msg("Batch rolled back")
		if !apperrors.IsType(err, apperrors.ErrorTypePersistence) {
			err = apperrors.NewPersistence(string(domain), "transaction", err)
		}
		return Result{}, err
	}

	r.log.Info().
		Str("domain", string(domain)).
		Str("run_id", runID).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("rejected", res.Rejected).
		Msg("Batch committed")
	return res, nil
}

// prepare normalizes one record. A panic while normalizing rejects the
// record instead of aborting the batch.
func (r *Reconciler) prepare(raw model.RawPost) (post model.CanonicalPost, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = apperrors.NewValidation(raw.Community, fmt.Sprintf("normalize: %v", p))
		}
	}()

	post = r.norm.Normalize(raw)
	if !post.Key().Valid() {
		return post, apperrors.NewValidation(post.Community, "empty dedup key")
	}
	return post, nil
}

// apply inserts, updates or skips one post. The returned action is empty
// for a skip.
func (r *Reconciler) apply(tx Tx, post model.CanonicalPost) (model.IngestEvent, model.IngestAction, error) {
	key := post.Key()
	stored, err := tx.Lookup(key)
	if err != nil {
		return model.IngestEvent{}, "", err
	}

	if stored == nil {
		row := model.NewStoredPost(post)
		if err := tx.Insert(&row); err != nil {
			return model.IngestEvent{}, "", err
		}
		return event(model.ActionInsert, row.Seq, post), model.ActionInsert, nil
	}

	current := stored.Canonical(r.loc)
	changes := Diff(current, post)
	if len(changes) == 0 {
		return model.IngestEvent{}, "", nil
	}
	if err := tx.Update(stored.Seq, changes); err != nil {
		return model.IngestEvent{}, "", err
	}
	return event(model.ActionUpdate, stored.Seq, post), model.ActionUpdate, nil
}

// Diff returns the columns of current that differ from incoming. Columns
// forming the dedup key of incoming are never part of the result.
func Diff(current, incoming model.CanonicalPost) map[string]any {
	changes := make(map[string]any)

	if current.RegDateString() != incoming.RegDateString() {
		changes["reg_date"] = incoming.RegDate
	}
	if current.Views != incoming.Views {
		changes["views"] = incoming.Views
	}
	if current.Recommend != incoming.Recommend {
		changes["recommend"] = incoming.Recommend
	}
	if current.Content != incoming.Content {
		changes["content"] = incoming.Content
	}
	if current.Images != incoming.Images {
		changes["images"] = incoming.Images
	}
	if current.Category != incoming.Category {
		changes["category"] = incoming.Category
	}
	if current.Link != incoming.Link {
		changes["link"] = incoming.Link
	}
	if incoming.Key().Mode == model.KeyPostID {
		if current.Title != incoming.Title {
			changes["title"] = incoming.Title
		}
		if current.Writer != incoming.Writer {
			changes["writer"] = incoming.Writer
		}
	}
	return changes
}

func event(action model.IngestAction, seq int64, p model.CanonicalPost) model.IngestEvent {
	return model.IngestEvent{
		Action:    action,
		Seq:       seq,
		PostID:    p.PostID,
		Community: p.Community,
		Title:     p.Title,
		Link:      p.Link,
		RegDate:   p.RegDateString(),
		Views:     p.Views,
		Recommend: p.Recommend,
	}
}
