package bookbuddy

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type books struct {
	repo repository.Repository[*Book]
	db   *bun.DB
}

var _ Books = (*books)(nil)

// NewBooksRepository builds the saved-library store on top of bun.
func NewBooksRepository(db *bun.DB) Books {
	repo := repository.NewRepository[*Book](db, repository.ModelHandlers[*Book]{
		NewRecord: func() *Book { return &Book{} },
		GetID: func(b *Book) uuid.UUID {
			if b == nil {
				return uuid.Nil
			}
			return b.ID
		},
		SetID: func(b *Book, id uuid.UUID) {
			if b != nil {
				b.ID = id
			}
		},
		GetIdentifier: func() string { return "key" },
	})

	return &books{repo: repo, db: db}
}

func (r *books) Create(ctx context.Context, book *Book) (*Book, error) {
	if book.ID == uuid.Nil {
		book.ID = uuid.New()
	}
	record, err := r.repo.CreateTx(ctx, r.db, book)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, errors.New("Book already saved", errors.CategoryConflict).
				WithTextCode("BOOK_EXISTS")
		}
		return nil, err
	}
	return record, nil
}

func (r *books) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Book, error) {
	var records []*Book
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to list books")
	}
	return records, nil
}

func (r *books) GetForUser(ctx context.Context, userID, bookID uuid.UUID) (*Book, error) {
	record := &Book{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", bookID).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, errors.New("Book not found", errors.CategoryNotFound).
				WithCode(errors.CodeNotFound).
				WithTextCode("BOOK_NOT_FOUND")
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load book")
	}
	return record, nil
}

func (r *books) Update(ctx context.Context, userID, bookID uuid.UUID, patch BookPatch) (*Book, error) {
	q := r.db.NewUpdate().
		Model((*Book)(nil)).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", bookID).
		Where("user_id = ?", userID)

	if patch.Title != nil {
		q = q.Set("title = ?", *patch.Title)
	}
	if patch.Author != nil {
		q = q.Set("author = ?", *patch.Author)
	}
	if patch.CoverID != nil {
		q = q.Set("cover_id = ?", *patch.CoverID)
	}
	if patch.OLID != nil {
		q = q.Set("olid = ?", *patch.OLID)
	}
	if patch.IsFavorite != nil {
		q = q.Set("is_favorite = ?", *patch.IsFavorite)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update book")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, errors.New("Book not found", errors.CategoryNotFound).
			WithCode(errors.CodeNotFound).
			WithTextCode("BOOK_NOT_FOUND")
	}
	return r.GetForUser(ctx, userID, bookID)
}

func (r *books) SetFavorite(ctx context.Context, userID, bookID uuid.UUID, favorite bool) (*Book, error) {
	res, err := r.db.NewUpdate().
		Model((*Book)(nil)).
		Set("is_favorite = ?", favorite).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", bookID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update book")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, errors.New("Book not found", errors.CategoryNotFound).
			WithCode(errors.CodeNotFound).
			WithTextCode("BOOK_NOT_FOUND")
	}
	return r.GetForUser(ctx, userID, bookID)
}

func (r *books) Delete(ctx context.Context, userID, bookID uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*Book)(nil)).
		Where("id = ?", bookID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete book")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New("Book not found", errors.CategoryNotFound).
			WithCode(errors.CodeNotFound).
			WithTextCode("BOOK_NOT_FOUND")
	}
	return nil
}
