package bookbuddy

import (
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RegisterBookRoutes mounts the saved-library API. Every route requires the
// session boundary.
func RegisterBookRoutes[T any](app router.Router[T], controller *BookController, protected router.MiddlewareFunc) {
	mw := middlewares(protected)

	app.Get("/api/books", controller.List, mw...).
		SetName("books.list")
	app.Get("/api/library", controller.Library, mw...).
		SetName("books.library")
	app.Post("/api/books", controller.Create, mw...).
		SetName("books.create")
	app.Put("/api/books/:id", controller.Update, mw...).
		SetName("books.update")
	app.Patch("/api/books/:id/favorite", controller.ToggleFavorite, mw...).
		SetName("books.favorite")
	app.Delete("/api/books/:id", controller.Delete, mw...).
		SetName("books.delete")
}

// BookController serves the saved-library JSON API.
type BookController struct {
	Logger Logger
	Repo   RepositoryManager
}

func NewBookController(repo RepositoryManager, logger Logger) *BookController {
	if logger == nil {
		logger = defLogger{}
	}
	if repo == nil {
		panic("Missing RepositoryManager in book controller...")
	}
	return &BookController{Logger: logger, Repo: repo}
}

func (b *BookController) List(ctx router.Context) error {
	userID, ok := UserIDFromRouter(ctx, "")
	if !ok {
		return WriteError(ctx, b.Logger, ErrUserNotFound)
	}

	records, err := b.Repo.Books().ListForUser(ctx.Context(), userID)
	if err != nil {
		return WriteError(ctx, b.Logger, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"books": records,
	})
}

// LibraryOverview is the aggregate view of a user's saved library: the
// saved list itself plus totals and the current reading goal.
type LibraryOverview struct {
	Lists []LibraryList `json:"lists"`
	Stats LibraryStats  `json:"stats"`
	Goal  ReadingGoal   `json:"goal"`
}

type LibraryList struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Type  string         `json:"type"`
	Books []LibraryEntry `json:"books"`
}

type LibraryEntry struct {
	ID      uuid.UUID  `json:"id"`
	Book    *Book      `json:"book"`
	Status  string     `json:"status"`
	AddedAt *time.Time `json:"addedAt,omitempty"`
}

type LibraryStats struct {
	TotalBooks    int `json:"totalBooks"`
	TotalPages    int `json:"totalPages"`
	BooksThisYear int `json:"booksThisYear"`
}

type ReadingGoal struct {
	Year         int `json:"year"`
	TargetBooks  int `json:"targetBooks"`
	CurrentBooks int `json:"currentBooks"`
}

// defaultGoalTarget is the yearly reading goal until goals become
// user configurable.
const defaultGoalTarget = 24

// BuildLibraryOverview folds a user's saved books into the overview
// structure. Books without a creation timestamp never count toward the
// current year.
func BuildLibraryOverview(books []*Book, now time.Time) LibraryOverview {
	entries := make([]LibraryEntry, 0, len(books))
	thisYear := 0
	for _, book := range books {
		entries = append(entries, LibraryEntry{
			ID:      book.ID,
			Book:    book,
			Status:  "saved",
			AddedAt: book.CreatedAt,
		})
		if book.CreatedAt != nil && book.CreatedAt.Year() == now.Year() {
			thisYear++
		}
	}

	return LibraryOverview{
		Lists: []LibraryList{{
			ID:    "saved",
			Name:  "Saved Books",
			Type:  "saved",
			Books: entries,
		}},
		Stats: LibraryStats{
			TotalBooks:    len(books),
			BooksThisYear: thisYear,
		},
		Goal: ReadingGoal{
			Year:         now.Year(),
			TargetBooks:  defaultGoalTarget,
			CurrentBooks: len(books),
		},
	}
}

func (b *BookController) Library(ctx router.Context) error {
	userID, ok := UserIDFromRouter(ctx, "")
	if !ok {
		return WriteError(ctx, b.Logger, ErrUserNotFound)
	}

	records, err := b.Repo.Books().ListForUser(ctx.Context(), userID)
	if err != nil {
		return WriteError(ctx, b.Logger, err)
	}

	return ctx.JSON(http.StatusOK, BuildLibraryOverview(records, time.Now()))
}

// SaveBookRequest payload
type SaveBookRequest struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	Key     string `json:"key"`
	CoverID int    `json:"coverId"`
	OLID    string `json:"olid"`
}

// Validate will run validation rules
func (r SaveBookRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 500)),
		validation.Field(&r.Key, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Author, validation.Length(0, 500)),
	)
}

func (b *BookController) Create(ctx router.Context) error {
	userID, ok := UserIDFromRouter(ctx, "")
	if !ok {
		return WriteError(ctx, b.Logger, ErrUserNotFound)
	}

	payload := new(SaveBookRequest)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{
			"error":  "Validation failed",
			"fields": FormatValidationErrorToMap(err),
		})
	}

	record, err := b.Repo.Books().Create(ctx.Context(), &Book{
		UserID:  userID,
		Title:   payload.Title,
		Author:  payload.Author,
		Key:     payload.Key,
		CoverID: payload.CoverID,
		OLID:    payload.OLID,
	})
	if err != nil {
		return WriteError(ctx, b.Logger, err)
	}

	return ctx.JSON(http.StatusCreated, map[string]any{
		"book": record,
	})
}

// UpdateBookRequest payload. Absent fields leave the stored value alone.
type UpdateBookRequest struct {
	Title      *string `json:"title"`
	Author     *string `json:"author"`
	CoverID    *int    `json:"coverId"`
	OLID       *string `json:"olid"`
	IsFavorite *bool   `json:"isFavorite"`
}

// Validate will run validation rules
func (r UpdateBookRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Length(1, 500)),
		validation.Field(&r.Author, validation.Length(0, 500)),
	)
}

func (b *BookController) Update(ctx router.Context) error {
	userID, ok := UserIDFromRouter(ctx, "")
	if !ok {
		return WriteError(ctx, b.Logger, ErrUserNotFound)
	}

	bookID, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid book id",
		})
	}

	payload := new(UpdateBookRequest)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{
			"error":  "Validation failed",
			"fields": FormatValidationErrorToMap(err),
		})
	}

	record, err := b.Repo.Books().Update(ctx.Context(), userID, bookID, payload.patch())
	if err != nil {
		return WriteError(ctx, b.Logger, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"book": record,
	})
}

func (r *UpdateBookRequest) patch() BookPatch {
	return BookPatch{
		Title:      r.Title,
		Author:     r.Author,
		CoverID:    r.CoverID,
		OLID:       r.OLID,
		IsFavorite: r.IsFavorite,
	}
}

func (b *BookController) ToggleFavorite(ctx router.Context) error {
	userID, ok := UserIDFromRouter(ctx, "")
	if !ok {
		return WriteError(ctx, b.Logger, ErrUserNotFound)
	}

	bookID, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid book id",
		})
	}

	current, err := b.Repo.Books().GetForUser(ctx.Context(), userID, bookID)
	if err != nil {
		return WriteError(ctx, b.Logger, err)
	}

	record, err := b.Repo.Books().SetFavorite(ctx.Context(), userID, bookID, !current.IsFavorite)
	if err != nil {
		return WriteError(ctx, b.Logger, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"book": record,
	})
}

func (b *BookController) Delete(ctx router.Context) error {
	userID, ok := UserIDFromRouter(ctx, "")
	if !ok {
		return WriteError(ctx, b.Logger, ErrUserNotFound)
	}

	bookID, err := uuid.Parse(ctx.Param("id", ""))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid book id",
		})
	}

	if err := b.Repo.Books().Delete(ctx.Context(), userID, bookID); err != nil {
		return WriteError(ctx, b.Logger, err)
	}

	return ctx.JSON(http.StatusOK, map[string]string{
		"message": "Book removed",
	})
}
