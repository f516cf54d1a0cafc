package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(v string) *string     { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestOpenCreatesNestedDir(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nested", "dir", "db.sqlite"))
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))
}

func TestListBooksEmpty(t *testing.T) {
	s := tempStore(t)
	books, err := s.ListBooks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)
}

func TestCreateThenGetBook(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	id, err := s.CreateBook(ctx, BookInput{Name: "A", Author: "B", Price: 9.99})
	require.NoError(t, err)
	assert.Positive(t, id)

	book, err := s.GetBook(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, book)
	assert.Equal(t, Book{ID: id, Name: "A", Author: "B", Price: 9.99}, *book)
}

func TestCreateBookRoundTrip(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	inputs := []BookInput{
		{Name: "", Author: "", Price: 0},
		{Name: "Dune", Author: "Frank Herbert", Price: 12.5},
		{Name: "日本語の本", Author: "著者", Price: 1500},
		{Name: "Dune", Author: "Frank Herbert", Price: 12.5},
	}
	for _, in := range inputs {
		id, err := s.CreateBook(ctx, in)
		require.NoError(t, err)

		got, err := s.GetBook(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, in.Name, got.Name)
		assert.Equal(t, in.Author, got.Author)
		assert.Equal(t, in.Price, got.Price)
	}

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, len(inputs))
}

func TestGetBookMissingReturnsNil(t *testing.T) {
	s := tempStore(t)
	book, err := s.GetBook(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, book)
}

func TestUpdateBookPartial(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	id, err := s.CreateBook(ctx, BookInput{Name: "A", Author: "B", Price: 9.99})
	require.NoError(t, err)

	require.NoError(t, s.UpdateBook(ctx, id, BookPatch{Price: floatPtr(4.5)}))

	book, err := s.GetBook(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A", book.Name)
	assert.Equal(t, "B", book.Author)
	assert.Equal(t, 4.5, book.Price)

	require.NoError(t, s.UpdateBook(ctx, id, BookPatch{Name: strPtr("C"), Author: strPtr("")}))
	book, err = s.GetBook(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Book{ID: id, Name: "C", Author: "", Price: 4.5}, *book)
}

func TestUpdateBookMissing(t *testing.T) {
	s := tempStore(t)
	err := s.UpdateBook(context.Background(), 7, BookPatch{Name: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteBookTwice(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	id, err := s.CreateBook(ctx, BookInput{Name: "A", Author: "B", Price: 1})
	require.NoError(t, err)

	require.NoError(t, s.DeleteBook(ctx, id))
	assert.ErrorIs(t, s.DeleteBook(ctx, id), ErrNotFound)

	book, err := s.GetBook(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, book)
}

func TestImportBooks(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	n, err := s.ImportBooks(ctx, []BookInput{
		{Name: "One", Author: "X", Price: 1},
		{Name: "Two", Author: "Y", Price: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "One", books[0].Name)
	assert.Equal(t, "Two", books[1].Name)

	n, err = s.ImportBooks(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImportBooksCanceledWritesNothing(t *testing.T) {
	s := tempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ImportBooks(ctx, []BookInput{{Name: "One", Author: "X", Price: 1}})
	require.Error(t, err)

	books, err := s.ListBooks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestCreateAndFindUser(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, "a@example.com", "$argon2id$hash"))

	u, err := s.FindUser(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "a@example.com", u.Email)
	assert.Equal(t, "$argon2id$hash", u.Password)

	missing, err := s.FindUser(ctx, "A@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateUserDuplicate(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, "a@example.com", "h1"))
	assert.ErrorIs(t, s.CreateUser(ctx, "a@example.com", "h2"), ErrUserExists)

	u, err := s.FindUser(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "h1", u.Password)
}
