package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Book は books テーブルの1行です。
type Book struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Author string  `json:"author"`
	Price  float64 `json:"price"`
}

// BookInput は新規作成時の入力です。
type BookInput struct {
	Name   string  `json:"name"`
	Author string  `json:"author"`
	Price  float64 `json:"price"`
}

// BookPatch は部分更新の入力です。nil のフィールドは既存値を保持します。
type BookPatch struct {
	Name   *string
	Author *string
	Price  *float64
}

// ListBooks は全書籍を ID 順に返します。
func (s *Store) ListBooks(ctx context.Context) ([]Book, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, author, price FROM books ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	books := []Book{}
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Name, &b.Author, &b.Price); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return books, nil
}

// GetBook は ID に一致する書籍を返します。存在しない場合は (nil, nil) です。
func (s *Store) GetBook(ctx context.Context, id int64) (*Book, error) {
	var b Book
	err := s.db.QueryRowContext(ctx, `SELECT id, name, author, price FROM books WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &b.Author, &b.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query book %d: %w", id, err)
	}
	return &b, nil
}

// CreateBook は書籍を追加し、採番された ID を返します。
func (s *Store) CreateBook(ctx context.Context, in BookInput) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO books (name, author, price) VALUES (?, ?, ?)`,
		in.Name, in.Author, in.Price)
	if err != nil {
		return 0, fmt.Errorf("insert book: %w", err)
	}
	return res.LastInsertId()
}

// UpdateBook は現在の行を読み、patch で指定されたフィールドだけを上書きします。
func (s *Store) UpdateBook(ctx context.Context, id int64, patch BookPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var current Book
	err = tx.QueryRowContext(ctx, `SELECT id, name, author, price FROM books WHERE id = ?`, id).
		Scan(&current.ID, &current.Name, &current.Author, &current.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query book %d: %w", id, err)
	}

	merged := patch.apply(current)
	if _, err := tx.ExecContext(ctx,
		`UPDATE books SET name = ?, author = ?, price = ? WHERE id = ?`,
		merged.Name, merged.Author, merged.Price, id); err != nil {
		return fmt.Errorf("update book %d: %w", id, err)
	}
	return tx.Commit()
}

// DeleteBook は書籍を削除します。該当行が無ければ ErrNotFound を返します。
func (s *Store) DeleteBook(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ImportBooks は複数の書籍を1トランザクションで追加します。途中で失敗した場合は何も残りません。
func (s *Store) ImportBooks(ctx context.Context, books []BookInput) (int, error) {
	if len(books) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO books (name, author, price) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	for i, b := range books {
		if _, err := stmt.ExecContext(ctx, b.Name, b.Author, b.Price); err != nil {
			return 0, fmt.Errorf("import row %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(books), nil
}

func (p BookPatch) apply(b Book) Book {
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.Price != nil {
		b.Price = *p.Price
	}
	return b
}
