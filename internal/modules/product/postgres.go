package product

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"iter"
	"net"
	"time"

	"github.com/georgemunganga/stockwatch/internal/modules/changefeed"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const productColumns = `tenant_id,product_id,sku,name,image_url,price,stock,threshold,last_sold_date,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresStore keeps products in the products table and writes each change
// to product_changes in the same transaction.
type PostgresStore struct {
	db     *sql.DB
	shards int
	newID  func() string
	now    func() time.Time
}

// NewPostgresStore creates a store over db. shards must match the feed readers.
func NewPostgresStore(db *sql.DB, shards int) *PostgresStore {
	return &PostgresStore{db: db, shards: shards, newID: uuid.NewString, now: time.Now}
}

func scanProduct(row rowScanner) (Product, error) {
	var p Product
	var imageURL sql.NullString
	var lastSold sql.NullTime
	if err := row.Scan(&p.TenantID, &p.ProductID, &p.SKU, &p.Name, &imageURL,
		&p.Price, &p.Stock, &p.Threshold, &lastSold, &p.CreatedAt); err != nil {
		return Product{}, err
	}
	if imageURL.Valid {
		p.ImageURL = &imageURL.String
	}
	if lastSold.Valid {
		t := lastSold.Time.UTC()
		p.LastSoldDate = &t
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// classify wraps connection-level failures in ErrTransient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn), errors.As(err, &netErr):
		return fmt.Errorf("%w: %v", ErrTransient, err)
	case errors.As(err, &pqErr):
		// 08: connection exception, 40001: serialization failure, 57P03: cannot connect now
		if pqErr.Code.Class() == "08" || pqErr.Code == "40001" || pqErr.Code == "57P03" {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
	return err
}

func (r *PostgresStore) Get(ctx context.Context, tenantID, productID string) (Product, error) {
	k := KeyOf(tenantID, productID)
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE pk=$1 AND sk=$2`, k.Partition, k.Sort))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, classify(err)
}

func (r *PostgresStore) List(ctx context.Context, tenantID string) iter.Seq2[Product, error] {
	return func(yield func(Product, error) bool) {
		rows, err := r.db.QueryContext(ctx,
			`SELECT `+productColumns+` FROM products WHERE pk=$1 AND sk LIKE $2 ORDER BY sk`,
			PartitionKey(tenantID), sortPrefix+"%")
		if err != nil {
			yield(Product{}, classify(err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				yield(Product{}, err)
				return
			}
			if !yield(p, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Product{}, classify(err))
		}
	}
}

func (r *PostgresStore) Create(ctx context.Context, p Product) (Product, error) {
	p, err := prepare(p, r.newID, r.now)
	if err != nil {
		return Product{}, err
	}
	k := p.Key()
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO products (pk,sk,`+productColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (pk,sk) DO NOTHING`,
			k.Partition, k.Sort, p.TenantID, p.ProductID, p.SKU, p.Name, nullString(p.ImageURL),
			p.Price, p.Stock, p.Threshold, nullTime(p.LastSoldDate), p.CreatedAt)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrConflict, p.ProductID)
		}
		_, err = changefeed.AppendTx(ctx, tx, r.shards, changefeed.KindInsert, k, nil, ToImage(p))
		return err
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (r *PostgresStore) Update(ctx context.Context, tenantID, productID string, patch *Patch) (Product, error) {
	if err := patch.Validate(); err != nil {
		return Product{}, err
	}
	return r.modify(ctx, tenantID, productID, func(p Product) (Product, error) {
		return patch.Apply(p), nil
	})
}

func (r *PostgresStore) Adjust(ctx context.Context, tenantID, productID string, delta int64) (Product, error) {
	return r.modify(ctx, tenantID, productID, func(p Product) (Product, error) {
		stock, err := AdjustStock(p.Stock, delta)
		if err != nil {
			return Product{}, err
		}
		p.Stock = stock
		return p, nil
	})
}

// modify locks the row, applies fn, writes every mutable column and appends
// the change, all in one transaction.
func (r *PostgresStore) modify(ctx context.Context, tenantID, productID string, fn func(Product) (Product, error)) (Product, error) {
	k := KeyOf(tenantID, productID)
	var after Product
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		before, err := scanProduct(tx.QueryRowContext(ctx,
			`SELECT `+productColumns+` FROM products WHERE pk=$1 AND sk=$2 FOR UPDATE`, k.Partition, k.Sort))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		after, err = fn(copyProduct(before))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE products SET sku=$3,name=$4,image_url=$5,price=$6,stock=$7,threshold=$8,last_sold_date=$9
WHERE pk=$1 AND sk=$2`,
			k.Partition, k.Sort, after.SKU, after.Name, nullString(after.ImageURL),
			after.Price, after.Stock, after.Threshold, nullTime(after.LastSoldDate)); err != nil {
			return err
		}
		_, err = changefeed.AppendTx(ctx, tx, r.shards, changefeed.KindModify, k, ToImage(before), ToImage(after))
		return err
	})
	if err != nil {
		return Product{}, err
	}
	return after, nil
}

func (r *PostgresStore) Delete(ctx context.Context, tenantID, productID string) (Product, error) {
	k := KeyOf(tenantID, productID)
	var before Product
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		before, err = scanProduct(tx.QueryRowContext(ctx,
			`SELECT `+productColumns+` FROM products WHERE pk=$1 AND sk=$2 FOR UPDATE`, k.Partition, k.Sort))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE pk=$1 AND sk=$2`, k.Partition, k.Sort); err != nil {
			return err
		}
		_, err = changefeed.AppendTx(ctx, tx, r.shards, changefeed.KindRemove, k, ToImage(before), nil)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	return before, nil
}

func (r *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	return classify(tx.Commit())
}
