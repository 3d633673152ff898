package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/plantcart/plantcart/internal/core/domain"
)

// MySQLAdapter backs the stock store and the order/user repositories on one
// relational schema. The conditional decrement is a single UPDATE guarded by
// `count >= ?`, so the zero-floor invariant is enforced by the store itself.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) DecrementIfAvailable(ctx context.Context, key domain.InventoryKey, quantity int) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE plant_stock
		SET count = count - ?, updated_at = NOW()
		WHERE product_id = ? AND size = ? AND color = ? AND count >= ?`,
		quantity, key.ProductID, key.Size, key.Color, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return rows > 0, nil
}

func (m *MySQLAdapter) IncrementStock(ctx context.Context, key domain.InventoryKey, quantity int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE plant_stock
		SET count = count + ?, updated_at = NOW()
		WHERE product_id = ? AND size = ? AND color = ?`,
		quantity, key.ProductID, key.Size, key.Color,
	)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("increment stock: no cell for %s", key)
	}
	return nil
}

func (m *MySQLAdapter) AvailableStock(ctx context.Context, key domain.InventoryKey) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `
		SELECT count FROM plant_stock
		WHERE product_id = ? AND size = ? AND color = ?`,
		key.ProductID, key.Size, key.Color,
	).Scan(&count)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query stock: %w", err)
	}
	return count, nil
}

// UpsertStock seeds or resets one inventory cell. Used by operational
// tooling and tests, never by the reservation path.
func (m *MySQLAdapter) UpsertStock(ctx context.Context, key domain.InventoryKey, count int) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO plant_stock (product_id, size, color, count, updated_at)
		VALUES (?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE count = ?, updated_at = NOW()`,
		key.ProductID, key.Size, key.Color, count, count,
	)
	if err != nil {
		return fmt.Errorf("upsert stock: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, customer_name, phone, spare_phone, total,
			status, payment_method, payment_status, delivery_address, delivery_date,
			tracking_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.CustomerName, order.Phone, order.SparePhone,
		order.Total, order.Status, order.PaymentMethod, order.PaymentStatus,
		order.DeliveryAddress, order.DeliveryDate, order.TrackingNumber,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, name, image, quantity, unit_price, size, color)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID, it.ProductID, it.Name, it.Image, it.Quantity, it.UnitPrice, it.Size, it.Color,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := insertTrackingSteps(ctx, tx, order.ID, order.TrackingSteps); err != nil {
		return err
	}

	return tx.Commit()
}

func insertTrackingSteps(ctx context.Context, tx *sql.Tx, orderID string, steps []domain.TrackingStep) error {
	for i, st := range steps {
		var date sql.NullTime
		if st.Date != nil {
			date = sql.NullTime{Time: *st.Date, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_tracking_steps (order_id, position, step, completed, step_date)
			VALUES (?, ?, ?, ?, ?)`,
			orderID, i, st.Step, st.Completed, date,
		)
		if err != nil {
			return fmt.Errorf("insert tracking step: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) OrdersByIDs(ctx context.Context, ids []string) ([]domain.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, user_id, customer_name, phone, spare_phone, total, status,
			payment_method, payment_status, delivery_address, delivery_date,
			tracking_number, created_at, updated_at
		FROM orders WHERE id IN (`+placeholders+`)
		ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.CustomerName, &o.Phone, &o.SparePhone,
			&o.Total, &o.Status, &o.PaymentMethod, &o.PaymentStatus, &o.DeliveryAddress,
			&o.DeliveryDate, &o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	for i := range orders {
		if err := m.loadOrderDetails(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (m *MySQLAdapter) loadOrderDetails(ctx context.Context, order *domain.Order) error {
	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, name, image, quantity, unit_price, size, color
		FROM order_items WHERE order_id = ?`, order.ID)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderLineItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Image, &it.Quantity,
			&it.UnitPrice, &it.Size, &it.Color); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, it)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order items: %w", err)
	}

	stepRows, err := m.db.QueryContext(ctx, `
		SELECT step, completed, step_date
		FROM order_tracking_steps WHERE order_id = ?
		ORDER BY position`, order.ID)
	if err != nil {
		return fmt.Errorf("query tracking steps: %w", err)
	}
	defer stepRows.Close()

	for stepRows.Next() {
		var st domain.TrackingStep
		var date sql.NullTime
		if err := stepRows.Scan(&st.Step, &st.Completed, &date); err != nil {
			return fmt.Errorf("scan tracking step: %w", err)
		}
		if date.Valid {
			d := date.Time
			st.Date = &d
		}
		order.TrackingSteps = append(order.TrackingSteps, st)
	}
	return stepRows.Err()
}

func (m *MySQLAdapter) IncompleteOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT DISTINCT o.id, o.created_at
		FROM orders o
		JOIN order_tracking_steps s ON s.order_id = o.id
		WHERE s.completed = FALSE
		ORDER BY o.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query incomplete orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		var createdAt sql.NullTime
		if err := rows.Scan(&id, &createdAt); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order ids: %w", err)
	}

	return m.OrdersByIDs(ctx, ids)
}

func (m *MySQLAdapter) UpdateTrackingSteps(ctx context.Context, orderID string, steps []domain.TrackingStep) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM orders WHERE id = ?`, orderID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("find order: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET updated_at = NOW() WHERE id = ?`, orderID); err != nil {
		return fmt.Errorf("touch order: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM order_tracking_steps WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("clear tracking steps: %w", err)
	}
	if err := insertTrackingSteps(ctx, tx, orderID, steps); err != nil {
		return err
	}

	return tx.Commit()
}

func (m *MySQLAdapter) FindUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, created_at
		FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT order_id FROM user_orders
		WHERE user_id = ? ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("query user orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		if err := rows.Scan(&orderID); err != nil {
			return nil, fmt.Errorf("scan user order: %w", err)
		}
		u.OrderIDs = append(u.OrderIDs, orderID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user orders: %w", err)
	}
	return &u, nil
}

func (m *MySQLAdapter) AppendOrder(ctx context.Context, userID, orderID string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO user_orders (user_id, order_id, created_at)
		VALUES (?, ?, NOW())`, userID, orderID)
	if err != nil {
		return fmt.Errorf("append user order: %w", err)
	}
	return nil
}
