package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the statements creating the booking tables.  The composite
// indexes back the buffer-window predicates: (table_id, datetime) for
// table conflicts and (diner_id, datetime) for diner conflicts.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS restaurants (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(190) NOT NULL,
		restriction_mask BIGINT UNSIGNED NOT NULL DEFAULT 0
	) ENGINE=InnoDB`,
	"CREATE TABLE IF NOT EXISTS `tables` (" + `
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		restaurant_id BIGINT UNSIGNED NOT NULL,
		capacity INT UNSIGNED NOT NULL,
		CONSTRAINT chk_tables_capacity CHECK (capacity >= 1),
		CONSTRAINT fk_tables_restaurant FOREIGN KEY (restaurant_id) REFERENCES restaurants(id),
		INDEX idx_tables_restaurant_capacity (restaurant_id, capacity)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS diners (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(190) NOT NULL,
		restriction_mask BIGINT UNSIGNED NOT NULL DEFAULT 0
	) ENGINE=InnoDB`,
	"CREATE TABLE IF NOT EXISTS reservations (" + `
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		restaurant_id BIGINT UNSIGNED NOT NULL,
		table_id BIGINT UNSIGNED NOT NULL,
		capacity INT UNSIGNED NOT NULL,
		datetime DATETIME NOT NULL,
		CONSTRAINT fk_reservations_restaurant FOREIGN KEY (restaurant_id) REFERENCES restaurants(id),
		CONSTRAINT fk_reservations_table FOREIGN KEY (table_id) REFERENCES ` + "`tables`" + `(id),
		INDEX idx_reservations_table_datetime (table_id, datetime)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		diner_id BIGINT UNSIGNED NOT NULL,
		reservation_id BIGINT UNSIGNED NOT NULL,
		datetime DATETIME NOT NULL,
		CONSTRAINT fk_attendance_diner FOREIGN KEY (diner_id) REFERENCES diners(id),
		CONSTRAINT fk_attendance_reservation FOREIGN KEY (reservation_id) REFERENCES reservations(id) ON DELETE CASCADE,
		UNIQUE KEY ux_attendance_diner_reservation (diner_id, reservation_id),
		INDEX idx_attendance_diner_datetime (diner_id, datetime)
	) ENGINE=InnoDB`,
}

// Migrate creates the schema when missing.  It is safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
