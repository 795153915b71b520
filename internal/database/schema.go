package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates every table the service needs.  Statements are
// idempotent and run one at a time because the DSN does not enable
// multiStatements.
//
// The tokens table carries two stored generated columns that are NULL for
// terminal tokens.  Unique keys over them enforce, in the database, that a
// number is held by at most one live token of a slot and that a user holds
// at most one live token per service.  Their key names are matched by the
// repository package when it classifies duplicate-entry errors.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          ENUM('USER','STAFF','ADMIN') NOT NULL DEFAULT 'USER',
		is_active     TINYINT(1) NOT NULL DEFAULT 1,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_refresh_tokens_hash (token_hash),
		KEY idx_refresh_tokens_user (user_id),
		CONSTRAINT fk_refresh_tokens_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS slots (
		id                  BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		service             VARCHAR(32) NOT NULL,
		slot_date           DATE NOT NULL,
		start_time          TIME NOT NULL,
		end_time            TIME NOT NULL,
		capacity            INT UNSIGNED NOT NULL,
		avg_service_minutes INT UNSIGNED NULL,
		is_retired          TINYINT(1) NOT NULL DEFAULT 0,
		created_at          DATETIME(6) NOT NULL,
		updated_at          DATETIME(6) NOT NULL,
		PRIMARY KEY (id),
		KEY idx_slots_bookable (is_retired, service, slot_date, start_time),
		CONSTRAINT chk_slots_capacity CHECK (capacity >= 1),
		CONSTRAINT chk_slots_window CHECK (start_time < end_time)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS tokens (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		slot_id       BIGINT UNSIGNED NOT NULL,
		user_id       BIGINT UNSIGNED NOT NULL,
		service       VARCHAR(32) NOT NULL,
		number        INT UNSIGNED NOT NULL,
		status        ENUM('PENDING','APPROVED','SKIPPED','SERVED','CANCELLED','EXPIRED') NOT NULL,
		issued_at     DATETIME(6) NOT NULL,
		approved_at   DATETIME(6) NULL,
		served_at     DATETIME(6) NULL,
		cancelled_at  DATETIME(6) NULL,
		expired_at    DATETIME(6) NULL,
		updated_at    DATETIME(6) NOT NULL,
		active_number INT UNSIGNED
			GENERATED ALWAYS AS (IF(status IN ('PENDING','APPROVED','SKIPPED'), number, NULL)) STORED,
		active_claim  VARCHAR(64)
			GENERATED ALWAYS AS (IF(status IN ('PENDING','APPROVED','SKIPPED'), CONCAT(user_id, ':', service), NULL)) STORED,
		PRIMARY KEY (id),
		UNIQUE KEY uq_tokens_active_number (slot_id, active_number),
		UNIQUE KEY uq_tokens_active_claim (active_claim),
		KEY idx_tokens_slot_status (slot_id, status),
		KEY idx_tokens_user (user_id, id),
		CONSTRAINT fk_tokens_slot FOREIGN KEY (slot_id) REFERENCES slots (id),
		CONSTRAINT fk_tokens_user FOREIGN KEY (user_id) REFERENCES users (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS visit_history (
		id               BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		user_id          BIGINT UNSIGNED NOT NULL,
		slot_id          BIGINT UNSIGNED NULL,
		slot_description VARCHAR(128) NOT NULL,
		service          VARCHAR(32) NOT NULL,
		token_id         BIGINT UNSIGNED NOT NULL,
		token_number     INT UNSIGNED NOT NULL,
		outcome          ENUM('SERVED','SKIPPED','CANCELLED','EXPIRED') NOT NULL,
		recorded_at      DATETIME(6) NOT NULL,
		PRIMARY KEY (id),
		KEY idx_history_user (user_id, recorded_at),
		KEY idx_history_slot (slot_id, recorded_at),
		KEY idx_history_recorded (recorded_at),
		CONSTRAINT fk_history_slot FOREIGN KEY (slot_id) REFERENCES slots (id) ON DELETE SET NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		event_id   CHAR(36) NOT NULL,
		user_id    BIGINT UNSIGNED NOT NULL,
		kind       VARCHAR(32) NOT NULL,
		title      VARCHAR(200) NOT NULL,
		message    TEXT NOT NULL,
		token_id   BIGINT UNSIGNED NULL,
		is_read    TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uq_notifications_event (event_id, user_id),
		KEY idx_notifications_user (user_id, is_read, created_at),
		CONSTRAINT fk_notifications_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate applies Schema in order.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
