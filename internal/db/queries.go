package db

const (
	InsertPrinter = `
		INSERT INTO printers (id, name, address, agent_url, status)
		VALUES (?, ?, ?, ?, ?)
	`

	GetPrinterByID = `
		SELECT id, name, address, agent_url, status, last_seen_at, created_at, updated_at
		FROM printers WHERE id = ?
	`

	ListPrinters = `
		SELECT id, name, address, agent_url, status, last_seen_at, created_at, updated_at
		FROM printers ORDER BY name ASC
	`

	UpdatePrinter = `
		UPDATE printers SET
			name = ?, address = ?, agent_url = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	UpdatePrinterStatus = `
		UPDATE printers SET status = ?, last_seen_at = CURRENT_TIMESTAMP WHERE id = ?
	`

	CountPrinterByID = `SELECT COUNT(*) FROM printers WHERE id = ?`

	DeletePrinter = `DELETE FROM printers WHERE id = ?`
)

const (
	InsertHistoryRecord = `
		INSERT INTO job_history (job_id, file_ref, processed_ref, document_name, printer_id, status, progress, error_message, print_json, document_json, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status, progress = excluded.progress,
			error_message = excluded.error_message, completed_at = excluded.completed_at
	`

	ListHistoryRecords = `
		SELECT job_id, file_ref, processed_ref, document_name, printer_id, status, progress, error_message, print_json, document_json, created_at, completed_at
		FROM job_history ORDER BY completed_at DESC LIMIT ?
	`

	TrimHistoryRecords = `
		DELETE FROM job_history WHERE job_id NOT IN (
			SELECT job_id FROM job_history ORDER BY completed_at DESC LIMIT ?
		)
	`

	CountHistoryRecords = `SELECT COUNT(*) FROM job_history`
)

const (
	InsertWebhook = `
		INSERT INTO webhooks (name, url, secret, events_json, enabled)
		VALUES (?, ?, ?, ?, ?)
	`

	GetWebhookByID = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE id = ?
	`

	ListWebhooks = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks ORDER BY name ASC
	`

	ListWebhooksForEvent = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE enabled = 1 AND events_json LIKE ?
	`

	UpdateWebhook = `
		UPDATE webhooks SET name = ?, url = ?, secret = ?, events_json = ?, enabled = ? WHERE id = ?
	`

	DeleteWebhook = `DELETE FROM webhooks WHERE id = ?`
)

const (
	InsertUser = `
		INSERT INTO users (username, password_hash, role)
		VALUES (?, ?, ?)
	`

	GetUserByUsername = `
		SELECT id, username, password_hash, role, created_at
		FROM users WHERE username = ?
	`

	CountUsers = `SELECT COUNT(*) FROM users`
)

const (
	GetSetting = `SELECT value, encrypted FROM settings WHERE key = ?`

	SetSetting = `
		INSERT INTO settings (key, value, encrypted, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, encrypted = ?, updated_at = CURRENT_TIMESTAMP
	`

	DeleteSetting = `DELETE FROM settings WHERE key = ?`

	ListSettings = `SELECT key, value, encrypted, updated_at FROM settings ORDER BY key ASC`
)

const (
	GetAppliedMigrations = `SELECT version FROM schema_migrations`
)
