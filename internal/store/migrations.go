package store

func (s *Store) migrate() error {
	return s.migrateV1()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		is_complete INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_incomplete ON tasks(user_id, is_complete);

	CREATE TABLE IF NOT EXISTS daily_task_stats (
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		tasks_added INTEGER NOT NULL DEFAULT 0,
		tasks_completed INTEGER NOT NULL DEFAULT 0,
		total_task_actions INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_task_stats_date ON daily_task_stats(date);

	CREATE TABLE IF NOT EXISTS voice_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		date TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		duration_minutes INTEGER,
		points_earned INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user ON voice_sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_open ON voice_sessions(user_id, ended_at);

	CREATE TABLE IF NOT EXISTS daily_voice_stats (
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		total_minutes INTEGER NOT NULL DEFAULT 0,
		points_earned INTEGER NOT NULL DEFAULT 0,
		session_count INTEGER NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_voice_stats_date ON daily_voice_stats(date);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return wrapErr("migrate_v1", err)
	}
	return nil
}
