package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250601-000000",
		Description: "initial crawler schema",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS fetch_rows (
				id TEXT PRIMARY KEY,
				url TEXT NOT NULL,
				domain TEXT NOT NULL,
				http_status INTEGER NOT NULL,
				http_success INTEGER NOT NULL DEFAULT 0,
				title TEXT,
				request_method TEXT NOT NULL DEFAULT 'GET',
				request_started_at TEXT NOT NULL,
				fetched_at TEXT NOT NULL,
				bytes_downloaded INTEGER NOT NULL DEFAULT 0,
				content_type TEXT,
				content_length INTEGER,
				total_ms INTEGER NOT NULL DEFAULT 0,
				download_ms INTEGER NOT NULL DEFAULT 0,
				redirect_count INTEGER NOT NULL DEFAULT 0,
				stage TEXT,
				attempt_id TEXT,
				cache_hit INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_fetch_rows_url_fetched ON fetch_rows(url, fetched_at)`,
			`CREATE INDEX IF NOT EXISTS idx_fetch_rows_domain ON fetch_rows(domain)`,

			// Legacy mirror kept for older tooling; writes here are best-effort.
			`CREATE TABLE IF NOT EXISTS fetch_log (
				id TEXT PRIMARY KEY,
				url TEXT NOT NULL,
				domain TEXT NOT NULL,
				http_status INTEGER NOT NULL,
				fetched_at TEXT NOT NULL,
				total_ms INTEGER NOT NULL DEFAULT 0
			)`,

			`CREATE TABLE IF NOT EXISTS candidates (
				id TEXT PRIMARY KEY,
				domain TEXT NOT NULL,
				canonical_url TEXT NOT NULL,
				place_kind TEXT,
				place_name TEXT,
				place_code TEXT,
				topic_slug TEXT,
				analyzer TEXT NOT NULL,
				strategy TEXT NOT NULL,
				score REAL,
				confidence REAL,
				pattern TEXT,
				signals_json TEXT,
				status TEXT NOT NULL DEFAULT 'pending',
				http_status INTEGER,
				validation_status TEXT,
				error_message TEXT,
				attempt_id TEXT NOT NULL,
				last_seen_at TEXT NOT NULL,
				created_at TEXT NOT NULL,
				UNIQUE(domain, canonical_url)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_candidates_domain_status ON candidates(domain, status)`,

			`CREATE TABLE IF NOT EXISTS hubs (
				id TEXT PRIMARY KEY,
				domain TEXT NOT NULL,
				url TEXT NOT NULL,
				place_slug TEXT,
				place_kind TEXT,
				topic_slug TEXT,
				topic_label TEXT,
				title TEXT,
				nav_links_count INTEGER NOT NULL DEFAULT 0,
				article_links_count INTEGER NOT NULL DEFAULT 0,
				evidence_json TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE(domain, url)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_hubs_domain ON hubs(domain)`,

			`CREATE TABLE IF NOT EXISTS hub_audit (
				id TEXT PRIMARY KEY,
				run_id TEXT NOT NULL,
				attempt_id TEXT NOT NULL,
				domain TEXT NOT NULL,
				url TEXT NOT NULL,
				place_kind TEXT,
				place_name TEXT,
				decision TEXT NOT NULL,
				validation_metrics_json TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_hub_audit_run ON hub_audit(run_id, created_at)`,

			`CREATE TABLE IF NOT EXISTS domain_determinations (
				id TEXT PRIMARY KEY,
				domain TEXT NOT NULL,
				determination TEXT NOT NULL,
				reason TEXT NOT NULL,
				details TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_determinations_domain ON domain_determinations(domain, created_at)`,

			`CREATE TABLE IF NOT EXISTS task_events (
				id TEXT PRIMARY KEY,
				task_type TEXT NOT NULL,
				task_id TEXT NOT NULL,
				event_type TEXT NOT NULL,
				category TEXT NOT NULL,
				severity TEXT NOT NULL DEFAULT 'info',
				data_json TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_task_events_task ON task_events(task_id, id)`,
		},
	})
}
