package audit

import "github.com/servicedeck/servicedeck/pkg/plugin"

// migrations is the audit plugin's schema history.
var migrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create audit_entries table",
		SQL: `
			CREATE TABLE IF NOT EXISTS audit_entries (
				id         TEXT     PRIMARY KEY,
				timestamp  DATETIME NOT NULL,
				event_type TEXT     NOT NULL,
				operation  TEXT     NOT NULL,
				subject_id TEXT     NOT NULL DEFAULT '',
				success    INTEGER  NOT NULL,
				error      TEXT     NOT NULL DEFAULT '',
				details    TEXT     NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp);
			CREATE INDEX IF NOT EXISTS idx_audit_event_type ON audit_entries(event_type);
		`,
	},
}
