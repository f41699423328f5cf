package journal

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS ticks (
    id          TEXT PRIMARY KEY,
    seq         INTEGER NOT NULL,
    epoch       INTEGER NOT NULL,
    started_at  INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    appended    INTEGER NOT NULL,
    error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_ticks_started_at ON ticks(started_at);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS ticks (
    id          UUID PRIMARY KEY,
    seq         BIGINT NOT NULL,
    epoch       BIGINT NOT NULL,
    started_at  BIGINT NOT NULL,
    duration_ms BIGINT NOT NULL,
    appended    BOOLEAN NOT NULL,
    error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_ticks_started_at ON ticks(started_at);
`

const queryInsertTick = `
INSERT INTO ticks (id, seq, epoch, started_at, duration_ms, appended, error)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

const queryRecentTicks = `
SELECT id, seq, epoch, started_at, duration_ms, appended, error
FROM ticks
ORDER BY started_at DESC, seq DESC
LIMIT $1
`

const queryPruneTicks = `
DELETE FROM ticks WHERE started_at < $1
`

const queryCountTicks = `
SELECT COUNT(1) FROM ticks
`
