package sqlite

const schema = `
-- PRDs
CREATE TABLE IF NOT EXISTS prds (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL CHECK(length(name) > 0),
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'backlog' CHECK(status IN ('backlog', 'active', 'complete')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_prds_name_live ON prds(name) WHERE deleted_at IS NULL;

-- Epics
CREATE TABLE IF NOT EXISTS epics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    prd_id INTEGER REFERENCES prds(id),
    name TEXT NOT NULL CHECK(length(name) > 0),
    content TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'backlog' CHECK(status IN ('backlog', 'active', 'closed')),
    progress INTEGER NOT NULL DEFAULT 0 CHECK(progress >= 0 AND progress <= 100),
    external_issue_id INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_epics_name_live ON epics(name) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_epics_prd ON epics(prd_id);
CREATE INDEX IF NOT EXISTS idx_epics_external_issue ON epics(external_issue_id);

-- Tasks
CREATE TABLE IF NOT EXISTS tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    epic_id INTEGER NOT NULL REFERENCES epics(id),
    task_number INTEGER NOT NULL CHECK(task_number > 0),
    name TEXT NOT NULL CHECK(length(name) > 0),
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open', 'in_progress', 'closed')),
    estimated_hours REAL CHECK(estimated_hours IS NULL OR estimated_hours >= 0),
    actual_hours REAL CHECK(actual_hours IS NULL OR actual_hours >= 0),
    parallel INTEGER NOT NULL DEFAULT 0,
    external_issue_id INTEGER,
    external_synced_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_epic_number_live ON tasks(epic_id, task_number) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_external_issue ON tasks(external_issue_id);

-- Dependency edges: task_id depends on depends_on_task_id
CREATE TABLE IF NOT EXISTS task_dependencies (
    task_id INTEGER NOT NULL REFERENCES tasks(id),
    depends_on_task_id INTEGER NOT NULL REFERENCES tasks(id),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (task_id, depends_on_task_id),
    CHECK (task_id != depends_on_task_id)
);

CREATE INDEX IF NOT EXISTS idx_task_dependencies_depends_on ON task_dependencies(depends_on_task_id);

-- Metadata (schema and binary versions, sync state)
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// liveViews is the single place tombstones are filtered. Every read in this
// package selects from these views, never from the base tables.
const liveViews = `
DROP VIEW IF EXISTS live_task_dependencies;
DROP VIEW IF EXISTS live_tasks;
DROP VIEW IF EXISTS live_epics;
DROP VIEW IF EXISTS live_prds;

CREATE VIEW live_prds AS
    SELECT * FROM prds WHERE deleted_at IS NULL;

CREATE VIEW live_epics AS
    SELECT * FROM epics WHERE deleted_at IS NULL;

CREATE VIEW live_tasks AS
    SELECT t.*, e.name AS epic_name
    FROM tasks t
    JOIN live_epics e ON e.id = t.epic_id
    WHERE t.deleted_at IS NULL;

CREATE VIEW live_task_dependencies AS
    SELECT d.task_id, d.depends_on_task_id, d.created_at
    FROM task_dependencies d
    JOIN live_tasks a ON a.id = d.task_id
    JOIN live_tasks b ON b.id = d.depends_on_task_id;
`
