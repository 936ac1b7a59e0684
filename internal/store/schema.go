package store

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    clerk_id TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT '',
    avatar_url TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS groups (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    code TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    joined_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
    PRIMARY KEY (group_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members(user_id, joined_at);

CREATE TABLE IF NOT EXISTS weeks (
    id UUID PRIMARY KEY,
    group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    week_number INT NOT NULL CHECK (week_number >= 1),
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    start_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    end_date TIMESTAMPTZ,
    winner_id UUID REFERENCES users(id) ON DELETE SET NULL,
    loser_id UUID REFERENCES users(id) ON DELETE SET NULL,
    UNIQUE (group_id, week_number)
);

-- at most one active week per group
CREATE UNIQUE INDEX IF NOT EXISTS idx_weeks_one_active ON weeks(group_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS sleep_entries (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    wake_date DATE NOT NULL,
    hours DOUBLE PRECISION NOT NULL CHECK (hours >= 0 AND hours <= 24),
    logged_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, wake_date)
);

CREATE TABLE IF NOT EXISTS weekly_pledges (
    id UUID PRIMARY KEY,
    week_id UUID NOT NULL REFERENCES weeks(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    amount DOUBLE PRECISION NOT NULL CHECK (amount >= 0 AND amount <= 50),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (week_id, user_id)
);

CREATE TABLE IF NOT EXISTS device_tokens (
    token TEXT PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    platform TEXT NOT NULL DEFAULT 'android',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    clerk_id TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT '',
    avatar_url TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    code TEXT NOT NULL UNIQUE COLLATE NOCASE,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    joined_at DATETIME NOT NULL,
    PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS weeks (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    week_number INTEGER NOT NULL CHECK (week_number >= 1),
    is_active INTEGER NOT NULL DEFAULT 1,
    start_date DATETIME NOT NULL,
    end_date DATETIME,
    winner_id TEXT REFERENCES users(id) ON DELETE SET NULL,
    loser_id TEXT REFERENCES users(id) ON DELETE SET NULL,
    UNIQUE (group_id, week_number)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_weeks_one_active ON weeks(group_id) WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS sleep_entries (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    wake_date TEXT NOT NULL,
    hours REAL NOT NULL CHECK (hours >= 0 AND hours <= 24),
    logged_at DATETIME NOT NULL,
    UNIQUE (user_id, wake_date)
);

CREATE TABLE IF NOT EXISTS weekly_pledges (
    id TEXT PRIMARY KEY,
    week_id TEXT NOT NULL REFERENCES weeks(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    amount REAL NOT NULL CHECK (amount >= 0 AND amount <= 50),
    created_at DATETIME NOT NULL,
    UNIQUE (week_id, user_id)
);

CREATE TABLE IF NOT EXISTS device_tokens (
    token TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    platform TEXT NOT NULL DEFAULT 'android',
    updated_at DATETIME NOT NULL
);
`
