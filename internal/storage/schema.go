package storage

const schema = `
-- The 'users' table holds the credentials known to the identity provider.
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

-- The 'profiles' table holds one profile document per user. Progress maps,
-- the memorized set and settings are stored as JSON text.
CREATE TABLE IF NOT EXISTS profiles (
    user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    display_name TEXT NOT NULL DEFAULT '',
    memorized_juz TEXT NOT NULL DEFAULT '[]',
    juz_progress TEXT NOT NULL DEFAULT '{}',
    surah_progress TEXT NOT NULL DEFAULT '{}',
    revision_cycle INTEGER NOT NULL DEFAULT 7,
    setup_completed BOOLEAN NOT NULL DEFAULT FALSE,
    settings TEXT NOT NULL DEFAULT '{}',
    updated_at TIMESTAMP NOT NULL
);
`
