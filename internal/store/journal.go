package store

import (
	"fmt"
	"time"
)

// JournalEntry is one encoded host command.
type JournalEntry struct {
	Seq         int64
	CommandID   string
	Encoded     []byte
	SubmittedAt time.Time
}

// CommandJournal is the append-only record of host commands.
type CommandJournal struct {
	db *DB
}

func NewCommandJournal(db *DB) *CommandJournal {
	return &CommandJournal{db: db}
}

func (j *CommandJournal) Append(commandID string, encoded []byte, at time.Time) (int64, error) {
	res, err := j.db.Exec(
		`INSERT INTO command_journal (command_id, encoded, submitted_at) VALUES (?, ?, ?)`,
		commandID, encoded, at.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: journal append: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, oldest first.
func (j *CommandJournal) Recent(limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	return j.query(
		`SELECT seq, command_id, encoded, submitted_at FROM
		   (SELECT * FROM command_journal ORDER BY seq DESC LIMIT ?)
		 ORDER BY seq ASC`,
		limit,
	)
}

// Get returns the entry with seq.
func (j *CommandJournal) Get(seq int64) (JournalEntry, bool, error) {
	entries, err := j.query(`SELECT seq, command_id, encoded, submitted_at FROM command_journal WHERE seq = ?`, seq)
	if err != nil || len(entries) == 0 {
		return JournalEntry{}, false, err
	}
	return entries[0], true, nil
}

func (j *CommandJournal) query(q string, args ...any) ([]JournalEntry, error) {
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: journal query: %w", err)
	}
	defer rows.Close()
	out := make([]JournalEntry, 0)
	for rows.Next() {
		var e JournalEntry
		var ms int64
		if err := rows.Scan(&e.Seq, &e.CommandID, &e.Encoded, &ms); err != nil {
			return nil, fmt.Errorf("store: journal scan: %w", err)
		}
		e.SubmittedAt = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}
