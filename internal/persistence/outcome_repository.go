package persistence

import (
	"database/sql"
	"log/slog"
	"unicode/utf8"

	"github.com/IliaW/product-scrape-worker/internal/model"
)

const maxDetailLength = 1000

type OutcomeStorage interface {
	Save(*model.RecordOutcome)
}

// OutcomeRepository writes one row per processed record into record_outcome:
//
//	CREATE TABLE record_outcome (
//	    id            BIGINT AUTO_INCREMENT PRIMARY KEY,
//	    run_id        VARCHAR(36)   NOT NULL,
//	    url           TEXT          NOT NULL,
//	    filename      VARCHAR(512)  NOT NULL,
//	    record_offset BIGINT        NOT NULL,
//	    record_length BIGINT        NOT NULL,
//	    outcome       VARCHAR(32)   NOT NULL,
//	    detail        VARCHAR(1000) NOT NULL,
//	    created_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
//	);
type OutcomeRepository struct {
	db  *sql.DB
	log *slog.Logger
}

func NewOutcomeRepository(db *sql.DB, log *slog.Logger) *OutcomeRepository {
	return &OutcomeRepository{db: db, log: log}
}

func (r *OutcomeRepository) Save(outcome *model.RecordOutcome) {
	detail := truncateDetail(outcome.Detail, maxDetailLength)
	_, err := r.db.Exec("INSERT INTO record_outcome (run_id, url, filename, record_offset, record_length, outcome, detail) VALUES (?, ?, ?, ?, ?, ?, ?)",
		outcome.RunID,
		outcome.Record.URL,
		outcome.Record.Filename,
		outcome.Record.Offset,
		outcome.Record.Length,
		string(outcome.Outcome),
		detail)
	if err != nil {
		r.log.Error("failed to save record outcome to database.", slog.String("err", err.Error()),
			slog.String("url", outcome.Record.URL))
		return
	}
	r.log.Debug("record outcome saved to db.")
}

// truncateDetail cuts s to at most n bytes without splitting a rune.
func truncateDetail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
