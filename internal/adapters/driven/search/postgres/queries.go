package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// queries holds the SQL for one chunk table.
type queries struct {
	schema           string
	upsert           string
	keyword          string
	semantic         string
	hybrid           string
	deleteByDocument string
	stats            string
}

const resultColumns = "chunk_id, document_id, text, title, metadata"

// textScore is the lexical score of a row for the query text in param.
func textScore(param string) string {
	return fmt.Sprintf(`GREATEST(
		ts_rank_cd(tsv, plainto_tsquery('english', %[1]s), 32),
		word_similarity(%[1]s, text) / 2
	)`, param)
}

// textMatch selects rows matching the query text in param, exactly or
// fuzzily above the threshold in threshold.
func textMatch(param, threshold string) string {
	return fmt.Sprintf(`tsv @@ plainto_tsquery('english', %[1]s) OR word_similarity(%[1]s, text) >= %[2]s`, param, threshold)
}

func newQueries(table string, dims int) queries {
	t := pgx.Identifier{table}.Sanitize()
	idx := func(suffix string) string { return pgx.Identifier{table + "_" + suffix}.Sanitize() }

	return queries{
		schema: fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS %[1]s (
	chunk_id    TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	text        TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	embedding   vector(%[2]d) NOT NULL,
	metadata    JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	tsv tsvector GENERATED ALWAYS AS (
		setweight(to_tsvector('english', title), 'A') ||
		setweight(to_tsvector('english', text), 'B')
	) STORED
);

CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
CREATE INDEX IF NOT EXISTS %[4]s ON %[1]s USING gin (tsv);
CREATE INDEX IF NOT EXISTS %[5]s ON %[1]s USING gin (text gin_trgm_ops);
CREATE INDEX IF NOT EXISTS %[6]s ON %[1]s (document_id);
`, t, dims, idx("embedding_idx"), idx("tsv_idx"), idx("trgm_idx"), idx("document_idx")),

		upsert: fmt.Sprintf(`
INSERT INTO %s (chunk_id, document_id, text, title, embedding, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (chunk_id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	text = EXCLUDED.text,
	title = EXCLUDED.title,
	embedding = EXCLUDED.embedding,
	metadata = EXCLUDED.metadata,
	updated_at = EXCLUDED.updated_at`, t),

		// $1 text, $2 fuzzy threshold, $3 min score, $4 limit
		keyword: fmt.Sprintf(`
SELECT %[2]s, score FROM (
	SELECT %[2]s, %[3]s AS score
	FROM %[1]s
	WHERE %[4]s
) ranked
WHERE score >= $3
ORDER BY score DESC, chunk_id
LIMIT $4`, t, resultColumns, textScore("$1"), textMatch("$1", "$2")),

		// $1 vector, $2 min score, $3 limit
		semantic: fmt.Sprintf(`
SELECT %[2]s, score FROM (
	SELECT %[2]s, GREATEST(0, 1 - (embedding <=> $1)) AS score
	FROM %[1]s
	ORDER BY embedding <=> $1
	LIMIT $3
) nearest
WHERE score >= $2
ORDER BY score DESC, chunk_id`, t, resultColumns),

		// $1 vector, $2 text, $3 vector weight, $4 text weight, $5 min score,
		// $6 limit, $7 fuzzy threshold, $8 candidates per side
		hybrid: fmt.Sprintf(`
WITH candidates AS (
	(SELECT chunk_id FROM %[1]s ORDER BY embedding <=> $1 LIMIT $8)
	UNION
	(SELECT chunk_id FROM %[1]s WHERE %[4]s LIMIT $8)
), scored AS (
	SELECT %[2]s,
		GREATEST(0, 1 - (embedding <=> $1)) AS vscore,
		%[3]s AS tscore
	FROM %[1]s JOIN candidates USING (chunk_id)
), fused AS (
	SELECT %[2]s,
		$3 * vscore + $4 * CASE WHEN MAX(tscore) OVER () > 0
			THEN tscore / MAX(tscore) OVER () ELSE 0 END AS score
	FROM scored
)
SELECT %[2]s, score FROM fused
WHERE score >= $5
ORDER BY score DESC, chunk_id
LIMIT $6`, t, resultColumns, textScore("$2"), textMatch("$2", "$7")),

		deleteByDocument: fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, t),

		stats: fmt.Sprintf(`SELECT COUNT(*), COUNT(DISTINCT document_id) FROM %s`, t),
	}
}
