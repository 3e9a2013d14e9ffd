package db

import (
	"context"
	"fmt"
	"strings"
)

// Generic DDL; the {{...}} tokens are filled per dialect. Foreign keys are
// declared at table level because MySQL ignores column-level REFERENCES.
var tableDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id {{ID}},
		full_name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		username VARCHAR(64) UNIQUE,
		phone VARCHAR(64),
		role VARCHAR(32) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		approval_status VARCHAR(32) NOT NULL DEFAULT 'approved',
		account_status VARCHAR(32) NOT NULL DEFAULT 'active',
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS instructors (
		user_id BIGINT PRIMARY KEY,
		bio TEXT,
		specialization VARCHAR(255),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS learners (
		user_id BIGINT PRIMARY KEY,
		birthday BIGINT,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS admins (
		user_id BIGINT PRIMARY KEY,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id {{ID}},
		name VARCHAR(255) NOT NULL,
		parent_id BIGINT,
		FOREIGN KEY (parent_id) REFERENCES categories(id)
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		id {{ID}},
		title VARCHAR(255) NOT NULL,
		description TEXT,
		category_id BIGINT,
		approval_status VARCHAR(32) NOT NULL,
		course_status VARCHAR(32) NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT,
		FOREIGN KEY (category_id) REFERENCES categories(id)
	)`,
	`CREATE TABLE IF NOT EXISTS course_designers (
		course_id BIGINT NOT NULL,
		instructor_id BIGINT NOT NULL,
		assigned_at BIGINT NOT NULL,
		PRIMARY KEY (course_id, instructor_id),
		FOREIGN KEY (course_id) REFERENCES courses(id) ON DELETE CASCADE,
		FOREIGN KEY (instructor_id) REFERENCES instructors(user_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		course_id BIGINT NOT NULL,
		learner_id BIGINT NOT NULL,
		enrolled_at BIGINT NOT NULL,
		status VARCHAR(32) NOT NULL,
		progress {{REAL}} NOT NULL,
		PRIMARY KEY (course_id, learner_id),
		FOREIGN KEY (course_id) REFERENCES courses(id) ON DELETE CASCADE,
		FOREIGN KEY (learner_id) REFERENCES learners(user_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS modules (
		id {{ID}},
		course_id BIGINT NOT NULL,
		title VARCHAR(255) NOT NULL,
		order_num INT NOT NULL,
		FOREIGN KEY (course_id) REFERENCES courses(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS lessons (
		id {{ID}},
		module_id BIGINT NOT NULL,
		title VARCHAR(255) NOT NULL,
		order_num INT NOT NULL,
		duration INT NOT NULL,
		FOREIGN KEY (module_id) REFERENCES modules(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS materials (
		id {{ID}},
		lesson_id BIGINT NOT NULL,
		url VARCHAR(1024) NOT NULL,
		FOREIGN KEY (lesson_id) REFERENCES lessons(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS assignments (
		id {{ID}},
		lesson_id BIGINT NOT NULL,
		title VARCHAR(255) NOT NULL,
		start_at BIGINT NOT NULL,
		due_at BIGINT NOT NULL,
		CHECK (due_at > start_at),
		FOREIGN KEY (lesson_id) REFERENCES lessons(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS quizzes (
		id {{ID}},
		assignment_id BIGINT NOT NULL UNIQUE,
		total_score {{REAL}} NOT NULL,
		passing_score {{REAL}} NOT NULL,
		duration INT NOT NULL,
		CHECK (total_score > 0),
		CHECK (passing_score >= 0 AND passing_score <= total_score),
		FOREIGN KEY (assignment_id) REFERENCES assignments(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS exercises (
		id {{ID}},
		assignment_id BIGINT NOT NULL UNIQUE,
		title VARCHAR(255) NOT NULL,
		description TEXT,
		FOREIGN KEY (assignment_id) REFERENCES assignments(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id {{ID}},
		quiz_id BIGINT NOT NULL,
		content TEXT NOT NULL,
		score {{REAL}} NOT NULL,
		created_at BIGINT NOT NULL,
		CHECK (score > 0),
		FOREIGN KEY (quiz_id) REFERENCES quizzes(id) ON DELETE CASCADE
	)`,
	// no cascade: option rows go before their question
	`CREATE TABLE IF NOT EXISTS question_options (
		id {{ID}},
		question_id BIGINT NOT NULL,
		position INT NOT NULL,
		label VARCHAR(8) NOT NULL,
		option_text TEXT NOT NULL,
		is_correct {{BOOL}} NOT NULL,
		UNIQUE (question_id, position),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	)`,
	`CREATE TABLE IF NOT EXISTS quiz_attempts (
		id {{ID}},
		quiz_id BIGINT NOT NULL,
		learner_id BIGINT NOT NULL,
		score {{REAL}} NOT NULL,
		submitted_at BIGINT NOT NULL,
		FOREIGN KEY (quiz_id) REFERENCES quizzes(id) ON DELETE CASCADE,
		FOREIGN KEY (learner_id) REFERENCES learners(user_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS event_log (
		event_id VARCHAR(36) PRIMARY KEY,
		event_type VARCHAR(64) NOT NULL,
		subject_key VARCHAR(255) NOT NULL,
		payload TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
}

// MySQL has no CREATE INDEX IF NOT EXISTS; InnoDB indexes FK columns anyway.
var indexDDL = []string{
	`CREATE INDEX IF NOT EXISTS idx_modules_course ON modules(course_id)`,
	`CREATE INDEX IF NOT EXISTS idx_lessons_module ON lessons(module_id, order_num)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_lesson ON assignments(lesson_id)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_quiz ON questions(quiz_id)`,
	`CREATE INDEX IF NOT EXISTS idx_options_question ON question_options(question_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_quiz ON quiz_attempts(quiz_id, learner_id)`,
}

var sqliteTriggers = []string{
	`CREATE TRIGGER IF NOT EXISTS trg_questions_score_insert
	BEFORE INSERT ON questions
	FOR EACH ROW
	WHEN (SELECT COALESCE(SUM(score), 0) FROM questions WHERE quiz_id = NEW.quiz_id) + NEW.score
		> (SELECT total_score FROM quizzes WHERE id = NEW.quiz_id) + 1e-9
	BEGIN
		SELECT RAISE(ABORT, '` + QuotaViolationMessage + `');
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_questions_score_update
	BEFORE UPDATE OF score, quiz_id ON questions
	FOR EACH ROW
	WHEN (SELECT COALESCE(SUM(score), 0) FROM questions WHERE quiz_id = NEW.quiz_id AND id <> OLD.id) + NEW.score
		> (SELECT total_score FROM quizzes WHERE id = NEW.quiz_id) + 1e-9
	BEGIN
		SELECT RAISE(ABORT, '` + QuotaViolationMessage + `');
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_quizzes_total_score
	BEFORE UPDATE OF total_score ON quizzes
	FOR EACH ROW
	WHEN (SELECT COALESCE(SUM(score), 0) FROM questions WHERE quiz_id = NEW.id) > NEW.total_score + 1e-9
	BEGIN
		SELECT RAISE(ABORT, '` + QuotaViolationMessage + `');
	END`,
}

var postgresTriggers = []string{
	`CREATE OR REPLACE FUNCTION questions_score_guard() RETURNS trigger AS $$
	DECLARE
		ceiling DOUBLE PRECISION;
		used DOUBLE PRECISION;
	BEGIN
		SELECT total_score INTO ceiling FROM quizzes WHERE id = NEW.quiz_id FOR UPDATE;
		SELECT COALESCE(SUM(score), 0) INTO used FROM questions WHERE quiz_id = NEW.quiz_id AND id <> NEW.id;
		IF used + NEW.score > ceiling + 1e-9 THEN
			RAISE EXCEPTION '` + QuotaViolationMessage + `';
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_questions_score ON questions`,
	`CREATE TRIGGER trg_questions_score
	BEFORE INSERT OR UPDATE OF score, quiz_id ON questions
	FOR EACH ROW EXECUTE FUNCTION questions_score_guard()`,
	// UPDATE holds the quiz row lock here, so question writers queue behind it.
	`CREATE OR REPLACE FUNCTION quizzes_ceiling_guard() RETURNS trigger AS $$
	DECLARE
		used DOUBLE PRECISION;
	BEGIN
		SELECT COALESCE(SUM(score), 0) INTO used FROM questions WHERE quiz_id = NEW.id;
		IF used > NEW.total_score + 1e-9 THEN
			RAISE EXCEPTION '` + QuotaViolationMessage + `';
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_quizzes_total_score ON quizzes`,
	`CREATE TRIGGER trg_quizzes_total_score
	BEFORE UPDATE OF total_score ON quizzes
	FOR EACH ROW EXECUTE FUNCTION quizzes_ceiling_guard()`,
}

var mysqlTriggers = []string{
	`DROP TRIGGER IF EXISTS trg_questions_score_insert`,
	`CREATE TRIGGER trg_questions_score_insert BEFORE INSERT ON questions
	FOR EACH ROW
	BEGIN
		DECLARE ceiling DOUBLE;
		DECLARE used DOUBLE;
		SELECT total_score INTO ceiling FROM quizzes WHERE id = NEW.quiz_id FOR UPDATE;
		SELECT COALESCE(SUM(score), 0) INTO used FROM questions WHERE quiz_id = NEW.quiz_id LOCK IN SHARE MODE;
		IF used + NEW.score > ceiling + 1e-9 THEN
			SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = '` + QuotaViolationMessage + `';
		END IF;
	END`,
	`DROP TRIGGER IF EXISTS trg_questions_score_update`,
	`CREATE TRIGGER trg_questions_score_update BEFORE UPDATE ON questions
	FOR EACH ROW
	BEGIN
		DECLARE ceiling DOUBLE;
		DECLARE used DOUBLE;
		SELECT total_score INTO ceiling FROM quizzes WHERE id = NEW.quiz_id FOR UPDATE;
		SELECT COALESCE(SUM(score), 0) INTO used FROM questions WHERE quiz_id = NEW.quiz_id AND id <> OLD.id LOCK IN SHARE MODE;
		IF used + NEW.score > ceiling + 1e-9 THEN
			SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = '` + QuotaViolationMessage + `';
		END IF;
	END`,
	`DROP TRIGGER IF EXISTS trg_quizzes_total_score`,
	`CREATE TRIGGER trg_quizzes_total_score BEFORE UPDATE ON quizzes
	FOR EACH ROW
	BEGIN
		DECLARE used DOUBLE;
		SELECT COALESCE(SUM(score), 0) INTO used FROM questions WHERE quiz_id = NEW.id LOCK IN SHARE MODE;
		IF used > NEW.total_score + 1e-9 THEN
			SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = '` + QuotaViolationMessage + `';
		END IF;
	END`,
}

// Statements returns the ordered DDL for a dialect.
func Statements(driver Driver) []string {
	var r *strings.Replacer
	switch driver {
	case DriverPostgres:
		r = strings.NewReplacer("{{ID}}", "BIGSERIAL PRIMARY KEY", "{{REAL}}", "DOUBLE PRECISION", "{{BOOL}}", "BOOLEAN")
	case DriverMySQL:
		r = strings.NewReplacer("{{ID}}", "BIGINT AUTO_INCREMENT PRIMARY KEY", "{{REAL}}", "DOUBLE", "{{BOOL}}", "BOOLEAN")
	default:
		r = strings.NewReplacer("{{ID}}", "INTEGER PRIMARY KEY AUTOINCREMENT", "{{REAL}}", "REAL", "{{BOOL}}", "INTEGER")
	}

	out := make([]string, 0, len(tableDDL)+len(indexDDL)+len(mysqlTriggers))
	for _, s := range tableDDL {
		out = append(out, r.Replace(s))
	}
	switch driver {
	case DriverPostgres:
		out = append(out, indexDDL...)
		out = append(out, postgresTriggers...)
	case DriverMySQL:
		out = append(out, mysqlTriggers...)
	default:
		out = append(out, indexDDL...)
		out = append(out, sqliteTriggers...)
	}
	return out
}

func ensureSchema(ctx context.Context, d *DB) error {
	for i, stmt := range Statements(d.Driver) {
		// DDL carries no placeholders; bypass Rebind so $$ bodies stay intact.
		if _, err := d.SQL.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("db: schema statement %d: %w", i, err)
		}
	}
	return nil
}
