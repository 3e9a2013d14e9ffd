package db

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "coursehub"

// DemoAccounts lists the seeded logins, one per role.
var DemoAccounts = []string{"admin@coursehub.local", "instructor@coursehub.local", "learner@coursehub.local"}

type demoQuestion struct {
	content string
	score   float64
	options [4]string
	correct int
}

// SeedDemo loads a small course (one module, two lessons, a quiz and an
// exercise) into an empty database. It reports whether anything was written.
func SeedDemo(ctx context.Context, d *DB) (bool, error) {
	var users int
	if err := d.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&users); err != nil {
		return false, fmt.Errorf("db: seed probe: %w", err)
	}
	if users > 0 {
		return false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	now := time.Now().Unix()

	err = WithTx(ctx, d, nil, func(tx *Tx) error {
		insUser := `INSERT INTO users (full_name, email, phone, role, password_hash, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
		adminID, err := tx.InsertID(ctx, insUser, "Ada Admin", "admin@coursehub.local", nil, "admin", string(hash), now)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO admins (user_id) VALUES ($1)`, adminID); err != nil {
			return err
		}
		instID, err := tx.InsertID(ctx, insUser, "Ivan Instructor", "instructor@coursehub.local", "555-0100", "instructor", string(hash), now)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO instructors (user_id, bio, specialization) VALUES ($1, $2, $3)`,
			instID, "Databases and data engineering.", "SQL"); err != nil {
			return err
		}
		learnerID, err := tx.InsertID(ctx, insUser, "Lena Learner", "learner@coursehub.local", nil, "learner", string(hash), now)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO learners (user_id, birthday) VALUES ($1, $2)`, learnerID, nil); err != nil {
			return err
		}

		catID, err := tx.InsertID(ctx, `INSERT INTO categories (name, parent_id) VALUES ($1, $2)`, "Databases", nil)
		if err != nil {
			return err
		}
		courseID, err := tx.InsertID(ctx,
			`INSERT INTO courses (title, description, category_id, approval_status, course_status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			"SQL from Scratch", "Query relational data with confidence.", catID, "approved", "published", now, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO course_designers (course_id, instructor_id, assigned_at) VALUES ($1, $2, $3)`,
			courseID, instID, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO enrollments (course_id, learner_id, enrolled_at, status, progress) VALUES ($1, $2, $3, $4, $5)`,
			courseID, learnerID, now, "active", 25.0); err != nil {
			return err
		}

		moduleID, err := tx.InsertID(ctx, `INSERT INTO modules (course_id, title, order_num) VALUES ($1, $2, $3)`,
			courseID, "SQL Fundamentals", 1)
		if err != nil {
			return err
		}
		insLesson := `INSERT INTO lessons (module_id, title, order_num, duration) VALUES ($1, $2, $3, $4)`
		introID, err := tx.InsertID(ctx, insLesson, moduleID, "Introduction to SQL", 1, 20)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO materials (lesson_id, url) VALUES ($1, $2)`,
			introID, "https://coursehub.local/materials/intro-to-sql.pdf"); err != nil {
			return err
		}
		whereID, err := tx.InsertID(ctx, insLesson, moduleID, "Filtering with WHERE", 2, 30)
		if err != nil {
			return err
		}

		insAssignment := `INSERT INTO assignments (lesson_id, title, start_at, due_at) VALUES ($1, $2, $3, $4)`
		quizAsg, err := tx.InsertID(ctx, insAssignment, introID, "SQL Basics Quiz", now, now+7*24*3600)
		if err != nil {
			return err
		}
		quizID, err := tx.InsertID(ctx,
			`INSERT INTO quizzes (assignment_id, total_score, passing_score, duration) VALUES ($1, $2, $3, $4)`,
			quizAsg, 10.0, 6.0, 15)
		if err != nil {
			return err
		}
		exAsg, err := tx.InsertID(ctx, insAssignment, whereID, "Hands-on WHERE", now, now+14*24*3600)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO exercises (assignment_id, title, description) VALUES ($1, $2, $3)`,
			exAsg, "Hands-on WHERE", "Write three queries that filter the orders table."); err != nil {
			return err
		}

		questions := []demoQuestion{
			{
				content: "Which SQL statement is used to extract data from a database?",
				score:   5,
				options: [4]string{"GET", "SELECT", "OPEN", "EXTRACT"},
				correct: 1,
			},
			{
				content: "Which clause filters rows before grouping?",
				score:   5,
				options: [4]string{"HAVING", "ORDER BY", "WHERE", "LIMIT"},
				correct: 2,
			},
		}
		for _, q := range questions {
			qid, err := tx.InsertID(ctx, `INSERT INTO questions (quiz_id, content, score, created_at) VALUES ($1, $2, $3, $4)`,
				quizID, q.content, q.score, now)
			if err != nil {
				return err
			}
			for i, text := range q.options {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO question_options (question_id, position, label, option_text, is_correct) VALUES ($1, $2, $3, $4, $5)`,
					qid, i, string(rune('A'+i)), text, i == q.correct); err != nil {
					return err
				}
			}
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO quiz_attempts (quiz_id, learner_id, score, submitted_at) VALUES ($1, $2, $3, $4)`,
			quizID, learnerID, 8.0, now)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("db: seed: %w", err)
	}
	return true, nil
}
