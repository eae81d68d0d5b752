package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"MailchimpPublisher/internal/domain"
	"MailchimpPublisher/internal/ports"
)

// Schema creates the tables read and written by PostgresRepository.
const Schema = `
CREATE TABLE IF NOT EXISTS press_releases (
    id               TEXT PRIMARY KEY,
    title            TEXT NOT NULL,
    html_content     TEXT NOT NULL,
    publication_date TIMESTAMPTZ,
    creator_name     TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS press_release_themes (
    press_release_id TEXT NOT NULL REFERENCES press_releases (id),
    label            TEXT NOT NULL,
    PRIMARY KEY (press_release_id, label)
);
CREATE TABLE IF NOT EXISTS press_release_sources (
    press_release_id TEXT NOT NULL REFERENCES press_releases (id),
    position         INT NOT NULL,
    full_name        TEXT NOT NULL,
    function         TEXT NOT NULL DEFAULT '',
    telephone        TEXT NOT NULL DEFAULT '',
    mobile           TEXT NOT NULL DEFAULT '',
    email            TEXT NOT NULL DEFAULT '',
    organization     TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (press_release_id, position)
);
CREATE TABLE IF NOT EXISTS publication_tasks (
    id               TEXT PRIMARY KEY,
    graph            TEXT NOT NULL DEFAULT '',
    press_release_id TEXT NOT NULL REFERENCES press_releases (id),
    channel          TEXT NOT NULL,
    status           TEXT NOT NULL,
    publication_date TIMESTAMPTZ,
    rendered_html    TEXT,
    created          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    modified         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository keeps publication tasks and press releases in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.TaskRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates missing tables.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func pendingTasksQuery(channel string) sq.SelectBuilder {
	return psql.
		Select("id", "graph", "press_release_id", "status", "publication_date", "modified").
		From("publication_tasks").
		Where(sq.Eq{"status": string(domain.StatusNotStarted), "channel": channel}).
		OrderBy("created ASC")
}

// FetchPendingTasks returns NOT_STARTED tasks of the channel, oldest first.
func (r *PostgresRepository) FetchPendingTasks(ctx context.Context, channel string) ([]domain.PublicationTask, error) {
	query, args, err := pendingTasksQuery(channel).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.PublicationTask{}
	for rows.Next() {
		var (
			task      domain.PublicationTask
			status    string
			published sql.NullTime
		)
		if err := rows.Scan(&task.ID, &task.Graph, &task.PressRelease, &status, &published, &task.LastModified); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		task.Status = domain.TaskStatus(status)
		task.PublicationDate = published.Time
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return tasks, nil
}

func statusUpdate(taskID string, status domain.TaskStatus, at time.Time) sq.UpdateBuilder {
	predecessors := make([]string, 0, 1)
	for _, prev := range status.Predecessors() {
		predecessors = append(predecessors, string(prev))
	}
	return psql.
		Update("publication_tasks").
		Set("status", string(status)).
		Set("modified", at).
		Where(sq.Eq{"id": taskID, "status": predecessors})
}

// PersistStatus moves the task with a compare-and-swap on its allowed predecessor statuses.
// domain.ErrStaleStatus means the row was changed by someone else in the meantime.
func (r *PostgresRepository) PersistStatus(ctx context.Context, task domain.PublicationTask, status domain.TaskStatus, at time.Time) error {
	res, err := statusUpdate(task.ID, status, at).RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task %s to %s: %w", task.ID, status, domain.ErrStaleStatus)
	}
	return nil
}

func pressReleaseQuery(id string) sq.SelectBuilder {
	return psql.
		Select(
			"pr.title",
			"pr.html_content",
			"pr.publication_date",
			"pr.creator_name",
			"COALESCE(array_agg(t.label ORDER BY t.label) FILTER (WHERE t.label IS NOT NULL), '{}')",
		).
		From("press_releases pr").
		LeftJoin("press_release_themes t ON t.press_release_id = pr.id").
		Where(sq.Eq{"pr.id": id}).
		GroupBy("pr.id")
}

func sourcesQuery(id string) sq.SelectBuilder {
	return psql.
		Select("full_name", "function", "telephone", "mobile", "email", "organization").
		From("press_release_sources").
		Where(sq.Eq{"press_release_id": id}).
		OrderBy("position ASC")
}

// FetchPressRelease loads the press release with its themes and sources.
func (r *PostgresRepository) FetchPressRelease(ctx context.Context, task domain.PublicationTask) (domain.PressRelease, error) {
	pr := domain.PressRelease{ID: task.PressRelease}

	var (
		published sql.NullTime
		themes    pq.StringArray
	)
	err := pressReleaseQuery(task.PressRelease).RunWith(r.db).QueryRowContext(ctx).
		Scan(&pr.Title, &pr.HTMLBody, &published, &pr.CreatorName, &themes)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PressRelease{}, fmt.Errorf("press release %s: %w", task.PressRelease, domain.ErrNotFound)
	}
	if err != nil {
		return domain.PressRelease{}, fmt.Errorf("query press release: %w", err)
	}
	pr.PublicationDate = published.Time
	pr.Themes = []string(themes)

	rows, err := sourcesQuery(task.PressRelease).RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return domain.PressRelease{}, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.Source
		if err := rows.Scan(&s.FullName, &s.Function, &s.Telephone, &s.Mobile, &s.Email, &s.Organization); err != nil {
			return domain.PressRelease{}, fmt.Errorf("scan source: %w", err)
		}
		pr.Sources = append(pr.Sources, s)
	}
	if err := rows.Err(); err != nil {
		return domain.PressRelease{}, fmt.Errorf("rows iteration: %w", err)
	}
	return pr, nil
}

// PersistRenderedContent stores the mail body on the task row.
func (r *PostgresRepository) PersistRenderedContent(ctx context.Context, task domain.PublicationTask, html string) error {
	_, err := psql.
		Update("publication_tasks").
		Set("rendered_html", html).
		Where(sq.Eq{"id": task.ID}).
		RunWith(r.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store rendered content: %w", err)
	}
	return nil
}
