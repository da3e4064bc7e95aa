// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/heatonjb/BinReminderApp/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим email.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrScheduleNotFound возвращается, если график вывоза не найден.
	ErrScheduleNotFound = errors.New("schedule not found")
	// ErrNoCredits возвращается при попытке списать SMS-кредит с нулевого баланса.
	ErrNoCredits = errors.New("no sms credits left")
	// ErrReferralCodeTaken возвращается при коллизии сгенерированного реферального кода.
	ErrReferralCodeTaken = errors.New("referral code already taken")
	// ErrTemplateNotFound возвращается, если активный шаблон с указанным именем не найден.
	ErrTemplateNotFound = errors.New("template not found")
)

const userColumns = `id, email, phone, password_hash, is_admin, sms_credits,
	referral_code, referred_by_id,
	morning_enabled, morning_hour, morning_channel,
	evening_enabled, evening_hour, evening_channel,
	created_at`

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure или Deadlocks.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя с балансом кредитов и реферальным кодом по умолчанию.
func (r *PostgresRepository) CreateUser(ctx context.Context, email, phone string, passwordHash []byte, referralCode string, referredByID *int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, phone, password_hash, referral_code, referred_by_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		email, phone, passwordHash, referralCode, referredByID,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// Уникальных ограничений у таблицы два: занятый email и коллизия
			// сгенерированного реферального кода. Второе — не конфликт
			// пользователя, вызывающая сторона генерирует код заново.
			if strings.Contains(pgErr.ConstraintName, "referral_code") {
				return 0, ErrReferralCodeTaken
			}
			return 0, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Phone, &u.PasswordHash, &u.IsAdmin, &u.SMSCredits,
		&u.ReferralCode, &u.ReferredByID,
		&u.Prefs.Morning.Enabled, &u.Prefs.Morning.Hour, &u.Prefs.Morning.Channel,
		&u.Prefs.Evening.Enabled, &u.Prefs.Evening.Hour, &u.Prefs.Evening.Channel,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	)
	return scanUser(row)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)
	return scanUser(row)
}

// GetUserByReferralCode возвращает пользователя по реферальному коду.
func (r *PostgresRepository) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE referral_code = $1`,
		code,
	)
	return scanUser(row)
}

// AddSMSCredits начисляет пользователю указанное число SMS-кредитов.
func (r *PostgresRepository) AddSMSCredits(ctx context.Context, userID int64, n int) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE users SET sms_credits = sms_credits + $2 WHERE id = $1`,
		userID, n,
	)
	if err != nil {
		return fmt.Errorf("add sms credits: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DebitSMSCredit списывает ровно один SMS-кредит. Использует блокировку строки
// пользователя, чтобы параллельные списания не увели баланс в минус.
func (r *PostgresRepository) DebitSMSCredit(ctx context.Context, userID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var credits int
	err = tx.QueryRow(ctx,
		`SELECT sms_credits FROM users WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&credits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lock user for update: %w", err)
	}

	if credits <= 0 {
		return ErrNoCredits
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET sms_credits = sms_credits - 1 WHERE id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("debit sms credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// UpdatePrefs сохраняет настройки окон уведомлений пользователя.
func (r *PostgresRepository) UpdatePrefs(ctx context.Context, userID int64, prefs model.NotificationPrefs) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE users SET
			morning_enabled = $2, morning_hour = $3, morning_channel = $4,
			evening_enabled = $5, evening_hour = $6, evening_channel = $7
		 WHERE id = $1`,
		userID,
		prefs.Morning.Enabled, prefs.Morning.Hour, string(prefs.Morning.Channel),
		prefs.Evening.Enabled, prefs.Evening.Hour, string(prefs.Evening.Channel),
	)
	if err != nil {
		return fmt.Errorf("update prefs: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetUsersWithWindowEnabled возвращает пользователей с включённым окном указанного вида.
func (r *PostgresRepository) GetUsersWithWindowEnabled(ctx context.Context, kind model.WindowKind) ([]model.User, error) {
	column := "morning_enabled"
	if kind == model.WindowEvening {
		column = "evening_enabled"
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = TRUE`,
	)
	if err != nil {
		return nil, fmt.Errorf("select users with window enabled: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return users, nil
}

// UpsertSchedule создаёт или заменяет график вывоза для пары (пользователь, категория).
func (r *PostgresRepository) UpsertSchedule(ctx context.Context, userID int64, binType model.BinType, frequency model.Frequency, nextCollection time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO bin_schedules (user_id, bin_type, frequency, next_collection)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, bin_type)
		 DO UPDATE SET frequency = EXCLUDED.frequency, next_collection = EXCLUDED.next_collection`,
		userID, string(binType), string(frequency), nextCollection,
	)
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	return nil
}

// GetSchedulesByUser возвращает графики вывоза пользователя.
func (r *PostgresRepository) GetSchedulesByUser(ctx context.Context, userID int64) ([]model.BinSchedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, bin_type, frequency, next_collection
		 FROM bin_schedules
		 WHERE user_id = $1
		 ORDER BY bin_type`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select schedules: %w", err)
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// GetSchedulesDueBetween возвращает графики, у которых дата вывоза попадает
// в полуоткрытый интервал [from, to).
func (r *PostgresRepository) GetSchedulesDueBetween(ctx context.Context, from, to time.Time) ([]model.BinSchedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, bin_type, frequency, next_collection
		 FROM bin_schedules
		 WHERE next_collection >= $1 AND next_collection < $2`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select due schedules: %w", err)
	}
	defer rows.Close()

	return scanSchedules(rows)
}

func scanSchedules(rows pgx.Rows) ([]model.BinSchedule, error) {
	var schedules []model.BinSchedule
	for rows.Next() {
		var (
			s         model.BinSchedule
			binType   string
			frequency string
		)
		if err := rows.Scan(&s.ID, &s.UserID, &binType, &frequency, &s.NextCollection); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		s.BinType = model.BinType(binType)
		s.Frequency = model.Frequency(frequency)
		schedules = append(schedules, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return schedules, nil
}

// AdvanceSchedule переносит дату следующего вывоза для указанного графика.
func (r *PostgresRepository) AdvanceSchedule(ctx context.Context, scheduleID int64, next time.Time) error {
	return r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx,
			`UPDATE bin_schedules SET next_collection = $2 WHERE id = $1`,
			scheduleID, next,
		)
		if err != nil {
			return fmt.Errorf("advance schedule: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrScheduleNotFound
		}
		return nil
	})
}

// AppendEmailLog добавляет запись в журнал доставки.
func (r *PostgresRepository) AppendEmailLog(ctx context.Context, entry model.EmailLog) error {
	var errorMessage *string
	if entry.ErrorMessage != "" {
		errorMessage = &entry.ErrorMessage
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO email_logs (sent_at, recipient, bin_type, status, error_message)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.SentAt, entry.Recipient, string(entry.BinType), string(entry.Status), errorMessage,
	)
	if err != nil {
		return fmt.Errorf("append email log: %w", err)
	}
	return nil
}

// GetEmailLogs возвращает последние записи журнала доставки.
func (r *PostgresRepository) GetEmailLogs(ctx context.Context, limit int) ([]model.EmailLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, sent_at, recipient, bin_type, status, COALESCE(error_message, '')
		 FROM email_logs
		 ORDER BY sent_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select email logs: %w", err)
	}
	defer rows.Close()

	var logs []model.EmailLog
	for rows.Next() {
		var (
			entry   model.EmailLog
			binType string
			status  string
		)
		if err := rows.Scan(&entry.ID, &entry.SentAt, &entry.Recipient, &binType, &status, &entry.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		entry.BinType = model.BinType(binType)
		entry.Status = model.DeliveryStatus(status)
		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return logs, nil
}

// GetActiveTemplate возвращает активный шаблон с указанным логическим именем.
func (r *PostgresRepository) GetActiveTemplate(ctx context.Context, name string) (*model.MessageTemplate, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, body, active
		 FROM message_templates
		 WHERE name = $1 AND active = TRUE`,
		name,
	)

	var t model.MessageTemplate
	if err := row.Scan(&t.ID, &t.Name, &t.Body, &t.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("get template: %w", err)
	}

	return &t, nil
}

// UpsertTemplate создаёт или заменяет шаблон с указанным логическим именем.
func (r *PostgresRepository) UpsertTemplate(ctx context.Context, name, body string, active bool) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_templates (name, body, active)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name)
		 DO UPDATE SET body = EXCLUDED.body, active = EXCLUDED.active`,
		name, body, active,
	)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

// GetAdminStats возвращает сводную статистику для админского отчёта.
func (r *PostgresRepository) GetAdminStats(ctx context.Context, weekAgo time.Time) (*model.AdminStats, error) {
	var stats model.AdminStats

	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&stats.TotalUsers)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bin_schedules`).Scan(&stats.TotalSchedules)
	if err != nil {
		return nil, fmt.Errorf("count schedules: %w", err)
	}

	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM email_logs`).Scan(&stats.TotalEmails)
	if err != nil {
		return nil, fmt.Errorf("count emails: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM email_logs WHERE status = $1`,
		string(model.DeliveryFailure),
	).Scan(&stats.FailedEmails)
	if err != nil {
		return nil, fmt.Errorf("count failed emails: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bin_schedules WHERE next_collection >= $1`,
		weekAgo,
	).Scan(&stats.CollectionsThisWeek)
	if err != nil {
		return nil, fmt.Errorf("count collections this week: %w", err)
	}

	return &stats, nil
}
