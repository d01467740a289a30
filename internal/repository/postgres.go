package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/core-coin/pactum/internal/models"
	"github.com/core-coin/pactum/pkg/logger"
)

type PostgresDB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*PostgresDB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // Use standard logger
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond, // Log queries slower than this
			LogLevel:                  gormLogger.Warn,        // Only log warnings or errors
			IgnoreRecordNotFoundError: true,                   // Suppress "record not found" errors
			Colorful:                  true,                   // Enable colorful logs
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %s", err)
	}

	if err := db.AutoMigrate(&models.Subscription{}, &models.Payment{}, &models.AppLock{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %s", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return &PostgresDB{Conn: db, logger: logger.Named("repository")}, nil
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

func (db *PostgresDB) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := db.Conn.WithContext(ctx).
		Preload("PaymentHistory", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("payment_date ASC, id ASC")
		}).
		Where("user_id = ?", userID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

func (db *PostgresDB) FindPaymentByHash(ctx context.Context, transactionHash string) (*models.Payment, error) {
	var payment models.Payment
	if err := db.Conn.WithContext(ctx).Where("transaction_hash = ?", transactionHash).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return &payment, nil
}

func (db *PostgresDB) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	sub.Version = 1
	err := db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("PaymentHistory").Create(sub).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return models.ErrSubscriptionExists
			}
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		for i := range sub.PaymentHistory {
			sub.PaymentHistory[i].SubscriptionID = sub.ID
			if err := createPayment(tx, &sub.PaymentHistory[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		sub.ID = 0
		sub.Version = 0
		return err
	}
	db.logger.Debugw("Subscription created", "user_id", sub.UserID, "id", sub.ID)
	return nil
}

func (db *PostgresDB) UpdateSubscription(ctx context.Context, sub *models.Subscription, expectedVersion int64, newPayment *models.Payment) error {
	err := db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Subscription{}).
			Where("id = ? AND version = ?", sub.ID, expectedVersion).
			Updates(map[string]interface{}{
				"status":            sub.Status,
				"start_date":        sub.StartDate,
				"end_date":          sub.EndDate,
				"next_payment_due":  sub.NextPaymentDue,
				"grace_period_end":  sub.GracePeriodEnd,
				"auto_renewal":      sub.AutoRenewal,
				"cancellation_date": sub.CancellationDate,
				"version":           expectedVersion + 1,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update subscription: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return models.ErrVersionConflict
		}

		if newPayment != nil {
			newPayment.SubscriptionID = sub.ID
			if err := createPayment(tx, newPayment); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	sub.Version = expectedVersion + 1
	return nil
}

func createPayment(tx *gorm.DB, payment *models.Payment) error {
	if err := tx.Create(payment).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ErrDuplicatePayment
		}
		return fmt.Errorf("failed to add payment: %w", err)
	}
	return nil
}

func (db *PostgresDB) ListSubscriptionsByStatus(ctx context.Context, statuses []models.Status, afterID int64, limit int) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	if err := db.Conn.WithContext(ctx).
		Where("status IN ? AND id > ?", statuses, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

type statusCount struct {
	Status models.Status
	Count  int64
}

type networkRevenue struct {
	Network models.Network
	Total   decimal.Decimal
	Count   int64
}

func (db *PostgresDB) GetSubscriptionStats(ctx context.Context) (*models.SubscriptionStats, error) {
	conn := db.Conn.WithContext(ctx)

	var counts []statusCount
	if err := conn.Model(&models.Subscription{}).
		Select("status, count(*) AS count").
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	var revenue []networkRevenue
	if err := conn.Model(&models.Payment{}).
		Select("network, COALESCE(SUM(amount), 0) AS total, count(*) AS count").
		Where("status = ?", models.PaymentConfirmed).
		Group("network").
		Scan(&revenue).Error; err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}

	stats := &models.SubscriptionStats{
		ByStatus:         make(map[models.Status]int64),
		TotalRevenue:     decimal.Zero,
		RevenueByNetwork: make(map[models.Network]decimal.Decimal),
	}
	for _, c := range counts {
		stats.ByStatus[c.Status] = c.Count
		stats.Total += c.Count
	}
	for _, r := range revenue {
		stats.RevenueByNetwork[r.Network] = r.Total
		stats.TotalRevenue = stats.TotalRevenue.Add(r.Total)
		stats.ConfirmedPayments += r.Count
	}
	return stats, nil
}

// AcquireLock takes or renews the named lock. An expired lock held by another instance is taken over.
func (db *PostgresDB) AcquireLock(ctx context.Context, name, instanceID string, ttl time.Duration) (bool, error) {
	now := time.Now()
	lock := models.AppLock{
		LockName:   name,
		InstanceID: instanceID,
		AcquiredAt: now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
	}
	res := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lock_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"instance_id", "acquired_at", "expires_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Or(
				clause.Lt{Column: "app_locks.expires_at", Value: now.Unix()},
				clause.Eq{Column: "app_locks.instance_id", Value: instanceID},
			),
		}},
	}).Create(&lock)
	if res.Error != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (db *PostgresDB) ReleaseLock(ctx context.Context, name, instanceID string) error {
	if err := db.Conn.WithContext(ctx).
		Where("lock_name = ? AND instance_id = ?", name, instanceID).
		Delete(&models.AppLock{}).Error; err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}
