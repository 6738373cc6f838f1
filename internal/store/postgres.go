package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/iurnickita/collection/internal/model"
)

type postgresStore struct {
	database *sql.DB
}

func NewPostgresStore(dsn string) (Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	// Платежи
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS payment (" +
			" id VARCHAR (64) PRIMARY KEY," +
			" tenant_id VARCHAR (64) NOT NULL," +
			" transaction_date BIGINT NOT NULL," +
			" total_amount_paid NUMERIC (14, 2) NOT NULL DEFAULT 0," +
			" payment_mode VARCHAR (32) NOT NULL," +
			" instrument_status VARCHAR (32) NOT NULL," +
			" payment_status VARCHAR (32) NOT NULL," +
			" created_by VARCHAR (64)," +
			" created_time BIGINT," +
			" last_modified_by VARCHAR (64)," +
			" last_modified_time BIGINT" +
			" );")
	if err != nil {
		return nil, err
	}

	// Счета. Строка счета принадлежит одной строке детализации
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS bill (" +
			" id VARCHAR (64) PRIMARY KEY," +
			" tenant_id VARCHAR (64) NOT NULL," +
			" consumer_code VARCHAR (128) NOT NULL," +
			" status VARCHAR (32) NOT NULL," +
			" is_cancelled BOOLEAN," +
			" reason_for_cancellation VARCHAR (2048)," +
			" additional_details JSONB," +
			" created_by VARCHAR (64)," +
			" created_time BIGINT," +
			" last_modified_by VARCHAR (64)," +
			" last_modified_time BIGINT" +
			" );")
	if err != nil {
		return nil, err
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS bill_consumer_code_idx ON bill (consumer_code);")
	if err != nil {
		return nil, err
	}

	// Детализация платежа
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS payment_detail (" +
			" id VARCHAR (64) PRIMARY KEY," +
			" payment_id VARCHAR (64) NOT NULL REFERENCES payment (id)," +
			" position INTEGER NOT NULL," +
			" tenant_id VARCHAR (64) NOT NULL," +
			" total_amount_paid NUMERIC (14, 2) NOT NULL DEFAULT 0," +
			" bill_id VARCHAR (64) NOT NULL REFERENCES bill (id)," +
			" created_by VARCHAR (64)," +
			" created_time BIGINT," +
			" last_modified_by VARCHAR (64)," +
			" last_modified_time BIGINT" +
			" );")
	if err != nil {
		return nil, err
	}

	return &postgresStore{
		database: db,
	}, nil
}

func (store *postgresStore) Close() error {
	return store.database.Close()
}

// inTx выполняет fn в транзакции READ COMMITTED. Любая ошибка откатывает всю транзакцию
func (store *postgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := store.database.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (store *postgresStore) PaymentPost(ctx context.Context, payment *model.Payment) error {
	err := store.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO payment (id, tenant_id, transaction_date, total_amount_paid, payment_mode,"+
				" instrument_status, payment_status, created_by, created_time, last_modified_by, last_modified_time)"+
				" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
			payment.ID,
			payment.TenantID,
			payment.TransactionDate,
			payment.TotalAmountPaid,
			string(payment.PaymentMode),
			string(payment.InstrumentStatus),
			string(payment.PaymentStatus),
			payment.AuditDetails.CreatedBy,
			payment.AuditDetails.CreatedTime,
			payment.AuditDetails.LastModifiedBy,
			payment.AuditDetails.LastModifiedTime)
		if err != nil {
			return err
		}

		for i, detail := range payment.PaymentDetails {
			bill := detail.Bill
			additionalDetails, err := marshalDetails(bill.AdditionalDetails)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				"INSERT INTO bill (id, tenant_id, consumer_code, status, is_cancelled, reason_for_cancellation,"+
					" additional_details, created_by, created_time, last_modified_by, last_modified_time)"+
					" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
				bill.ID,
				bill.TenantID,
				bill.ConsumerCode,
				string(bill.Status),
				nullBool(bill.IsCancelled),
				bill.ReasonForCancellation,
				additionalDetails,
				bill.AuditDetails.CreatedBy,
				bill.AuditDetails.CreatedTime,
				bill.AuditDetails.LastModifiedBy,
				bill.AuditDetails.LastModifiedTime)
			if err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx,
				"INSERT INTO payment_detail (id, payment_id, position, tenant_id, total_amount_paid, bill_id,"+
					" created_by, created_time, last_modified_by, last_modified_time)"+
					" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
				detail.ID,
				payment.ID,
				i,
				detail.TenantID,
				detail.TotalAmountPaid,
				bill.ID,
				detail.AuditDetails.CreatedBy,
				detail.AuditDetails.CreatedTime,
				detail.AuditDetails.LastModifiedBy,
				detail.AuditDetails.LastModifiedTime)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Проверка: уже существует
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert payment %s: %w", payment.ID, err)
	}
	return nil
}

func (store *postgresStore) FetchPayments(ctx context.Context, criteria model.PaymentSearchCriteria) ([]*model.Payment, error) {
	var where []string
	var args []any
	filter := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if criteria.TenantID != "" {
		filter("p.tenant_id = $%d", criteria.TenantID)
	}
	if len(criteria.IDs) > 0 {
		filter("p.id = ANY($%d)", criteria.IDs)
	}
	if len(criteria.InstrumentStatus) > 0 {
		filter("p.instrument_status = ANY($%d)", toStrings(criteria.InstrumentStatus))
	}
	if len(criteria.PaymentModes) > 0 {
		filter("p.payment_mode = ANY($%d)", toStrings(criteria.PaymentModes))
	}
	if len(criteria.ConsumerCodes) > 0 {
		filter("p.id IN (SELECT pd.payment_id FROM payment_detail AS pd"+
			" JOIN bill AS b ON b.id = pd.bill_id"+
			" WHERE b.consumer_code = ANY($%d))", criteria.ConsumerCodes)
	}

	query := "SELECT p.id, p.tenant_id, p.transaction_date, p.total_amount_paid, p.payment_mode," +
		" p.instrument_status, p.payment_status, p.created_by, p.created_time, p.last_modified_by, p.last_modified_time" +
		" FROM payment AS p"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if criteria.NewestFirst {
		query += " ORDER BY p.transaction_date DESC, p.id"
	} else {
		query += " ORDER BY p.transaction_date, p.id"
	}
	if criteria.Limit > 0 {
		args = append(args, criteria.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, max(criteria.Offset, 0))
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := store.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch payments: %w", err)
	}
	defer rows.Close()

	var payments []*model.Payment
	byID := make(map[string]*model.Payment)
	for rows.Next() {
		var payment model.Payment
		var audit auditRow
		err := rows.Scan(&payment.ID,
			&payment.TenantID,
			&payment.TransactionDate,
			&payment.TotalAmountPaid,
			&payment.PaymentMode,
			&payment.InstrumentStatus,
			&payment.PaymentStatus,
			&audit.createdBy,
			&audit.createdTime,
			&audit.lastModifiedBy,
			&audit.lastModifiedTime)
		if err != nil {
			return nil, err
		}
		payment.AuditDetails = audit.details()
		payments = append(payments, &payment)
		byID[payment.ID] = &payment
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(payments))
	for _, payment := range payments {
		ids = append(ids, payment.ID)
	}
	if err = store.fetchDetails(ctx, ids, byID); err != nil {
		return nil, err
	}
	return payments, nil
}

func (store *postgresStore) fetchDetails(ctx context.Context, ids []string, byID map[string]*model.Payment) error {
	rows, err := store.database.QueryContext(ctx,
		"SELECT pd.id, pd.payment_id, pd.tenant_id, pd.total_amount_paid,"+
			" pd.created_by, pd.created_time, pd.last_modified_by, pd.last_modified_time,"+
			" b.id, b.tenant_id, b.consumer_code, b.status, b.is_cancelled, b.reason_for_cancellation,"+
			" b.additional_details, b.created_by, b.created_time, b.last_modified_by, b.last_modified_time"+
			" FROM payment_detail AS pd"+
			" JOIN bill AS b ON b.id = pd.bill_id"+
			" WHERE pd.payment_id = ANY($1)"+
			" ORDER BY pd.payment_id, pd.position",
		ids)
	if err != nil {
		return fmt.Errorf("fetch payment details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var detail model.PaymentDetail
		var paymentID string
		var detailAudit, billAudit auditRow
		var isCancelled sql.NullBool
		var reason sql.NullString
		var additionalDetails []byte
		err := rows.Scan(&detail.ID,
			&paymentID,
			&detail.TenantID,
			&detail.TotalAmountPaid,
			&detailAudit.createdBy,
			&detailAudit.createdTime,
			&detailAudit.lastModifiedBy,
			&detailAudit.lastModifiedTime,
			&detail.Bill.ID,
			&detail.Bill.TenantID,
			&detail.Bill.ConsumerCode,
			&detail.Bill.Status,
			&isCancelled,
			&reason,
			&additionalDetails,
			&billAudit.createdBy,
			&billAudit.createdTime,
			&billAudit.lastModifiedBy,
			&billAudit.lastModifiedTime)
		if err != nil {
			return err
		}
		detail.AuditDetails = detailAudit.details()
		detail.Bill.AuditDetails = billAudit.details()
		if isCancelled.Valid {
			detail.Bill.IsCancelled = &isCancelled.Bool
		}
		detail.Bill.ReasonForCancellation = reason.String
		if len(additionalDetails) > 0 {
			if err = json.Unmarshal(additionalDetails, &detail.Bill.AdditionalDetails); err != nil {
				return fmt.Errorf("bill %s additional details: %w", detail.Bill.ID, err)
			}
		}

		if payment, ok := byID[paymentID]; ok {
			payment.PaymentDetails = append(payment.PaymentDetails, detail)
		}
	}
	return rows.Err()
}

func (store *postgresStore) UpdateStatus(ctx context.Context, payments []*model.Payment) error {
	return store.inTx(ctx, func(tx *sql.Tx) error {
		for _, payment := range payments {
			res, err := tx.ExecContext(ctx,
				"UPDATE payment"+
					" SET instrument_status = $1, payment_status = $2, last_modified_by = $3, last_modified_time = $4"+
					" WHERE id = $5"+
					"   AND tenant_id = $6",
				string(payment.InstrumentStatus),
				string(payment.PaymentStatus),
				payment.AuditDetails.LastModifiedBy,
				payment.AuditDetails.LastModifiedTime,
				payment.ID,
				payment.TenantID)
			if err != nil {
				return fmt.Errorf("update payment %s: %w", payment.ID, err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return ErrNoRows
			}

			for _, detail := range payment.PaymentDetails {
				_, err = tx.ExecContext(ctx,
					"UPDATE payment_detail"+
						" SET last_modified_by = $1, last_modified_time = $2"+
						" WHERE id = $3",
					detail.AuditDetails.LastModifiedBy,
					detail.AuditDetails.LastModifiedTime,
					detail.ID)
				if err != nil {
					return fmt.Errorf("update payment detail %s: %w", detail.ID, err)
				}

				bill := detail.Bill
				additionalDetails, err := marshalDetails(bill.AdditionalDetails)
				if err != nil {
					return err
				}
				_, err = tx.ExecContext(ctx,
					"UPDATE bill"+
						" SET status = $1, is_cancelled = $2, reason_for_cancellation = $3, additional_details = $4,"+
						" last_modified_by = $5, last_modified_time = $6"+
						" WHERE id = $7",
					string(bill.Status),
					nullBool(bill.IsCancelled),
					bill.ReasonForCancellation,
					additionalDetails,
					bill.AuditDetails.LastModifiedBy,
					bill.AuditDetails.LastModifiedTime,
					bill.ID)
				if err != nil {
					return fmt.Errorf("update bill %s: %w", bill.ID, err)
				}
			}
		}
		return nil
	})
}

type auditRow struct {
	createdBy        sql.NullString
	createdTime      sql.NullInt64
	lastModifiedBy   sql.NullString
	lastModifiedTime sql.NullInt64
}

func (a auditRow) details() model.AuditDetails {
	return model.AuditDetails{
		CreatedBy:        a.createdBy.String,
		CreatedTime:      a.createdTime.Int64,
		LastModifiedBy:   a.lastModifiedBy.String,
		LastModifiedTime: a.lastModifiedTime.Int64,
	}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func marshalDetails(details map[string]any) (sql.NullString, error) {
	if details == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
