package errors

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
)

// StorageFault carries the driver-level detail of a failed write.
type StorageFault struct {
	Driver     string
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// Diagnostics is the log-side view of an error. It never reaches clients.
type Diagnostics struct {
	Message string
	Code    Code
	Chain   []string
	Storage *StorageFault
}

func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}
	d := Diagnostics{Message: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.Storage = storageFault(err)
	return d
}

func storageFault(err error) *StorageFault {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &StorageFault{
			Driver:     "pgx",
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &StorageFault{
			Driver:     "pq",
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}

	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) && len(writeErr.WriteErrors) > 0 {
		first := writeErr.WriteErrors[0]
		return &StorageFault{
			Driver:  "mongo",
			Code:    strconv.Itoa(first.Code),
			Message: first.Message,
		}
	}
	return nil
}

// Fields flattens the diagnostics for structured logging.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_chain": d.Chain,
	}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	if s := d.Storage; s != nil {
		fields["db_driver"] = s.Driver
		fields["db_code"] = s.Code
		if s.Constraint != "" {
			fields["db_constraint"] = s.Constraint
		}
		if s.Table != "" {
			fields["db_table"] = s.Table
		}
		if s.Column != "" {
			fields["db_column"] = s.Column
		}
		if s.Detail != "" {
			fields["db_detail"] = s.Detail
		}
		if s.Message != "" {
			fields["db_message"] = s.Message
		}
	}
	return fields
}
