package postgres

import "context"

// CompanyExists проверяет наличие компании.
func (r *PostgresRepo) CompanyExists(ctx context.Context, companyID string) (bool, error) {
	var ok bool
	err := r.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM companies WHERE id = $1)`, companyID).Scan(&ok)
	return ok, err
}

// DeviceBelongsTo проверяет, что устройство зарегистрировано за компанией.
func (r *PostgresRepo) DeviceBelongsTo(ctx context.Context, deviceID, companyID string) (bool, error) {
	var ok bool
	err := r.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM devices WHERE id = $1 AND company_id = $2)`, deviceID, companyID).Scan(&ok)
	return ok, err
}
