package pg

import (
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type DriverName string

const DRIVERNAME_POSTGRES DriverName = "postgres"

func GetConnection(conn string) (db *sqlx.DB, err error) {
	return sqlx.Connect(string(DRIVERNAME_POSTGRES), conn)
}
