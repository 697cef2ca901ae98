package config

const EnvPrefix = "RECEIPTFLOW"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverRedis    = "redis"
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
)

const (
	EnvAppEnv       = "RECEIPTFLOW_APP_ENV"
	EnvLogLevel     = "RECEIPTFLOW_LOG_LEVEL"
	EnvLogWarnStack = "RECEIPTFLOW_LOG_WARN_STACK"

	EnvStorageDriver    = "RECEIPTFLOW_STORAGE_DRIVER"
	EnvStorageNamespace = "RECEIPTFLOW_STORAGE_NAMESPACE"

	EnvRedisURL  = "RECEIPTFLOW_REDIS_URL"
	EnvRedisAddr = "RECEIPTFLOW_REDIS_ADDR"

	EnvDBDSN         = "RECEIPTFLOW_DB_DSN"
	EnvDBAutoMigrate = "RECEIPTFLOW_DB_AUTO_MIGRATE"

	EnvOrderIDMax   = "RECEIPTFLOW_ORDER_ID_MAX"
	EnvCSVMinGroups = "RECEIPTFLOW_CSV_MIN_GROUPS"
	EnvCSVMaxGroups = "RECEIPTFLOW_CSV_MAX_GROUPS"
)
