package util

const (
	StorageNone  = "none"
	StorageMinio = "minio"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendAMQP   = "amqp"
	BackendLog    = "log"
)
