package validate

const (
	MaxFileSize int64 = 10 * 1024 * 1024

	MaxNameLen int = 255
)
