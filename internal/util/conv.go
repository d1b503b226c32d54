package util

import (
	"fmt"

	"github.com/google/uuid"
)

// RequireID 校验实体 ID（UUID 格式），失败返回校验错误
func RequireID(name, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s is not a valid id", ErrInvalidInput, name)
	}
	return nil
}
