package feeders

import (
	"errors"
	"fmt"
)

// Static error definitions for the environment feeders
var (
	ErrEnvInvalidStructure = errors.New("env: expected pointer to struct")
	ErrEnvEmptyPrefix      = errors.New("env: prefix cannot be empty")
	ErrEnvFieldNotSettable = errors.New("env: field cannot be set")
	ErrDotEnvInvalidLine   = errors.New("dotenv: line is not a KEY=VALUE pair")
)

func wrapEnvStructureError(got interface{}) error {
	return fmt.Errorf("%w, got %T", ErrEnvInvalidStructure, got)
}
