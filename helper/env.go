package helper

import (
	"fmt"
	"os"
	"strings"

	"github.com/BenjaminRains/etlpipe/constants"
)

// GetEnvVar fetches an OS environment variable.
// If the variable is not set it returns an empty string, plus an error when
// mandatory == true.
func GetEnvVar(k string, mandatory bool) (string, error) {
	if value := os.Getenv(k); value != "" {
		return value, nil
	}
	if mandatory {
		return "", fmt.Errorf("environment variable %v is not set", k)
	}
	return "", nil
}

// ReadValueFromEnvWithDefault reads the value of name from the environment.
// If it's not set then the supplied defaultValue is returned instead.
func ReadValueFromEnvWithDefault(name string, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

// GetDsnEnvVarName converts a logical connection name to the environment
// variable expected to hold its DSN, e.g. "source" -> "ETL_SOURCE_DSN".
func GetDsnEnvVarName(connectionName string) string {
	n := strings.TrimSpace(strings.ToUpper(connectionName))
	return fmt.Sprintf("%v_%v_DSN", constants.EnvVarPrefix, n)
}
